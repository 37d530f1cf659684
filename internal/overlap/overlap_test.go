package overlap

import (
	"strings"
	"testing"
	"testing/quick"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func d(offset int) time.Time {
	return base.AddDate(0, 0, offset)
}

func rangeFrom(a, b int16) Range {
	in, out := int(a)%400, int(b)%400
	if in > out {
		in, out = out, in
	}
	return Range{CheckIn: d(in), CheckOut: d(out)}
}

func TestOverlaps_Table(t *testing.T) {
	existing := Range{CheckIn: d(0), CheckOut: d(4)} // 2024-01-01 .. 2024-01-05

	cases := []struct {
		name      string
		candidate Range
		want      bool
	}{
		{"inside", Range{d(1), d(2)}, true},
		{"covers", Range{d(-3), d(10)}, true},
		{"tail overlap", Range{d(3), d(5)}, true},
		{"head overlap", Range{d(-2), d(1)}, true},
		{"identical", existing, true},
		{"back to back after", Range{d(4), d(6)}, false},
		{"back to back before", Range{d(-2), d(0)}, false},
		{"far away", Range{d(20), d(22)}, false},
		{"zero length inside", Range{d(2), d(2)}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Overlaps(existing, tc.candidate))
		})
	}
}

func TestOverlaps_Symmetric(t *testing.T) {
	f := func(a1, a2, b1, b2 int16) bool {
		a, b := rangeFrom(a1, a2), rangeFrom(b1, b2)
		return Overlaps(a, b) == Overlaps(b, a)
	}
	require.NoError(t, quick.Check(f, nil))
}

func TestOverlaps_Reflexive(t *testing.T) {
	f := func(a1, a2 int16) bool {
		a := rangeFrom(a1, a2)
		return Overlaps(a, a) == a.Valid()
	}
	require.NoError(t, quick.Check(f, nil))
}

func TestOverlaps_BackToBack(t *testing.T) {
	f := func(a, gap1, gap2 uint8) bool {
		d0 := d(int(a))
		d1 := d0.AddDate(0, 0, int(gap1)+1)
		d2 := d1.AddDate(0, 0, int(gap2)+1)
		return !Overlaps(Range{d0, d1}, Range{d1, d2})
	}
	require.NoError(t, quick.Check(f, nil))
}

func TestPredicate_MatchesOverlaps(t *testing.T) {
	f := func(a1, a2, b1, b2 int16) bool {
		existing, candidate := rangeFrom(a1, a2), rangeFrom(b1, b2)
		return Predicate.Match(existing, candidate) == Overlaps(existing, candidate)
	}
	require.NoError(t, quick.Check(f, &quick.Config{MaxCount: 5000}))
}

func TestPredicate_SQL(t *testing.T) {
	assert.Equal(t, "r.check_in < $3 AND r.check_out > $2", Predicate.SQL("r", "$2", "$3"))
	assert.Equal(t, "check_in < $2 AND check_out > $1", Predicate.SQL("", "$1", "$2"))
}

func TestOverlaps_ZeroLengthNeverOverlaps(t *testing.T) {
	f := func(a1, a2, at int16) bool {
		other := rangeFrom(a1, a2)
		empty := Range{CheckIn: d(int(at) % 400), CheckOut: d(int(at) % 400)}
		return !Overlaps(other, empty) && !Overlaps(empty, other)
	}
	require.NoError(t, quick.Check(f, nil))
}

func TestOverlaps_InvertedRangeIsNotValid(t *testing.T) {
	existing := Range{CheckIn: d(0), CheckOut: d(9)}
	inverted := Range{CheckIn: d(4), CheckOut: d(2)}

	assert.False(t, inverted.Valid())
	// inverted input is not filtered out by Overlaps itself
	assert.True(t, Overlaps(existing, inverted))
}

// evalSQL evaluates a rendered predicate for one row, binding r.check_in and
// r.check_out to existing and $1, $2 to the candidate bounds.
func evalSQL(t *testing.T, sql string, existing, candidate Range) bool {
	values := map[string]time.Time{
		"r.check_in":  existing.CheckIn,
		"r.check_out": existing.CheckOut,
		"$1":          candidate.CheckIn,
		"$2":          candidate.CheckOut,
	}
	for _, term := range strings.Split(sql, " AND ") {
		fields := strings.Fields(term)
		require.Len(t, fields, 3, term)
		left, okLeft := values[fields[0]]
		right, okRight := values[fields[2]]
		require.True(t, okLeft && okRight, term)
		switch fields[1] {
		case "<":
			if !left.Before(right) {
				return false
			}
		case ">":
			if !left.After(right) {
				return false
			}
		default:
			t.Fatalf("unexpected operator in %q", term)
		}
	}
	return true
}

func TestPredicate_SQLTermsFollowConditions(t *testing.T) {
	sql := Predicate.SQL("r", "$1", "$2")
	terms := strings.Split(sql, " AND ")
	require.Len(t, terms, len(Predicate))

	for i, c := range Predicate {
		param := "$1"
		if c.Bound == CandidateCheckOut {
			param = "$2"
		}
		assert.Equal(t, []string{"r." + c.Column, c.Op, param}, strings.Fields(terms[i]))
	}
}

func TestPredicate_SQLEvaluatesLikeOverlaps(t *testing.T) {
	sql := Predicate.SQL("r", "$1", "$2")
	f := func(a1, a2, b1, b2 int16) bool {
		existing, candidate := rangeFrom(a1, a2), rangeFrom(b1, b2)
		return evalSQL(t, sql, existing, candidate) == Overlaps(existing, candidate)
	}
	require.NoError(t, quick.Check(f, &quick.Config{MaxCount: 5000}))
}

func TestFirstConflict(t *testing.T) {
	existing := []Range{{d(0), d(4)}, {d(10), d(12)}}

	idx, ok := FirstConflict(Range{d(11), d(13)}, existing)
	assert.True(t, ok)
	assert.Equal(t, 1, idx)

	_, ok = FirstConflict(Range{d(4), d(10)}, existing)
	assert.False(t, ok)
}

func TestBlockedDays(t *testing.T) {
	taken := []Range{{d(2), d(4)}, {d(4), d(5)}}

	days := BlockedDays(d(0), d(7), taken)
	require.Len(t, days, 3)
	assert.Equal(t, d(2), days[0])
	assert.Equal(t, d(3), days[1])
	assert.Equal(t, d(4), days[2])
}

func TestRange_Helpers(t *testing.T) {
	r := NewRange(time.Date(2024, 1, 1, 15, 30, 0, 0, time.UTC), time.Date(2024, 1, 5, 11, 0, 0, 0, time.UTC))
	assert.Equal(t, d(0), r.CheckIn)
	assert.Equal(t, d(4), r.CheckOut)
	assert.Equal(t, 4, r.Nights())
	assert.True(t, r.Contains(d(0)))
	assert.False(t, r.Contains(d(4)))
	assert.Equal(t, "[2024-01-01, 2024-01-05)", r.String())
	assert.Equal(t, 0, Range{d(3), d(1)}.Nights())
}
