// Package overlap decides whether two stays collide.
//
// Stays are half-open date intervals [CheckIn, CheckOut): a guest checking out on
// the same day another checks in does not collide with them. The same rule is
// rendered as SQL so the database enforces exactly what the in-memory predicate
// decides.
package overlap

import (
	"fmt"
	"strings"
	"time"
)

// Range a stay [CheckIn, CheckOut)
type Range struct {
	CheckIn  time.Time
	CheckOut time.Time
}

// NewRange builds a range from two dates, truncated to calendar days
func NewRange(checkIn, checkOut time.Time) Range {
	return Range{CheckIn: Day(checkIn), CheckOut: Day(checkOut)}
}

// Valid reports whether CheckOut is strictly after CheckIn
func (r Range) Valid() bool {
	return r.CheckOut.After(r.CheckIn)
}

// Contains reports whether t falls inside [CheckIn, CheckOut)
func (r Range) Contains(t time.Time) bool {
	return !t.Before(r.CheckIn) && t.Before(r.CheckOut)
}

// Nights number of nights in the stay
func (r Range) Nights() int {
	if !r.Valid() {
		return 0
	}
	return int(r.CheckOut.Sub(r.CheckIn).Hours() / 24)
}

func (r Range) String() string {
	return fmt.Sprintf("[%s, %s)", r.CheckIn.Format(time.DateOnly), r.CheckOut.Format(time.DateOnly))
}

// Overlaps reports whether candidate collides with existing.
// A zero-length range never overlaps anything. The result for an inverted range
// is meaningless (it can report a collision), so check Valid first.
func Overlaps(existing, candidate Range) bool {
	return candidate.CheckIn.Before(existing.CheckOut) && candidate.CheckOut.After(existing.CheckIn)
}

// FirstConflict returns the index of the first range in existing that collides with candidate
func FirstConflict(candidate Range, existing []Range) (int, bool) {
	for i, r := range existing {
		if Overlaps(r, candidate) {
			return i, true
		}
	}
	return -1, false
}

// BlockedDays lists every day in [from, to) covered by one of the ranges.
// Used to grey out days in a date picker.
func BlockedDays(from, to time.Time, taken []Range) []time.Time {
	var out []time.Time
	for day := Day(from); day.Before(Day(to)); day = day.AddDate(0, 0, 1) {
		night := Range{CheckIn: day, CheckOut: day.AddDate(0, 0, 1)}
		if _, hit := FirstConflict(night, taken); hit {
			out = append(out, day)
		}
	}
	return out
}

// Day truncates t to midnight UTC of its calendar date
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Bound identifies which end of the candidate a column is compared against
type Bound int

const (
	CandidateCheckIn Bound = iota
	CandidateCheckOut
)

// Condition one comparison of a stored column against a candidate bound
type Condition struct {
	Column string // "check_in" or "check_out"
	Op     string // "<" or ">"
	Bound  Bound
}

// Conditions conjunction used by both the SQL rendering and Match
type Conditions []Condition

// Predicate is Overlaps expressed over stored columns:
// existing.check_in < candidate.check_out AND existing.check_out > candidate.check_in
var Predicate = Conditions{
	{Column: "check_in", Op: "<", Bound: CandidateCheckOut},
	{Column: "check_out", Op: ">", Bound: CandidateCheckIn},
}

// SQL renders the conditions for table alias with the given placeholders
// holding the candidate check-in and check-out.
func (cs Conditions) SQL(alias, checkInParam, checkOutParam string) string {
	parts := make([]string, 0, len(cs))
	for _, c := range cs {
		param := checkInParam
		if c.Bound == CandidateCheckOut {
			param = checkOutParam
		}
		col := c.Column
		if alias != "" {
			col = alias + "." + col
		}
		parts = append(parts, fmt.Sprintf("%s %s %s", col, c.Op, param))
	}
	return strings.Join(parts, " AND ")
}

// Match evaluates the conditions the way the database would for one stored row
func (cs Conditions) Match(existing, candidate Range) bool {
	for _, c := range cs {
		var col, bound time.Time
		switch c.Column {
		case "check_in":
			col = existing.CheckIn
		case "check_out":
			col = existing.CheckOut
		default:
			return false
		}
		if c.Bound == CandidateCheckOut {
			bound = candidate.CheckOut
		} else {
			bound = candidate.CheckIn
		}
		switch c.Op {
		case "<":
			if !col.Before(bound) {
				return false
			}
		case ">":
			if !col.After(bound) {
				return false
			}
		default:
			return false
		}
	}
	return true
}
