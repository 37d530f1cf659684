package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"rental-booking/internal/models"

	"github.com/lib/pq"
	"go.uber.org/zap"
)

const unitColumns = `id, version, title, description, address, unit_type, price, image, attachments,
	booked, booked_by, booked_until, pending_requests_count, created_by, created_at, edited_at`

// PostgresUnitRepository units table, including the counter and booking-flag batch updates
type PostgresUnitRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPostgresUnitRepository creates a unit repository
func NewPostgresUnitRepository(db *sql.DB, logger *zap.Logger) *PostgresUnitRepository {
	return &PostgresUnitRepository{db: db, logger: logger}
}

func scanUnit(row rowScanner) (*models.Unit, error) {
	var u models.Unit
	var bookedBy sql.NullString
	var bookedUntil sql.NullTime
	if err := row.Scan(
		&u.ID,
		&u.Version,
		&u.Title,
		&u.Description,
		&u.Address,
		&u.UnitType,
		&u.Price,
		&u.Image,
		pq.Array(&u.Attachments),
		&u.Booked,
		&bookedBy,
		&bookedUntil,
		&u.PendingRequestsCount,
		&u.CreatedBy,
		&u.CreatedAt,
		&u.EditedAt,
	); err != nil {
		return nil, err
	}
	if bookedBy.Valid {
		u.BookedBy = &bookedBy.String
	}
	if bookedUntil.Valid {
		u.BookedUntil = &bookedUntil.Time
	}
	return &u, nil
}

func (r *PostgresUnitRepository) GetUnit(ctx context.Context, id, version string) (*models.Unit, error) {
	query := `SELECT ` + unitColumns + ` FROM units WHERE id = $1 AND version = $2`

	u, err := scanUnit(r.db.QueryRowContext(ctx, query, id, version))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get unit: %w", err)
	}
	return u, nil
}

func (r *PostgresUnitRepository) ListUnitsByOwner(ctx context.Context, ownerID string, limit, offset int) ([]models.Unit, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT ` + unitColumns + `
		FROM units
		WHERE created_by = $1 AND version = ''
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`

	rows, err := r.db.QueryContext(ctx, query, ownerID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list units: %w", err)
	}
	defer rows.Close()

	var units []models.Unit
	for rows.Next() {
		u, err := scanUnit(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan unit: %w", err)
		}
		units = append(units, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate units: %w", err)
	}
	return units, nil
}

// AdjustPendingCounts applies delta to units.pending_requests_count and the owning
// host's users.pending_requests_count in a single statement evaluated by the database.
func (r *PostgresUnitRepository) AdjustPendingCounts(ctx context.Context, unitID string, delta int) (string, error) {
	query := `
		WITH unit AS (
			UPDATE units
			SET pending_requests_count = pending_requests_count + $2
			WHERE id = $1 AND version = ''
			RETURNING created_by
		)
		UPDATE users
		SET pending_requests_count = users.pending_requests_count + $2
		FROM unit
		WHERE users.id = unit.created_by
		RETURNING users.id`

	var hostID string
	err := r.db.QueryRowContext(ctx, query, unitID, delta).Scan(&hostID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to adjust pending counts: %w", err)
	}
	return hostID, nil
}

// RecountPending rebuilds both pending counters from the requests table
func (r *PostgresUnitRepository) RecountPending(ctx context.Context) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	unitsRes, err := tx.ExecContext(ctx, `
		UPDATE units u
		SET pending_requests_count = (
			SELECT COUNT(*) FROM requests r
			WHERE r.parent_id = u.id AND r.version = '' AND r.status = 'WAIT'
		)
		WHERE u.version = ''`)
	if err != nil {
		return 0, fmt.Errorf("failed to recount unit counters: %w", err)
	}

	usersRes, err := tx.ExecContext(ctx, `
		UPDATE users s
		SET pending_requests_count = (
			SELECT COUNT(*) FROM requests r
			JOIN units u ON u.id = r.parent_id AND u.version = ''
			WHERE u.created_by = s.id AND r.version = '' AND r.status = 'WAIT'
		)`)
	if err != nil {
		return 0, fmt.Errorf("failed to recount user counters: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit recount: %w", err)
	}

	unitsN, _ := unitsRes.RowsAffected()
	usersN, _ := usersRes.RowsAffected()
	return unitsN + usersN, nil
}

func (r *PostgresUnitRepository) ClearExpiredBookings(ctx context.Context, today time.Time) ([]string, error) {
	query := `
		UPDATE units
		SET booked = FALSE, booked_by = NULL, booked_until = NULL, edited_at = NOW()
		WHERE booked_until <= $1
		RETURNING id`

	return r.updateReturningIDs(ctx, query, today)
}

// MarkActiveBookings is guarded by booked = FALSE so a second run in the same
// window changes nothing.
func (r *PostgresUnitRepository) MarkActiveBookings(ctx context.Context, today time.Time) ([]string, error) {
	query := `
		UPDATE units u
		SET booked = TRUE, booked_by = r.created_by, booked_until = r.check_out, edited_at = NOW()
		FROM requests r
		WHERE r.parent_id = u.id
		  AND r.version = ''
		  AND r.status = 'APPROVED'
		  AND r.check_in <= $1
		  AND r.check_out > $1
		  AND u.version = ''
		  AND u.booked = FALSE
		RETURNING u.id`

	return r.updateReturningIDs(ctx, query, today)
}

func (r *PostgresUnitRepository) updateReturningIDs(ctx context.Context, query string, today time.Time) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, query, today)
	if err != nil {
		return nil, fmt.Errorf("failed to update bookings: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan unit id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate unit ids: %w", err)
	}
	return ids, nil
}
