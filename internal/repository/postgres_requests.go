package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"rental-booking/internal/models"
	"rental-booking/internal/overlap"

	"go.uber.org/zap"
)

const requestColumns = `id, version, parent_id, message, check_in, check_out, status, created_by, created_at, edited_at`

// PostgresRequestRepository requests table
type PostgresRequestRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPostgresRequestRepository creates a request repository
func NewPostgresRequestRepository(db *sql.DB, logger *zap.Logger) *PostgresRequestRepository {
	return &PostgresRequestRepository{db: db, logger: logger}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRequest(row rowScanner) (*models.Request, error) {
	var r models.Request
	var status string
	if err := row.Scan(
		&r.ID,
		&r.Version,
		&r.UnitID,
		&r.Message,
		&r.CheckIn,
		&r.CheckOut,
		&status,
		&r.CreatedBy,
		&r.CreatedAt,
		&r.EditedAt,
	); err != nil {
		return nil, err
	}
	r.Status = models.RequestStatus(status)
	return &r, nil
}

func (r *PostgresRequestRepository) GetRequest(ctx context.Context, id, version string) (*models.Request, error) {
	query := `SELECT ` + requestColumns + ` FROM requests WHERE id = $1 AND version = $2`

	req, err := scanRequest(r.db.QueryRowContext(ctx, query, id, version))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get request: %w", err)
	}
	return req, nil
}

func (r *PostgresRequestRepository) ListApproved(ctx context.Context, unitID string, endingAfter time.Time) ([]models.Request, error) {
	query := `SELECT ` + requestColumns + `
		FROM requests
		WHERE parent_id = $1
		  AND version = ''
		  AND status = 'APPROVED'
		  AND check_out > $2
		ORDER BY check_in`

	rows, err := r.db.QueryContext(ctx, query, unitID, endingAfter)
	if err != nil {
		return nil, fmt.Errorf("failed to query approved requests: %w", err)
	}
	defer rows.Close()
	return collectRequests(rows)
}

// CreateRequest inserts under a per-unit advisory lock so a concurrent approval
// on the same unit cannot slip in between the overlap check and the insert.
func (r *PostgresRequestRepository) CreateRequest(ctx context.Context, req *models.Request) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, req.UnitID); err != nil {
		return fmt.Errorf("failed to lock unit: %w", err)
	}

	query := `INSERT INTO requests (` + requestColumns + `)
		SELECT $1, '', $2, $3, $4::date, $5::date, 'WAIT', $6, NOW(), NOW()
		WHERE NOT EXISTS (
			SELECT 1 FROM requests r
			WHERE r.parent_id = $2
			  AND r.version = ''
			  AND r.status = 'APPROVED'
			  AND ` + overlap.Predicate.SQL("r", "$4::date", "$5::date") + `
		)
		RETURNING created_at, edited_at`

	err = tx.QueryRowContext(ctx, query,
		req.ID, req.UnitID, req.Message, req.CheckIn, req.CheckOut, req.CreatedBy,
	).Scan(&req.CreatedAt, &req.EditedAt)
	if errors.Is(err, sql.ErrNoRows) {
		conflictID, err := r.conflictingID(ctx, tx, req.UnitID, req.ID, req.CheckIn, req.CheckOut)
		if err != nil {
			return err
		}
		return &ConflictError{ConflictingID: conflictID}
	}
	if err != nil {
		return fmt.Errorf("failed to insert request: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit request: %w", err)
	}
	req.Version = ""
	req.Status = models.StatusWait
	return nil
}

func (r *PostgresRequestRepository) UpdateStatus(ctx context.Context, id string, to models.RequestStatus) (*models.Request, error) {
	if !to.Terminal() {
		return nil, fmt.Errorf("invalid target status %q", to)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var unitID string
	err = tx.QueryRowContext(ctx, `SELECT parent_id FROM requests WHERE id = $1 AND version = ''`, id).Scan(&unitID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get request unit: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, unitID); err != nil {
		return nil, fmt.Errorf("failed to lock unit: %w", err)
	}

	query := `UPDATE requests q SET status = $2, edited_at = NOW()
		WHERE q.id = $1 AND q.version = '' AND q.status = 'WAIT'`
	if to == models.StatusApproved {
		query += `
		  AND NOT EXISTS (
			SELECT 1 FROM requests r
			WHERE r.parent_id = q.parent_id
			  AND r.version = ''
			  AND r.id <> q.id
			  AND r.status = 'APPROVED'
			  AND ` + overlap.Predicate.SQL("r", "q.check_in", "q.check_out") + `
		  )`
	}
	query += `
		RETURNING ` + prefixColumns("q", requestColumns)

	updated, err := scanRequest(tx.QueryRowContext(ctx, query, id, string(to)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, r.explainRefusedUpdate(ctx, tx, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update request status: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit status: %w", err)
	}
	return updated, nil
}

// explainRefusedUpdate tells apart a lost status race from an overlap refusal
func (r *PostgresRequestRepository) explainRefusedUpdate(ctx context.Context, tx *sql.Tx, id string) error {
	var status string
	var checkIn, checkOut time.Time
	var unitID string
	err := tx.QueryRowContext(ctx,
		`SELECT status, parent_id, check_in, check_out FROM requests WHERE id = $1 AND version = ''`, id,
	).Scan(&status, &unitID, &checkIn, &checkOut)
	if err != nil {
		return fmt.Errorf("failed to reload request: %w", err)
	}
	if models.RequestStatus(status) != models.StatusWait {
		return ErrStatusConflict
	}
	conflictID, err := r.conflictingID(ctx, tx, unitID, id, checkIn, checkOut)
	if err != nil {
		return err
	}
	return &ConflictError{ConflictingID: conflictID}
}

func (r *PostgresRequestRepository) conflictingID(ctx context.Context, tx *sql.Tx, unitID, excludeID string, checkIn, checkOut time.Time) (string, error) {
	query := `SELECT r.id FROM requests r
		WHERE r.parent_id = $1
		  AND r.version = ''
		  AND r.status = 'APPROVED'
		  AND r.id <> $2
		  AND ` + overlap.Predicate.SQL("r", "$3", "$4") + `
		ORDER BY r.check_in
		LIMIT 1`

	var id string
	if err := tx.QueryRowContext(ctx, query, unitID, excludeID, checkIn, checkOut).Scan(&id); err != nil {
		return "", fmt.Errorf("failed to find conflicting request: %w", err)
	}
	return id, nil
}

func (r *PostgresRequestRepository) UpdateMessage(ctx context.Context, id, message string) (*models.Request, error) {
	query := `UPDATE requests SET message = $2, edited_at = NOW()
		WHERE id = $1 AND version = ''
		RETURNING ` + requestColumns

	req, err := scanRequest(r.db.QueryRowContext(ctx, query, id, message))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to update request message: %w", err)
	}
	return req, nil
}

func (r *PostgresRequestRepository) ListRequests(ctx context.Context, filter RequestFilter, limit, offset int) ([]models.Request, error) {
	if limit <= 0 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	where := []string{"version = ''"}
	args := []any{}
	if filter.UnitID != "" {
		args = append(args, filter.UnitID)
		where = append(where, fmt.Sprintf("parent_id = $%d", len(args)))
	}
	if filter.CreatedBy != "" {
		args = append(args, filter.CreatedBy)
		where = append(where, fmt.Sprintf("created_by = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	args = append(args, limit, offset)

	query := fmt.Sprintf(`SELECT %s FROM requests WHERE %s ORDER BY check_in DESC, id LIMIT $%d OFFSET $%d`,
		requestColumns, strings.Join(where, " AND "), len(args)-1, len(args))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list requests: %w", err)
	}
	defer rows.Close()
	return collectRequests(rows)
}

func collectRequests(rows *sql.Rows) ([]models.Request, error) {
	var out []models.Request
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan request: %w", err)
		}
		out = append(out, *req)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate requests: %w", err)
	}
	return out, nil
}

func prefixColumns(alias, columns string) string {
	parts := strings.Split(columns, ", ")
	for i, p := range parts {
		parts[i] = alias + "." + p
	}
	return strings.Join(parts, ", ")
}
