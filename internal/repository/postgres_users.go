package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"rental-booking/internal/models"

	"go.uber.org/zap"
)

// PostgresUserRepository users table
type PostgresUserRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPostgresUserRepository creates a user repository
func NewPostgresUserRepository(db *sql.DB, logger *zap.Logger) *PostgresUserRepository {
	return &PostgresUserRepository{db: db, logger: logger}
}

func (r *PostgresUserRepository) GetUser(ctx context.Context, id string) (*models.User, error) {
	query := `
		SELECT id, username, email, app_language, e_notifications, e_validated, pending_requests_count
		FROM users
		WHERE id = $1`

	var u models.User
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&u.ID,
		&u.Username,
		&u.Email,
		&u.AppLanguage,
		&u.ENotifications,
		&u.EValidated,
		&u.PendingRequestsCount,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &u, nil
}
