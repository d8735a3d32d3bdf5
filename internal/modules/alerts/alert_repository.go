package alerts

import (
	"context"
	"fmt"

	"family-booking/internal/database"
	"family-booking/internal/models"

	"github.com/jackc/pgx/v5"
)

// RepositoryInterface defines the contract for the admin alert store.
type RepositoryInterface interface {
	Create(ctx context.Context, alert *models.AdminAlert) error
	ListOpen(ctx context.Context, limit int) ([]*models.AdminAlert, error)
	Acknowledge(ctx context.Context, id string) (*models.AdminAlert, error)
}

type Repository struct {
	db database.DBTX
}

func NewRepository(db database.DBTX) *Repository {
	return &Repository{db: db}
}

func scanAlert(row pgx.Row) (*models.AdminAlert, error) {
	var a models.AdminAlert
	if err := row.Scan(&a.ID, &a.RequestID, &a.Kind, &a.Message, &a.CreatedAt, &a.AcknowledgedAt); err != nil {
		return nil, err
	}
	return &a, nil
}

// Create inserts alert and fills its id and timestamp.
func (r *Repository) Create(ctx context.Context, alert *models.AdminAlert) error {
	query := `INSERT INTO admin_alerts (request_id, kind, message) VALUES ($1, $2, $3) RETURNING id, created_at`
	if err := r.db.QueryRow(ctx, query, alert.RequestID, alert.Kind, alert.Message).Scan(&alert.ID, &alert.CreatedAt); err != nil {
		return database.MapError("repository.CreateAlert", err, models.ErrNotFound, nil)
	}
	return nil
}

// ListOpen returns unacknowledged alerts, newest first.
func (r *Repository) ListOpen(ctx context.Context, limit int) ([]*models.AdminAlert, error) {
	query := `
		SELECT id, request_id, kind, message, created_at, acknowledged_at
		FROM admin_alerts
		WHERE acknowledged_at IS NULL
		ORDER BY created_at DESC
		LIMIT $1`
	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, database.MapError("repository.ListOpenAlerts", err, models.ErrNotFound, nil)
	}
	defer rows.Close()

	var out []*models.AdminAlert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("repository.ListOpenAlerts: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Acknowledge stamps the alert. Acknowledging twice keeps the first timestamp.
func (r *Repository) Acknowledge(ctx context.Context, id string) (*models.AdminAlert, error) {
	query := `
		UPDATE admin_alerts SET acknowledged_at = COALESCE(acknowledged_at, now())
		WHERE id = $1
		RETURNING id, request_id, kind, message, created_at, acknowledged_at`
	a, err := scanAlert(r.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, database.MapError("repository.AcknowledgeAlert", err, models.ErrNotFound, nil)
	}
	return a, nil
}
