package providers

import (
	"context"
	"fmt"

	"family-booking/internal/database"
	"family-booking/internal/models"

	"github.com/jackc/pgx/v5"
)

// RepositoryInterface defines the contract for the provider directory.
type RepositoryInterface interface {
	FindByID(ctx context.Context, id string) (*models.Provider, error)
	FindByIDs(ctx context.Context, ids []string) ([]*models.Provider, error)
	List(ctx context.Context, status *models.ProviderStatus, page, limit int) ([]*models.Provider, int, error)
	ListEligible(ctx context.Context) ([]*models.Provider, error)
	UpdateStatus(ctx context.Context, id string, status models.ProviderStatus, isVerified *bool) (*models.Provider, error)
}

// Repository implements RepositoryInterface on PostgreSQL.
type Repository struct {
	db database.DBTX
}

// NewRepository creates a provider repository. db may be a pool or a transaction.
func NewRepository(db database.DBTX) *Repository {
	return &Repository{db: db}
}

const providerColumns = `id, business_name, email, is_verified, status, rating, performance_score, coverage, postal_codes, hourly_rate, created_at, updated_at`

func scanProvider(row pgx.Row) (*models.Provider, error) {
	var p models.Provider
	err := row.Scan(
		&p.ID,
		&p.BusinessName,
		&p.Email,
		&p.IsVerified,
		&p.Status,
		&p.Rating,
		&p.PerformanceScore,
		&p.Coverage,
		&p.PostalCodes,
		&p.HourlyRate,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func collectProviders(rows pgx.Rows) ([]*models.Provider, error) {
	defer rows.Close()
	var out []*models.Provider
	for rows.Next() {
		p, err := scanProvider(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// FindByID retrieves a single provider.
func (r *Repository) FindByID(ctx context.Context, id string) (*models.Provider, error) {
	query := `SELECT ` + providerColumns + ` FROM providers WHERE id = $1`
	p, err := scanProvider(r.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, database.MapError("repository.FindProvider", err, models.ErrNotFound, nil)
	}
	return p, nil
}

// FindByIDs returns the providers that exist among ids, in no particular order.
func (r *Repository) FindByIDs(ctx context.Context, ids []string) ([]*models.Provider, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := `SELECT ` + providerColumns + ` FROM providers WHERE id = ANY($1::uuid[])`
	rows, err := r.db.Query(ctx, query, ids)
	if err != nil {
		return nil, database.MapError("repository.FindProvidersByIDs", err, models.ErrNotFound, nil)
	}
	out, err := collectProviders(rows)
	if err != nil {
		return nil, database.MapError("repository.FindProvidersByIDs", err, models.ErrNotFound, nil)
	}
	return out, nil
}

// List returns a page of providers, optionally filtered by status, with the total count.
func (r *Repository) List(ctx context.Context, status *models.ProviderStatus, page, limit int) ([]*models.Provider, int, error) {
	offset := (page - 1) * limit

	var total int
	countQuery := `SELECT COUNT(*) FROM providers WHERE ($1::text IS NULL OR status = $1)`
	if err := r.db.QueryRow(ctx, countQuery, status).Scan(&total); err != nil {
		return nil, 0, database.MapError("repository.ListProviders", err, models.ErrNotFound, nil)
	}

	query := `SELECT ` + providerColumns + ` FROM providers
		WHERE ($1::text IS NULL OR status = $1)
		ORDER BY business_name, id
		LIMIT $2 OFFSET $3`
	rows, err := r.db.Query(ctx, query, status, limit, offset)
	if err != nil {
		return nil, 0, database.MapError("repository.ListProviders", err, models.ErrNotFound, nil)
	}
	out, err := collectProviders(rows)
	if err != nil {
		return nil, 0, fmt.Errorf("repository.ListProviders: %w", err)
	}
	return out, total, nil
}

// ListEligible returns verified, active providers.
func (r *Repository) ListEligible(ctx context.Context) ([]*models.Provider, error) {
	query := `SELECT ` + providerColumns + ` FROM providers
		WHERE is_verified AND status = 'active'
		ORDER BY performance_score DESC, id`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, database.MapError("repository.ListEligibleProviders", err, models.ErrNotFound, nil)
	}
	out, err := collectProviders(rows)
	if err != nil {
		return nil, fmt.Errorf("repository.ListEligibleProviders: %w", err)
	}
	return out, nil
}

// UpdateStatus applies an admin moderation decision.
func (r *Repository) UpdateStatus(ctx context.Context, id string, status models.ProviderStatus, isVerified *bool) (*models.Provider, error) {
	query := `
		UPDATE providers
		SET status = $2, is_verified = COALESCE($3, is_verified), updated_at = now()
		WHERE id = $1
		RETURNING ` + providerColumns
	p, err := scanProvider(r.db.QueryRow(ctx, query, id, status, isVerified))
	if err != nil {
		return nil, database.MapError("repository.UpdateProviderStatus", err, models.ErrNotFound, nil)
	}
	return p, nil
}
