package auth

import (
	"context"

	"family-booking/internal/database"
	"family-booking/internal/models"
)

// RepositoryInterface defines the account lookups used for login.
type RepositoryInterface interface {
	FindByEmail(ctx context.Context, email string) (*models.Account, error)
	Create(ctx context.Context, account *models.Account) error
}

type Repository struct {
	db database.DBTX
}

func NewRepository(db database.DBTX) *Repository {
	return &Repository{db: db}
}

// FindByEmail returns ErrNotFound when no account uses email.
func (r *Repository) FindByEmail(ctx context.Context, email string) (*models.Account, error) {
	query := `SELECT id, email, password_hash, role, provider_id FROM accounts WHERE lower(email) = lower($1)`
	var a models.Account
	err := r.db.QueryRow(ctx, query, email).Scan(&a.ID, &a.Email, &a.PasswordHash, &a.Role, &a.ProviderID)
	if err != nil {
		return nil, database.MapError("repository.FindAccountByEmail", err, models.ErrNotFound, nil)
	}
	return &a, nil
}

// Create inserts account and fills its id. A taken email returns ErrConflict.
func (r *Repository) Create(ctx context.Context, account *models.Account) error {
	query := `INSERT INTO accounts (email, password_hash, role, provider_id) VALUES ($1, $2, $3, $4) RETURNING id`
	err := r.db.QueryRow(ctx, query, account.Email, account.PasswordHash, account.Role, account.ProviderID).Scan(&account.ID)
	if err != nil {
		return database.MapError("repository.CreateAccount", err, models.ErrNotFound, models.ErrConflict)
	}
	return nil
}
