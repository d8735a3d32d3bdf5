package requests

import (
	"context"
	"fmt"
	"strings"
	"time"

	"family-booking/internal/database"
	"family-booking/internal/models"

	"github.com/jackc/pgx/v5"
)

// RepositoryInterface defines the contract for the request store.
type RepositoryInterface interface {
	InTx(ctx context.Context, fn func(repo RepositoryInterface) error) error
	Create(ctx context.Context, clientID string, req models.CreateServiceRequest) (*models.ServiceRequest, error)
	FindByID(ctx context.Context, id string) (*models.ServiceRequest, error)
	FindByIDForUpdate(ctx context.Context, id string) (*models.ServiceRequest, error)
	List(ctx context.Context, filter models.RequestFilter, page, limit int) ([]*models.ServiceRequest, int, error)
	UpdateStatus(ctx context.Context, req *models.ServiceRequest, from models.RequestStatus) error
	UpdatePayment(ctx context.Context, req *models.ServiceRequest) error
	AppendEvent(ctx context.Context, ev *models.RequestEvent) error
	ListEvents(ctx context.Context, requestID string) ([]*models.RequestEvent, error)
	ListDueReminders(ctx context.Context, day time.Time) ([]*models.ServiceRequest, error)
	MarkReminderSent(ctx context.Context, id string, at time.Time) error
}

// Repository implements RepositoryInterface on PostgreSQL.
type Repository struct {
	db database.TxStarter
}

// NewRepository creates a request repository. db may be a pool or a transaction.
func NewRepository(db database.TxStarter) *Repository {
	return &Repository{db: db}
}

// InTx runs fn with a repository bound to a new transaction.
func (r *Repository) InTx(ctx context.Context, fn func(repo RepositoryInterface) error) error {
	return database.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		return fn(&Repository{db: tx})
	})
}

const requestColumns = `id, client_id, client_name, client_email, client_phone, service_type, description,
	location, postal_code, city, preferred_date, window_start, window_end, urgency, budget, status,
	assigned_provider_id, payment_status, payment_intent_id, created_at, updated_at, started_at, completed_at`

// ScanRequest scans one service_requests row selected with requestColumns.
func ScanRequest(row pgx.Row) (*models.ServiceRequest, error) {
	var req models.ServiceRequest
	err := row.Scan(
		&req.ID,
		&req.ClientID,
		&req.ClientName,
		&req.ClientEmail,
		&req.ClientPhone,
		&req.ServiceType,
		&req.Description,
		&req.Location,
		&req.PostalCode,
		&req.City,
		&req.PreferredDate,
		&req.WindowStart,
		&req.WindowEnd,
		&req.Urgency,
		&req.Budget,
		&req.Status,
		&req.AssignedProviderID,
		&req.PaymentStatus,
		&req.PaymentIntentID,
		&req.CreatedAt,
		&req.UpdatedAt,
		&req.StartedAt,
		&req.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	return &req, nil
}

func collectRequests(rows pgx.Rows) ([]*models.ServiceRequest, error) {
	defer rows.Close()
	var out []*models.ServiceRequest
	for rows.Next() {
		req, err := ScanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, req)
	}
	return out, rows.Err()
}

// Create inserts a new request in status new.
func (r *Repository) Create(ctx context.Context, clientID string, in models.CreateServiceRequest) (*models.ServiceRequest, error) {
	urgency := in.Urgency
	if urgency == "" {
		urgency = models.UrgencyNormal
	}
	query := `
		INSERT INTO service_requests (client_id, client_name, client_email, client_phone, service_type, description,
			location, postal_code, city, preferred_date, window_start, window_end, urgency, budget)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING ` + requestColumns
	row := r.db.QueryRow(ctx, query,
		clientID, in.ClientName, in.ClientEmail, in.ClientPhone, in.ServiceType, in.Description,
		in.Location, in.PostalCode, in.City, in.PreferredDate, in.WindowStart, in.WindowEnd, urgency, in.Budget)
	req, err := ScanRequest(row)
	if err != nil {
		return nil, database.MapError("repository.CreateRequest", err, models.ErrNotFound, models.ErrConflict)
	}
	return req, nil
}

// FindByID retrieves a single request.
func (r *Repository) FindByID(ctx context.Context, id string) (*models.ServiceRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM service_requests WHERE id = $1`
	req, err := ScanRequest(r.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, database.MapError("repository.FindRequest", err, models.ErrNotFound, nil)
	}
	return req, nil
}

// FindByIDForUpdate reads and row-locks a request. Only meaningful inside InTx.
func (r *Repository) FindByIDForUpdate(ctx context.Context, id string) (*models.ServiceRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM service_requests WHERE id = $1 FOR UPDATE`
	req, err := ScanRequest(r.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, database.MapError("repository.LockRequest", err, models.ErrNotFound, nil)
	}
	return req, nil
}

func filterClause(f models.RequestFilter) (string, []any) {
	var conds []string
	var args []any
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.Status != nil {
		add("status = $%d", string(*f.Status))
	}
	if f.ServiceType != "" {
		add("service_type = $%d", f.ServiceType)
	}
	if f.ClientID != "" {
		add("client_id = $%d", f.ClientID)
	}
	if f.ProviderID != "" {
		add("assigned_provider_id = $%d", f.ProviderID)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// List returns one page of requests matching filter, newest first, with the total count.
func (r *Repository) List(ctx context.Context, filter models.RequestFilter, page, limit int) ([]*models.ServiceRequest, int, error) {
	where, args := filterClause(filter)

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM service_requests`+where, args...).Scan(&total); err != nil {
		return nil, 0, database.MapError("repository.ListRequests", err, models.ErrNotFound, nil)
	}

	offset := (page - 1) * limit
	args = append(args, limit, offset)
	query := fmt.Sprintf(`SELECT %s FROM service_requests%s ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d`,
		requestColumns, where, len(args)-1, len(args))
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, database.MapError("repository.ListRequests", err, models.ErrNotFound, nil)
	}
	out, err := collectRequests(rows)
	if err != nil {
		return nil, 0, fmt.Errorf("repository.ListRequests: %w", err)
	}
	return out, total, nil
}

// UpdateStatus writes the lifecycle fields of req only if the stored status
// is still from. It returns ErrStatusConflict when another writer got there first.
func (r *Repository) UpdateStatus(ctx context.Context, req *models.ServiceRequest, from models.RequestStatus) error {
	query := `
		UPDATE service_requests
		SET status = $3, assigned_provider_id = $4, payment_status = $5, payment_intent_id = $6,
			updated_at = $7, started_at = $8, completed_at = $9
		WHERE id = $1 AND status = $2`
	tag, err := r.db.Exec(ctx, query, req.ID, from, req.Status, req.AssignedProviderID, req.PaymentStatus,
		req.PaymentIntentID, req.UpdatedAt, req.StartedAt, req.CompletedAt)
	if err != nil {
		return database.MapError("repository.UpdateRequestStatus", err, models.ErrNotFound, nil)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrStatusConflict
	}
	return nil
}

// UpdatePayment writes payment fields without touching the status.
func (r *Repository) UpdatePayment(ctx context.Context, req *models.ServiceRequest) error {
	query := `UPDATE service_requests SET payment_status = $2, payment_intent_id = $3 WHERE id = $1`
	tag, err := r.db.Exec(ctx, query, req.ID, req.PaymentStatus, req.PaymentIntentID)
	if err != nil {
		return database.MapError("repository.UpdatePayment", err, models.ErrNotFound, nil)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// AppendEvent adds an entry to the request history.
func (r *Repository) AppendEvent(ctx context.Context, ev *models.RequestEvent) error {
	query := `
		INSERT INTO request_events (request_id, kind, from_status, to_status, actor_id, payload)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`
	err := r.db.QueryRow(ctx, query, ev.RequestID, ev.Kind, ev.FromStatus, ev.ToStatus, ev.ActorID, ev.Payload).
		Scan(&ev.ID, &ev.CreatedAt)
	if err != nil {
		return database.MapError("repository.AppendEvent", err, models.ErrNotFound, nil)
	}
	return nil
}

// ListEvents returns the history of a request, oldest first.
func (r *Repository) ListEvents(ctx context.Context, requestID string) ([]*models.RequestEvent, error) {
	query := `
		SELECT id, request_id, kind, from_status, to_status, actor_id, payload, created_at
		FROM request_events WHERE request_id = $1 ORDER BY id`
	rows, err := r.db.Query(ctx, query, requestID)
	if err != nil {
		return nil, database.MapError("repository.ListEvents", err, models.ErrNotFound, nil)
	}
	defer rows.Close()

	var out []*models.RequestEvent
	for rows.Next() {
		var ev models.RequestEvent
		if err := rows.Scan(&ev.ID, &ev.RequestID, &ev.Kind, &ev.FromStatus, &ev.ToStatus, &ev.ActorID, &ev.Payload, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("repository.ListEvents: %w", err)
		}
		out = append(out, &ev)
	}
	return out, rows.Err()
}

// ListDueReminders returns confirmed requests scheduled on day that have not
// been reminded yet.
func (r *Repository) ListDueReminders(ctx context.Context, day time.Time) ([]*models.ServiceRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM service_requests
		WHERE status = 'confirmed' AND preferred_date = $1::date AND reminder_sent_at IS NULL
		ORDER BY id`
	rows, err := r.db.Query(ctx, query, day.Format("2006-01-02"))
	if err != nil {
		return nil, database.MapError("repository.ListDueReminders", err, models.ErrNotFound, nil)
	}
	out, err := collectRequests(rows)
	if err != nil {
		return nil, fmt.Errorf("repository.ListDueReminders: %w", err)
	}
	return out, nil
}

func (r *Repository) MarkReminderSent(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.Exec(ctx, `UPDATE service_requests SET reminder_sent_at = $2 WHERE id = $1`, id, at)
	if err != nil {
		return database.MapError("repository.MarkReminderSent", err, models.ErrNotFound, nil)
	}
	return nil
}
