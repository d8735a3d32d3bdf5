package assignment

import (
	"context"
	"fmt"
	"time"

	"family-booking/internal/database"
	"family-booking/internal/models"
	"family-booking/internal/modules/alerts"
	"family-booking/internal/modules/providers"
	"family-booking/internal/modules/requests"

	"github.com/jackc/pgx/v5"
)

// RepositoryInterface 定义分配协调器所需的全部数据库操作。
// 所有绑定 provider 的写操作都必须在 InTx 中执行。
type RepositoryInterface interface {
	// InTx 在同一事务中执行 fn，fn 返回错误时整体回滚。
	InTx(ctx context.Context, fn func(repo RepositoryInterface) error) error

	// ===== Requests =====
	// LockRequest 读取请求并加行锁（SELECT ... FOR UPDATE）。
	LockRequest(ctx context.Context, id string) (*models.ServiceRequest, error)
	FindRequest(ctx context.Context, id string) (*models.ServiceRequest, error)
	// UpdateRequestStatus 以旧状态为条件写入（compare-and-swap）。
	UpdateRequestStatus(ctx context.Context, req *models.ServiceRequest, from models.RequestStatus) error
	AppendEvent(ctx context.Context, ev *models.RequestEvent) error

	// ===== Providers =====
	FindProvider(ctx context.Context, id string) (*models.Provider, error)
	FindProviders(ctx context.Context, ids []string) ([]*models.Provider, error)
	ListEligibleProviders(ctx context.Context) ([]*models.Provider, error)

	// ===== Missions =====
	FindMission(ctx context.Context, requestID string) (*models.Mission, error)
	// SaveMission 按 request_id 插入或更新任务；已绑定 provider 的任务不可再写，
	// 此时返回 ErrMissionAlreadyAssigned。
	SaveMission(ctx context.Context, m *models.Mission) error
	// ListOverdueMissions 查询已过响应截止时间且仍未绑定 provider 的任务。
	ListOverdueMissions(ctx context.Context, now time.Time) ([]*models.Mission, error)

	// ===== Alerts =====
	CreateAlert(ctx context.Context, a *models.AdminAlert) error
}

// Repository 组合 requests / providers / alerts 的仓储，并负责 missions 表。
type Repository struct {
	db        database.TxStarter
	requests  *requests.Repository
	providers *providers.Repository
	alerts    *alerts.Repository
}

// NewRepository 创建 Repository，db 可以是连接池也可以是事务。
func NewRepository(db database.TxStarter) *Repository {
	return &Repository{
		db:        db,
		requests:  requests.NewRepository(db),
		providers: providers.NewRepository(db),
		alerts:    alerts.NewRepository(db),
	}
}

func (r *Repository) InTx(ctx context.Context, fn func(repo RepositoryInterface) error) error {
	return database.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		return fn(NewRepository(tx))
	})
}

// ===== Requests 实现 =====

func (r *Repository) LockRequest(ctx context.Context, id string) (*models.ServiceRequest, error) {
	return r.requests.FindByIDForUpdate(ctx, id)
}

func (r *Repository) FindRequest(ctx context.Context, id string) (*models.ServiceRequest, error) {
	return r.requests.FindByID(ctx, id)
}

func (r *Repository) UpdateRequestStatus(ctx context.Context, req *models.ServiceRequest, from models.RequestStatus) error {
	return r.requests.UpdateStatus(ctx, req, from)
}

func (r *Repository) AppendEvent(ctx context.Context, ev *models.RequestEvent) error {
	return r.requests.AppendEvent(ctx, ev)
}

// ===== Providers 实现 =====

func (r *Repository) FindProvider(ctx context.Context, id string) (*models.Provider, error) {
	return r.providers.FindByID(ctx, id)
}

func (r *Repository) FindProviders(ctx context.Context, ids []string) ([]*models.Provider, error) {
	return r.providers.FindByIDs(ctx, ids)
}

func (r *Repository) ListEligibleProviders(ctx context.Context) ([]*models.Provider, error) {
	return r.providers.ListEligible(ctx)
}

// ===== Missions 实现 =====

const missionColumns = `id, request_id, eligible_providers, notified_count, declined_providers, assigned_provider_id,
	assignment_method, assigned_at, response_deadline, sent_notifications, responses_received, created_at, updated_at`

func scanMission(row pgx.Row) (*models.Mission, error) {
	var m models.Mission
	err := row.Scan(
		&m.ID,
		&m.RequestID,
		&m.EligibleProviders,
		&m.NotifiedCount,
		&m.DeclinedProviders,
		&m.AssignedProviderID,
		&m.AssignmentMethod,
		&m.AssignedAt,
		&m.ResponseDeadline,
		&m.SentNotifications,
		&m.ResponsesReceived,
		&m.CreatedAt,
		&m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// FindMission 根据 request_id 查询任务，不存在时返回 ErrNotFound。
func (r *Repository) FindMission(ctx context.Context, requestID string) (*models.Mission, error) {
	query := `SELECT ` + missionColumns + ` FROM missions WHERE request_id = $1`
	m, err := scanMission(r.db.QueryRow(ctx, query, requestID))
	if err != nil {
		return nil, database.MapError("repository.FindMission", err, models.ErrNotFound, nil)
	}
	return m, nil
}

// SaveMission 利用 request_id 唯一索引做 upsert；
// 冲突时仅当 assigned_provider_id 仍为空才更新，否则无返回行 → ErrMissionAlreadyAssigned。
func (r *Repository) SaveMission(ctx context.Context, m *models.Mission) error {
	query := `
		INSERT INTO missions (request_id, eligible_providers, notified_count, declined_providers, assigned_provider_id,
			assignment_method, assigned_at, response_deadline, sent_notifications, responses_received)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (request_id) DO UPDATE SET
			eligible_providers   = EXCLUDED.eligible_providers,
			notified_count       = EXCLUDED.notified_count,
			declined_providers   = EXCLUDED.declined_providers,
			assigned_provider_id = EXCLUDED.assigned_provider_id,
			assignment_method    = EXCLUDED.assignment_method,
			assigned_at          = EXCLUDED.assigned_at,
			response_deadline    = EXCLUDED.response_deadline,
			sent_notifications   = EXCLUDED.sent_notifications,
			responses_received   = EXCLUDED.responses_received,
			updated_at           = now()
		WHERE missions.assigned_provider_id IS NULL
		RETURNING id, created_at, updated_at`

	eligible := m.EligibleProviders
	if eligible == nil {
		eligible = []string{}
	}
	declined := m.DeclinedProviders
	if declined == nil {
		declined = []string{}
	}

	err := r.db.QueryRow(ctx, query,
		m.RequestID, eligible, m.NotifiedCount, declined, m.AssignedProviderID,
		m.AssignmentMethod, m.AssignedAt, m.ResponseDeadline, m.SentNotifications, m.ResponsesReceived,
	).Scan(&m.ID, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return database.MapError("repository.SaveMission", err, models.ErrMissionAlreadyAssigned, models.ErrMissionAlreadyAssigned)
	}
	return nil
}

func (r *Repository) ListOverdueMissions(ctx context.Context, now time.Time) ([]*models.Mission, error) {
	query := `
		SELECT ` + missionColumns + ` FROM missions
		WHERE assigned_provider_id IS NULL AND response_deadline IS NOT NULL AND response_deadline <= $1
		ORDER BY response_deadline`
	rows, err := r.db.Query(ctx, query, now)
	if err != nil {
		return nil, database.MapError("repository.ListOverdueMissions", err, models.ErrNotFound, nil)
	}
	defer rows.Close()

	var out []*models.Mission
	for rows.Next() {
		m, err := scanMission(rows)
		if err != nil {
			return nil, fmt.Errorf("repository.ListOverdueMissions: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// ===== Alerts 实现 =====

func (r *Repository) CreateAlert(ctx context.Context, a *models.AdminAlert) error {
	return r.alerts.Create(ctx, a)
}
