package assignment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"family-booking/internal/config"
	"family-booking/internal/httpx"
	"family-booking/internal/models"
	"family-booking/internal/modules/requests"
	"family-booking/internal/notifications"
	"family-booking/pkg/matching"
	"family-booking/pkg/realtime"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ----------------------------------------------------------------------------
// fakeRepo keeps requests, providers, missions, events and alerts in memory.
// InTx holds a single lock for the whole callback, which stands in for the
// row lock, and restores requests and missions when the callback fails.
// ----------------------------------------------------------------------------
type fakeRepo struct {
	txMu      sync.Mutex
	mu        sync.Mutex
	requests  map[string]*models.ServiceRequest
	providers map[string]*models.Provider
	missions  map[string]*models.Mission
	events    []*models.RequestEvent
	alerts    []*models.AdminAlert
	seq       int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		requests:  make(map[string]*models.ServiceRequest),
		providers: make(map[string]*models.Provider),
		missions:  make(map[string]*models.Mission),
	}
}

func copyMission(m *models.Mission) *models.Mission {
	cp := *m
	cp.EligibleProviders = append([]string(nil), m.EligibleProviders...)
	cp.DeclinedProviders = append([]string(nil), m.DeclinedProviders...)
	return &cp
}

func (f *fakeRepo) putRequest(r *models.ServiceRequest) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *r
	f.requests[r.ID] = &cp
}

func (f *fakeRepo) request(id string) *models.ServiceRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *f.requests[id]
	return &cp
}

func (f *fakeRepo) mission(requestID string) *models.Mission {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.missions[requestID]
	if !ok {
		return nil
	}
	return copyMission(m)
}

func (f *fakeRepo) alertKinds() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.alerts))
	for i, a := range f.alerts {
		out[i] = a.Kind
	}
	return out
}

func (f *fakeRepo) InTx(ctx context.Context, fn func(repo RepositoryInterface) error) error {
	f.txMu.Lock()
	defer f.txMu.Unlock()

	f.mu.Lock()
	reqs := make(map[string]models.ServiceRequest, len(f.requests))
	for id, r := range f.requests {
		reqs[id] = *r
	}
	missions := make(map[string]*models.Mission, len(f.missions))
	for id, m := range f.missions {
		missions[id] = copyMission(m)
	}
	events, alerts := len(f.events), len(f.alerts)
	f.mu.Unlock()

	if err := fn(f); err != nil {
		f.mu.Lock()
		f.requests = make(map[string]*models.ServiceRequest, len(reqs))
		for id, r := range reqs {
			r := r
			f.requests[id] = &r
		}
		f.missions = missions
		f.events = f.events[:events]
		f.alerts = f.alerts[:alerts]
		f.mu.Unlock()
		return err
	}
	return nil
}

func (f *fakeRepo) LockRequest(ctx context.Context, id string) (*models.ServiceRequest, error) {
	return f.FindRequest(ctx, id)
}

func (f *fakeRepo) FindRequest(ctx context.Context, id string) (*models.ServiceRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.requests[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (f *fakeRepo) UpdateRequestStatus(ctx context.Context, req *models.ServiceRequest, from models.RequestStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cur, ok := f.requests[req.ID]
	if !ok {
		return models.ErrNotFound
	}
	if cur.Status != from {
		return models.ErrStatusConflict
	}
	cp := *req
	f.requests[req.ID] = &cp
	return nil
}

func (f *fakeRepo) AppendEvent(ctx context.Context, ev *models.RequestEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	ev.ID = int64(len(f.events) + 1)
	f.events = append(f.events, ev)
	return nil
}

func (f *fakeRepo) FindProvider(ctx context.Context, id string) (*models.Provider, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.providers[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return p, nil
}

func (f *fakeRepo) FindProviders(ctx context.Context, ids []string) ([]*models.Provider, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Provider
	for _, id := range ids {
		if p, ok := f.providers[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeRepo) ListEligibleProviders(ctx context.Context) ([]*models.Provider, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Provider
	for _, p := range f.providers {
		if p.IsEligible() {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeRepo) FindMission(ctx context.Context, requestID string) (*models.Mission, error) {
	if m := f.mission(requestID); m != nil {
		return m, nil
	}
	return nil, models.ErrNotFound
}

// SaveMission mirrors the conditional upsert: a mission with a provider is never overwritten.
func (f *fakeRepo) SaveMission(ctx context.Context, m *models.Mission) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if cur, ok := f.missions[m.RequestID]; ok {
		if cur.AssignedProviderID != nil {
			return models.ErrMissionAlreadyAssigned
		}
		m.ID = cur.ID
		m.CreatedAt = cur.CreatedAt
	} else {
		f.seq++
		m.ID = fmt.Sprintf("m-%d", f.seq)
	}
	f.missions[m.RequestID] = copyMission(m)
	return nil
}

func (f *fakeRepo) ListOverdueMissions(ctx context.Context, now time.Time) ([]*models.Mission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Mission
	for _, m := range f.missions {
		if m.AssignedProviderID == nil && m.ResponseDeadline != nil && !m.ResponseDeadline.After(now) {
			out = append(out, copyMission(m))
		}
	}
	return out, nil
}

func (f *fakeRepo) CreateAlert(ctx context.Context, a *models.AdminAlert) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a.ID = fmt.Sprintf("alert-%d", len(f.alerts)+1)
	f.alerts = append(f.alerts, a)
	return nil
}

// ----------------------------------------------------------------------------
// collaborators
// ----------------------------------------------------------------------------
type fakeMatcher struct {
	mu      sync.Mutex
	results map[string][]matching.Candidate
	err     error
	calls   []matching.Criteria
	// during runs while the engine is "thinking"
	during func()
}

func (m *fakeMatcher) MatchProviders(ctx context.Context, c matching.Criteria) ([]matching.Candidate, error) {
	m.mu.Lock()
	m.calls = append(m.calls, c)
	hook := m.during
	m.during = nil
	m.mu.Unlock()
	if hook != nil {
		hook()
	}
	if m.err != nil {
		return nil, m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.results[c.Location], nil
}

type fakeDispatcher struct {
	mu   sync.Mutex
	sent []notifications.Notification
}

func (d *fakeDispatcher) Dispatch(ctx context.Context, n notifications.Notification) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sent = append(d.sent, n)
	return nil
}

func (d *fakeDispatcher) all() []notifications.Notification {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]notifications.Notification(nil), d.sent...)
}

type fakePublisher struct {
	mu      sync.Mutex
	changes []realtime.Change
}

func (p *fakePublisher) Publish(ctx context.Context, c realtime.Change) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.changes = append(p.changes, c)
	return nil
}

type fixture struct {
	repo       *fakeRepo
	matcher    *fakeMatcher
	dispatcher *fakeDispatcher
	publisher  *fakePublisher
	svc        *Service
	clock      time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		repo:       newFakeRepo(),
		matcher:    &fakeMatcher{results: make(map[string][]matching.Candidate)},
		dispatcher: &fakeDispatcher{},
		publisher:  &fakePublisher{},
		clock:      time.Date(2026, 4, 30, 10, 0, 0, 0, time.UTC),
	}
	for _, p := range []*models.Provider{
		{ID: "p1", BusinessName: "Nounou Paris", Email: "p1@example.com", IsVerified: true, Status: models.ProviderActive, Coverage: "Paris, Boulogne", PerformanceScore: 70},
		{ID: "p2", BusinessName: "Kids Care", Email: "p2@example.com", IsVerified: true, Status: models.ProviderActive, Coverage: "Paris", PerformanceScore: 90},
		{ID: "p3", BusinessName: "Unverified", Email: "p3@example.com", IsVerified: false, Status: models.ProviderActive, Coverage: "Paris"},
	} {
		f.repo.providers[p.ID] = p
	}

	log := logrus.NewEntry(logrus.New())
	announcer := requests.NewAnnouncer(f.dispatcher, f.publisher, "ops@example.com", log)
	f.svc = NewService(f.repo, f.matcher, announcer, config.DefaultAssignment(), log)
	f.svc.Now = func() time.Time { return f.clock }
	return f
}

func (f *fixture) seed(id, location string, status models.RequestStatus) {
	f.repo.putRequest(&models.ServiceRequest{
		ID:            id,
		ClientID:      "c1",
		ClientName:    "Alice",
		ClientEmail:   "alice@example.com",
		ServiceType:   "Garde d'enfants",
		Location:      location,
		PreferredDate: time.Date(2026, 5, 2, 0, 0, 0, 0, time.UTC),
		Urgency:       models.UrgencyNormal,
		Status:        status,
		PaymentStatus: models.PaymentPending,
		UpdatedAt:     f.clock,
	})
}

func ptr(s string) *string { return &s }

var (
	admin = models.Actor{ID: "a1", Role: models.RoleAdmin}
	prov1 = models.Actor{ID: "u-p1", Role: models.RoleProvider, ProviderID: ptr("p1")}
	prov2 = models.Actor{ID: "u-p2", Role: models.RoleProvider, ProviderID: ptr("p2")}
)

func parisCandidates() []matching.Candidate {
	return []matching.Candidate{
		{ProviderID: "p1", Score: 92, Rating: 4.8},
		{ProviderID: "p2", Score: 80, Rating: 4.5},
	}
}

// ----------------------------------------------------------------------------
// automatic matching
// ----------------------------------------------------------------------------
func TestAutoAssignSelectsTopCandidate(t *testing.T) {
	f := newFixture(t)
	f.seed("r1", "Paris", models.StatusNew)
	f.matcher.results["Paris"] = parisCandidates()

	res, err := f.svc.AutoAssign(context.Background(), "r1")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, models.StatusSearchingProvider, res.Status)
	assert.Equal(t, []string{"p1"}, res.ProviderIDs)
	assert.Equal(t, 1, res.NotificationsSent)

	req := f.repo.request("r1")
	assert.Equal(t, models.StatusSearchingProvider, req.Status)
	assert.Nil(t, req.AssignedProviderID)
	assert.NoError(t, req.CheckAssignment())

	sent := f.dispatcher.all()
	require.Len(t, sent, 1, "exactly one dispatch")
	assert.Equal(t, notifications.TemplateProviderNewMission, sent[0].Template)
	require.Len(t, sent[0].Recipients, 1)
	assert.Equal(t, "p1", sent[0].Recipients[0].ID)

	m := f.repo.mission("r1")
	require.NotNil(t, m)
	assert.Equal(t, []string{"p1", "p2"}, m.EligibleProviders)
	assert.Equal(t, 1, m.NotifiedCount)
	assert.Equal(t, models.MethodAutoMatch, m.AssignmentMethod)
	require.NotNil(t, m.ResponseDeadline)
	assert.Equal(t, f.clock.Add(5*time.Minute), *m.ResponseDeadline)

	require.Len(t, f.matcher.calls, 1)
	c := f.matcher.calls[0]
	assert.Equal(t, "Garde d'enfants", c.ServiceType)
	assert.Equal(t, 3.0, c.MinRating)
	assert.Equal(t, 50.0, c.MaxDistanceKm)
}

func TestAutoAssignDropsIneligibleAndUnknownProviders(t *testing.T) {
	f := newFixture(t)
	f.seed("r1", "Paris", models.StatusNew)
	f.matcher.results["Paris"] = []matching.Candidate{
		{ProviderID: "p3", Score: 99},
		{ProviderID: "ghost", Score: 95},
		{ProviderID: "p2", Score: 60},
	}

	res, err := f.svc.AutoAssign(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, []string{"p2"}, res.ProviderIDs)
	assert.Equal(t, []string{"p2"}, f.repo.mission("r1").EligibleProviders)
}

func TestAutoAssignWithoutCandidatesMarksUnmatched(t *testing.T) {
	f := newFixture(t)
	f.seed("r1", "Nice", models.StatusNew)

	res, err := f.svc.AutoAssign(context.Background(), "r1")
	assert.ErrorIs(t, err, models.ErrNoEligibleProviders)
	require.NotNil(t, res)
	assert.False(t, res.Success)
	assert.Equal(t, "no_eligible_providers", res.Code)
	assert.Equal(t, models.StatusUnmatched, f.repo.request("r1").Status)
	assert.Equal(t, []string{models.AlertNoEligibleProviders}, f.repo.alertKinds())

	sent := f.dispatcher.all()
	require.Len(t, sent, 1)
	assert.Equal(t, notifications.TemplateAdminUnmatchedAlert, sent[0].Template)
	assert.Equal(t, "ops@example.com", sent[0].Recipients[0].Email)
}

func TestRelaunchReusesMission(t *testing.T) {
	f := newFixture(t)
	f.seed("r1", "Paris", models.StatusNew)
	f.matcher.results["Paris"] = []matching.Candidate{{ProviderID: "p1", Score: 50}}

	_, err := f.svc.AutoAssign(context.Background(), "r1")
	require.NoError(t, err)
	first := f.repo.mission("r1").ID

	_, err = f.svc.DeclineMission(context.Background(), "r1", prov1)
	require.NoError(t, err)
	require.Equal(t, models.StatusUnmatched, f.repo.request("r1").Status)

	f.matcher.results["Paris"] = []matching.Candidate{{ProviderID: "p2", Score: 50}}
	res, err := f.svc.AutoAssign(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusSearchingProvider, res.Status)

	m := f.repo.mission("r1")
	assert.Equal(t, first, m.ID)
	assert.Equal(t, []string{"p2"}, m.EligibleProviders)
	assert.Empty(t, m.DeclinedProviders)
}

func TestAutoAssignMatcherFailureWritesNothing(t *testing.T) {
	f := newFixture(t)
	f.seed("r1", "Paris", models.StatusNew)
	f.matcher.err = errors.New("engine down")

	_, err := f.svc.AutoAssign(context.Background(), "r1")
	assert.Error(t, err)
	assert.Equal(t, models.StatusNew, f.repo.request("r1").Status)
	assert.Nil(t, f.repo.mission("r1"))
	assert.Empty(t, f.dispatcher.all())
}

// ----------------------------------------------------------------------------
// manual assignment
// ----------------------------------------------------------------------------
func TestAssignManually(t *testing.T) {
	f := newFixture(t)
	f.seed("r1", "Lyon", models.StatusNew)

	res, err := f.svc.AssignManually(context.Background(), "r1", "p1", admin)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, models.StatusAwaitingClientConfirmation, res.Status)

	req := f.repo.request("r1")
	require.NotNil(t, req.AssignedProviderID)
	assert.Equal(t, "p1", *req.AssignedProviderID)
	assert.True(t, req.UpdatedAt.After(f.clock))

	m := f.repo.mission("r1")
	assert.Equal(t, models.MethodAdminManual, m.AssignmentMethod)
	assert.Equal(t, []string{"p1"}, m.EligibleProviders)
	assert.Equal(t, 1, m.SentNotifications)
	assert.Equal(t, 1, m.ResponsesReceived)
	require.NotNil(t, m.AssignedProviderID)
	assert.Equal(t, "p1", *m.AssignedProviderID)

	sent := f.dispatcher.all()
	require.Len(t, sent, 1)
	assert.Equal(t, notifications.TemplateProviderNewMission, sent[0].Template)
	require.Len(t, sent[0].Recipients, 2)
	assert.Equal(t, "p1@example.com", sent[0].Recipients[0].Email)
	assert.Equal(t, "alice@example.com", sent[0].Recipients[1].Email)
}

func TestAssignManuallyTwiceFails(t *testing.T) {
	f := newFixture(t)
	f.seed("r1", "Lyon", models.StatusNew)

	_, err := f.svc.AssignManually(context.Background(), "r1", "p1", admin)
	require.NoError(t, err)
	_, err = f.svc.AssignManually(context.Background(), "r1", "p1", admin)
	assert.ErrorIs(t, err, models.ErrMissionAlreadyAssigned)

	assert.Len(t, f.repo.missions, 1)
	assert.Len(t, f.dispatcher.all(), 1)
}

func TestAssignManuallyRejectsUnverifiedProvider(t *testing.T) {
	f := newFixture(t)
	f.seed("r1", "Paris", models.StatusNew)

	_, err := f.svc.AssignManually(context.Background(), "r1", "p3", admin)
	var ie *models.IneligibleProviderError
	require.True(t, errors.As(err, &ie))
	assert.Equal(t, "p3", ie.ProviderID)

	assert.Equal(t, models.StatusNew, f.repo.request("r1").Status)
	assert.Nil(t, f.repo.mission("r1"))
	assert.Empty(t, f.repo.events)
	assert.Empty(t, f.dispatcher.all())
}

func TestAssignManuallyFromUnmatched(t *testing.T) {
	f := newFixture(t)
	f.seed("r1", "Nice", models.StatusUnmatched)

	res, err := f.svc.AssignManually(context.Background(), "r1", "p2", admin)
	require.NoError(t, err)
	assert.Equal(t, models.StatusAwaitingClientConfirmation, res.Status)
}

func TestAssignManuallyOnCancelledRequest(t *testing.T) {
	f := newFixture(t)
	f.seed("r1", "Paris", models.StatusCancelled)

	_, err := f.svc.AssignManually(context.Background(), "r1", "p1", admin)
	assert.ErrorIs(t, err, models.ErrInvalidTransition)
	assert.Nil(t, f.repo.mission("r1"))
}

// ----------------------------------------------------------------------------
// races
// ----------------------------------------------------------------------------
func TestConcurrentManualAndAutoAssignHaveOneWinner(t *testing.T) {
	for i := 0; i < 25; i++ {
		f := newFixture(t)
		f.seed("r1", "Paris", models.StatusNew)
		f.matcher.results["Paris"] = parisCandidates()

		var wg sync.WaitGroup
		var manualErr, autoErr error
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, manualErr = f.svc.AssignManually(context.Background(), "r1", "p2", admin)
		}()
		go func() {
			defer wg.Done()
			_, autoErr = f.svc.AutoAssign(context.Background(), "r1")
		}()
		wg.Wait()

		if (manualErr == nil) == (autoErr == nil) {
			t.Fatalf("iteration %d: manual=%v auto=%v, want exactly one winner", i, manualErr, autoErr)
		}
		req := f.repo.request("r1")
		require.NoError(t, req.CheckAssignment())
		m := f.repo.mission("r1")
		require.NotNil(t, m)

		if manualErr == nil {
			assert.ErrorIs(t, autoErr, models.ErrMissionAlreadyAssigned)
			assert.Equal(t, models.MethodAdminManual, m.AssignmentMethod)
			require.NotNil(t, m.AssignedProviderID)
			assert.Equal(t, "p2", *m.AssignedProviderID)
		} else {
			assert.ErrorIs(t, manualErr, models.ErrMissionAlreadyAssigned)
			assert.Equal(t, models.MethodAutoMatch, m.AssignmentMethod)
			assert.Equal(t, models.StatusSearchingProvider, req.Status)
		}
	}
}

func TestCancellationDuringAutoMatchWins(t *testing.T) {
	f := newFixture(t)
	f.seed("r1", "Paris", models.StatusNew)
	f.matcher.results["Paris"] = parisCandidates()
	f.matcher.during = func() {
		r := f.repo.request("r1")
		r.Status = models.StatusCancelled
		r.UpdatedAt = r.UpdatedAt.Add(time.Second)
		f.repo.putRequest(r)
	}

	_, err := f.svc.AutoAssign(context.Background(), "r1")
	assert.ErrorIs(t, err, models.ErrInvalidTransition)

	req := f.repo.request("r1")
	assert.Equal(t, models.StatusCancelled, req.Status)
	assert.Nil(t, req.AssignedProviderID)
	assert.Nil(t, f.repo.mission("r1"))
	assert.Empty(t, f.dispatcher.all())
}

func TestAcceptAfterCancellationBindsNothing(t *testing.T) {
	f := newFixture(t)
	f.seed("r1", "Paris", models.StatusNew)
	f.matcher.results["Paris"] = parisCandidates()
	_, err := f.svc.AutoAssign(context.Background(), "r1")
	require.NoError(t, err)

	r := f.repo.request("r1")
	r.Status = models.StatusCancelled
	f.repo.putRequest(r)

	_, err = f.svc.AcceptMission(context.Background(), "r1", prov1)
	assert.ErrorIs(t, err, models.ErrInvalidTransition)
	assert.Nil(t, f.repo.request("r1").AssignedProviderID)
	assert.Nil(t, f.repo.mission("r1").AssignedProviderID)
}

// ----------------------------------------------------------------------------
// accept / decline / timeout
// ----------------------------------------------------------------------------
func TestAcceptMission(t *testing.T) {
	f := newFixture(t)
	f.seed("r1", "Paris", models.StatusNew)
	f.matcher.results["Paris"] = parisCandidates()
	_, err := f.svc.AutoAssign(context.Background(), "r1")
	require.NoError(t, err)

	_, err = f.svc.AcceptMission(context.Background(), "r1", prov2)
	assert.ErrorIs(t, err, models.ErrNotOffered, "p2 is ranked but not yet notified")

	_, err = f.svc.AcceptMission(context.Background(), "r1", admin)
	assert.ErrorIs(t, err, models.ErrForbidden)

	req, err := f.svc.AcceptMission(context.Background(), "r1", prov1)
	require.NoError(t, err)
	assert.Equal(t, models.StatusAwaitingClientConfirmation, req.Status)
	assert.Equal(t, "p1", *req.AssignedProviderID)

	m := f.repo.mission("r1")
	assert.Equal(t, "p1", *m.AssignedProviderID)
	assert.Nil(t, m.ResponseDeadline)
	assert.Equal(t, 1, m.ResponsesReceived)

	_, err = f.svc.AcceptMission(context.Background(), "r1", prov1)
	assert.ErrorIs(t, err, models.ErrMissionAlreadyAssigned)

	sent := f.dispatcher.all()
	require.Len(t, sent, 2)
	assert.Equal(t, models.StatusAwaitingClientConfirmation, sent[1].Status)
}

func TestDeclineEscalatesThenUnmatched(t *testing.T) {
	f := newFixture(t)
	f.seed("r1", "Paris", models.StatusNew)
	f.matcher.results["Paris"] = parisCandidates()
	_, err := f.svc.AutoAssign(context.Background(), "r1")
	require.NoError(t, err)

	m, err := f.svc.DeclineMission(context.Background(), "r1", prov1)
	require.NoError(t, err)
	assert.Equal(t, []string{"p1"}, m.DeclinedProviders)
	assert.Equal(t, 2, m.NotifiedCount)
	assert.Equal(t, models.StatusSearchingProvider, f.repo.request("r1").Status)

	sent := f.dispatcher.all()
	require.Len(t, sent, 2)
	assert.Equal(t, notifications.TemplateProviderNewMission, sent[1].Template)
	require.Len(t, sent[1].Recipients, 1)
	assert.Equal(t, "p2", sent[1].Recipients[0].ID)

	// declining twice is a no-op
	_, err = f.svc.DeclineMission(context.Background(), "r1", prov1)
	require.NoError(t, err)
	assert.Len(t, f.dispatcher.all(), 2)

	_, err = f.svc.DeclineMission(context.Background(), "r1", prov2)
	require.NoError(t, err)
	assert.Equal(t, models.StatusUnmatched, f.repo.request("r1").Status)
	assert.Equal(t, []string{models.AlertAcceptanceTimeout}, f.repo.alertKinds())
	assert.Nil(t, f.repo.mission("r1").ResponseDeadline)

	sent = f.dispatcher.all()
	require.Len(t, sent, 3)
	assert.Equal(t, notifications.TemplateAdminUnmatchedAlert, sent[2].Template)
}

func TestExpireOverdue(t *testing.T) {
	f := newFixture(t)
	f.seed("r1", "Paris", models.StatusNew)
	f.matcher.results["Paris"] = parisCandidates()
	_, err := f.svc.AutoAssign(context.Background(), "r1")
	require.NoError(t, err)

	n, err := f.svc.ExpireOverdue(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n, "deadline not reached")

	f.clock = f.clock.Add(6 * time.Minute)
	n, err = f.svc.ExpireOverdue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	m := f.repo.mission("r1")
	assert.Equal(t, []string{"p1", "p2"}, m.Notified())
	assert.Equal(t, f.clock.Add(5*time.Minute), *m.ResponseDeadline)
	assert.Equal(t, models.StatusSearchingProvider, f.repo.request("r1").Status)

	f.clock = f.clock.Add(6 * time.Minute)
	n, err = f.svc.ExpireOverdue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, models.StatusUnmatched, f.repo.request("r1").Status)
	assert.Equal(t, []string{models.AlertAcceptanceTimeout}, f.repo.alertKinds())

	var kinds []string
	for _, ev := range f.repo.events {
		kinds = append(kinds, ev.Kind)
	}
	assert.Equal(t, []string{models.EventAssignment, models.EventTimeout, models.EventTimeout}, kinds)
}

func TestExpireOverdueSkipsCancelledRequest(t *testing.T) {
	f := newFixture(t)
	f.seed("r1", "Paris", models.StatusNew)
	f.matcher.results["Paris"] = parisCandidates()
	_, err := f.svc.AutoAssign(context.Background(), "r1")
	require.NoError(t, err)

	r := f.repo.request("r1")
	r.Status = models.StatusCancelled
	f.repo.putRequest(r)

	f.clock = f.clock.Add(10 * time.Minute)
	_, err = f.svc.ExpireOverdue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, f.repo.request("r1").Status)
	assert.Nil(t, f.repo.mission("r1").ResponseDeadline)
	assert.Empty(t, f.repo.alertKinds())
}

// ----------------------------------------------------------------------------
// bulk
// ----------------------------------------------------------------------------
func TestBulkAssign(t *testing.T) {
	f := newFixture(t)
	f.seed("R1", "Paris", models.StatusNew)
	f.seed("R2", "Brest", models.StatusNew)
	f.seed("R3", "Boulogne", models.StatusNew)
	f.matcher.results["Paris"] = parisCandidates()
	f.matcher.results["Boulogne"] = []matching.Candidate{{ProviderID: "p1", Score: 70}}

	results := f.svc.BulkAssign(context.Background(), []string{"R1", "R2", "R3"})
	require.Len(t, results, 3)

	assert.Equal(t, "R1", results[0].RequestID)
	assert.True(t, results[0].Success)
	assert.Equal(t, "R2", results[1].RequestID)
	assert.False(t, results[1].Success)
	assert.Equal(t, "no_eligible_providers", results[1].Code)
	assert.Equal(t, "R3", results[2].RequestID)
	assert.True(t, results[2].Success)

	assert.Equal(t, models.StatusSearchingProvider, f.repo.request("R1").Status)
	assert.Equal(t, models.StatusUnmatched, f.repo.request("R2").Status)
	assert.Equal(t, models.StatusSearchingProvider, f.repo.request("R3").Status)
}

func TestBulkAssignReportsUnknownRequests(t *testing.T) {
	f := newFixture(t)
	results := f.svc.BulkAssign(context.Background(), []string{"missing"})
	require.Len(t, results, 1)
	assert.False(t, results[0].Success)
	assert.Equal(t, "not_found", results[0].Code)
}

// ----------------------------------------------------------------------------
// candidates
// ----------------------------------------------------------------------------
func TestCandidatesKeepsIncompatibleProviders(t *testing.T) {
	f := newFixture(t)
	f.seed("r1", "Boulogne", models.StatusNew)

	list, err := f.svc.Candidates(context.Background(), "r1")
	require.NoError(t, err)
	require.Len(t, list, 2, "unverified p3 is excluded")
	assert.Equal(t, "p1", list[0].Provider.ID)
	assert.True(t, list[0].LocationMatch)
	assert.Equal(t, "p2", list[1].Provider.ID)
	assert.False(t, list[1].LocationMatch)
}

// ----------------------------------------------------------------------------
// handler
// ----------------------------------------------------------------------------
func serve(t *testing.T, f *fixture, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	h := NewHandler(f.svc)
	actor := func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.Set(httpx.KeyUserID, "a1")
			c.Set(httpx.KeyUserRole, models.RoleAdmin)
			return next(c)
		}
	}
	h.RegisterRoutes(e.Group("/api/admin", actor), e.Group("/api/provider", actor))

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestHandlerAutoAssignUnmatched(t *testing.T) {
	f := newFixture(t)
	f.seed("r1", "Brest", models.StatusNew)

	rec := serve(t, f, http.MethodPost, "/api/admin/requests/r1/auto-assign", "")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	var res models.AssignmentResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.False(t, res.Success)
	assert.Equal(t, models.StatusUnmatched, res.Status)
}

func TestHandlerAssignManually(t *testing.T) {
	f := newFixture(t)
	f.seed("r1", "Paris", models.StatusNew)

	rec := serve(t, f, http.MethodPost, "/api/admin/requests/r1/assign", `{"provider_id":"not-a-uuid"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	f.repo.providers["7f1c2b9e-0d3a-4c55-9a8e-2f6b1d4e5a10"] = &models.Provider{
		ID: "7f1c2b9e-0d3a-4c55-9a8e-2f6b1d4e5a10", Email: "x@example.com", Status: models.ProviderSuspended, IsVerified: true,
	}
	rec = serve(t, f, http.MethodPost, "/api/admin/requests/r1/assign", `{"provider_id":"7f1c2b9e-0d3a-4c55-9a8e-2f6b1d4e5a10"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "ineligible_provider")

	f.repo.providers["7f1c2b9e-0d3a-4c55-9a8e-2f6b1d4e5a10"].Status = models.ProviderActive
	rec = serve(t, f, http.MethodPost, "/api/admin/requests/r1/assign", `{"provider_id":"7f1c2b9e-0d3a-4c55-9a8e-2f6b1d4e5a10"}`)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = serve(t, f, http.MethodPost, "/api/admin/requests/r1/assign", `{"provider_id":"7f1c2b9e-0d3a-4c55-9a8e-2f6b1d4e5a10"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "mission_already_assigned")
}

func TestHandlerBulkAssignValidates(t *testing.T) {
	f := newFixture(t)
	rec := serve(t, f, http.MethodPost, "/api/admin/requests/bulk-assign", `{"request_ids":[]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
