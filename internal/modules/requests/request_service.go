package requests

import (
	"context"
	"errors"
	"fmt"
	"time"

	"family-booking/internal/models"
	"family-booking/internal/notifications"
	"family-booking/pkg/payment"

	"github.com/sirupsen/logrus"
)

// maxStatusRetries bounds compare-and-swap retries on concurrent status writes.
const maxStatusRetries = 3

// ServiceInterface defines the request lifecycle operations exposed to handlers.
type ServiceInterface interface {
	CreateRequest(ctx context.Context, clientID string, req models.CreateServiceRequest) (*models.ServiceRequest, error)
	GetRequest(ctx context.Context, id string, actor models.Actor) (*models.ServiceRequest, error)
	ListEvents(ctx context.Context, id string) ([]*models.RequestEvent, error)
	ListMine(ctx context.Context, clientID string, page, limit int) ([]*models.ServiceRequest, int, error)
	ListRequests(ctx context.Context, filter models.RequestFilter, page, limit int) ([]*models.ServiceRequest, int, error)
	Confirm(ctx context.Context, id string, actor models.Actor, req models.ConfirmRequest) (*models.ServiceRequest, error)
	Cancel(ctx context.Context, id string, actor models.Actor) (*models.ServiceRequest, error)
	Dispute(ctx context.Context, id string, actor models.Actor, req models.DisputeRequest) (*models.ServiceRequest, error)
	Resolve(ctx context.Context, id string, actor models.Actor, req models.ResolveDisputeRequest) (*models.ServiceRequest, error)
	Start(ctx context.Context, id string, actor models.Actor) (*models.ServiceRequest, error)
	Complete(ctx context.Context, id string, actor models.Actor) (*models.ServiceRequest, error)
	SendReminders(ctx context.Context) (int, error)
}

// ProviderLookup reads providers from the directory.
type ProviderLookup interface {
	FindByID(ctx context.Context, id string) (*models.Provider, error)
}

// AutoAssigner starts automatic matching for a new request.
type AutoAssigner interface {
	AutoAssign(ctx context.Context, requestID string) (*models.AssignmentResult, error)
}

type Options struct {
	AutoAssignOnCreate bool
	Currency           string
}

// Service implements the request lifecycle.
type Service struct {
	repo      RepositoryInterface
	providers ProviderLookup
	assigner  AutoAssigner
	payments  payment.ServiceInterface
	announcer *Announcer
	opts      Options
	log       *logrus.Entry

	// Now is the clock; tests replace it.
	Now func() time.Time
}

// NewService creates a request service. assigner may be nil.
func NewService(repo RepositoryInterface, providers ProviderLookup, assigner AutoAssigner, payments payment.ServiceInterface, announcer *Announcer, opts Options, log *logrus.Entry) *Service {
	if opts.Currency == "" {
		opts.Currency = "eur"
	}
	return &Service{
		repo:      repo,
		providers: providers,
		assigner:  assigner,
		payments:  payments,
		announcer: announcer,
		opts:      opts,
		log:       log.WithField("module", "requests"),
		Now:       time.Now,
	}
}

// SetAssigner wires the coordinator after construction; the two services
// depend on each other.
func (s *Service) SetAssigner(a AutoAssigner) {
	s.assigner = a
}

// CreateRequest stores a new request and, when enabled, starts automatic matching.
func (s *Service) CreateRequest(ctx context.Context, clientID string, in models.CreateServiceRequest) (*models.ServiceRequest, error) {
	var req *models.ServiceRequest
	err := s.repo.InTx(ctx, func(repo RepositoryInterface) error {
		created, err := repo.Create(ctx, clientID, in)
		if err != nil {
			return err
		}
		to := created.Status
		req = created
		return repo.AppendEvent(ctx, &models.RequestEvent{
			RequestID: created.ID,
			Kind:      models.EventTransition,
			ToStatus:  &to,
			ActorID:   clientID,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("service.CreateRequest: %w", err)
	}
	s.announcer.Changed(ctx, req, "")
	s.log.WithFields(logrus.Fields{"request_id": req.ID, "service_type": req.ServiceType}).Info("request created")

	if !s.opts.AutoAssignOnCreate || s.assigner == nil {
		return req, nil
	}
	if _, err := s.assigner.AutoAssign(ctx, req.ID); err != nil {
		s.log.WithError(err).WithField("request_id", req.ID).Info("automatic matching did not bind a provider")
	}
	return s.repo.FindByID(ctx, req.ID)
}

// GetRequest returns a request if actor may see it.
func (s *Service) GetRequest(ctx context.Context, id string, actor models.Actor) (*models.ServiceRequest, error) {
	req, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canView(req, actor) {
		return nil, models.ErrForbidden
	}
	return req, nil
}

func canView(req *models.ServiceRequest, actor models.Actor) bool {
	switch actor.Role {
	case models.RoleAdmin:
		return true
	case models.RoleClient:
		return req.ClientID == actor.ID
	case models.RoleProvider:
		return actor.IsProvider(req.AssignedProviderID)
	}
	return false
}

func (s *Service) ListEvents(ctx context.Context, id string) ([]*models.RequestEvent, error) {
	return s.repo.ListEvents(ctx, id)
}

func (s *Service) ListMine(ctx context.Context, clientID string, page, limit int) ([]*models.ServiceRequest, int, error) {
	return s.repo.List(ctx, models.RequestFilter{ClientID: clientID}, page, limit)
}

func (s *Service) ListRequests(ctx context.Context, filter models.RequestFilter, page, limit int) ([]*models.ServiceRequest, int, error) {
	return s.repo.List(ctx, filter, page, limit)
}

// change describes one lifecycle move. check runs against the freshly read
// row on every attempt and may adjust non-status fields.
type change struct {
	to     models.RequestStatus
	actor  models.Actor
	reason string
	check  func(req *models.ServiceRequest) error
}

// transition applies c with compare-and-swap on the previous status,
// re-reading and re-validating on conflict. The transition and its event are
// written in one transaction; side effects run after commit.
func (s *Service) transition(ctx context.Context, id string, c change) (*models.ServiceRequest, error) {
	for attempt := 0; attempt < maxStatusRetries; attempt++ {
		req, err := s.repo.FindByID(ctx, id)
		if err != nil {
			return nil, err
		}
		from := req.Status
		prevProvider := req.AssignedProviderID

		if c.check != nil {
			if err := c.check(req); err != nil {
				return nil, err
			}
		}
		if err := req.ApplyTransition(c.to, s.Now()); err != nil {
			return nil, err
		}
		if err := req.CheckAssignment(); err != nil {
			return nil, &models.InvalidTransitionError{From: from, To: c.to}
		}

		err = s.repo.InTx(ctx, func(repo RepositoryInterface) error {
			if err := repo.UpdateStatus(ctx, req, from); err != nil {
				return err
			}
			to := req.Status
			ev := &models.RequestEvent{
				RequestID:  req.ID,
				Kind:       models.EventTransition,
				FromStatus: &from,
				ToStatus:   &to,
				ActorID:    c.actor.ID,
			}
			if c.reason != "" {
				ev.Payload = map[string]any{"reason": c.reason}
			}
			return repo.AppendEvent(ctx, ev)
		})
		if errors.Is(err, models.ErrStatusConflict) {
			s.log.WithFields(logrus.Fields{"request_id": id, "attempt": attempt + 1}).Debug("status changed concurrently, retrying")
			continue
		}
		if err != nil {
			return nil, err
		}

		s.announce(ctx, req, from, prevProvider, c.reason)
		return req, nil
	}
	return nil, models.ErrStatusConflict
}

func (s *Service) announce(ctx context.Context, req *models.ServiceRequest, from models.RequestStatus, providerID *string, reason string) {
	parties := notifications.Parties{Reason: reason}
	if providerID != nil {
		p, err := s.providers.FindByID(ctx, *providerID)
		if err != nil {
			s.log.WithError(err).WithField("provider_id", *providerID).Warn("load provider for notification")
		} else {
			parties.Provider = p
		}
	}
	s.announcer.Transition(ctx, req, from, parties)
}

// Confirm charges the client and moves awaiting_client_confirmation to confirmed.
func (s *Service) Confirm(ctx context.Context, id string, actor models.Actor, in models.ConfirmRequest) (*models.ServiceRequest, error) {
	req, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if actor.Role != models.RoleClient || req.ClientID != actor.ID {
		return nil, models.ErrForbidden
	}
	if req.Status != models.StatusAwaitingClientConfirmation || req.AssignedProviderID == nil {
		return nil, &models.InvalidTransitionError{From: req.Status, To: models.StatusConfirmed}
	}

	provider, err := s.providers.FindByID(ctx, *req.AssignedProviderID)
	if err != nil {
		return nil, fmt.Errorf("service.Confirm: load provider: %w", err)
	}
	amount, err := ChargeAmount(req, provider)
	if err != nil {
		return nil, err
	}
	intentID, err := s.payments.Charge(ctx, payment.ChargeRequest{
		RequestID:       req.ID,
		ClientID:        req.ClientID,
		Amount:          amount,
		Currency:        s.opts.Currency,
		PaymentMethodID: in.PaymentMethodID,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrPaymentFailed, err)
	}

	confirmed, err := s.transition(ctx, id, change{
		to:    models.StatusConfirmed,
		actor: actor,
		check: func(r *models.ServiceRequest) error {
			if r.Status != models.StatusAwaitingClientConfirmation {
				return &models.InvalidTransitionError{From: r.Status, To: models.StatusConfirmed}
			}
			r.PaymentStatus = models.PaymentPaid
			r.PaymentIntentID = &intentID
			return nil
		},
	})
	if err != nil {
		// the booking moved on while the card was charged
		if _, rerr := s.payments.Refund(ctx, id, intentID); rerr != nil {
			s.log.WithError(rerr).WithField("request_id", id).Error("refund after failed confirmation")
		}
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"request_id": id, "amount": amount}).Info("request confirmed and paid")
	return confirmed, nil
}

// Cancel moves any non-terminal request to cancelled and refunds a paid booking.
func (s *Service) Cancel(ctx context.Context, id string, actor models.Actor) (*models.ServiceRequest, error) {
	req, err := s.transition(ctx, id, change{
		to:    models.StatusCancelled,
		actor: actor,
		check: func(r *models.ServiceRequest) error {
			if actor.Role == models.RoleAdmin || (actor.Role == models.RoleClient && r.ClientID == actor.ID) {
				return nil
			}
			return models.ErrForbidden
		},
	})
	if err != nil {
		return nil, err
	}
	// a disputed booking's payment is blocked but still held
	held := req.PaymentStatus == models.PaymentPaid || req.PaymentStatus == models.PaymentBlocked
	if held && req.PaymentIntentID != nil {
		s.refund(ctx, req)
	}
	return req, nil
}

func (s *Service) refund(ctx context.Context, req *models.ServiceRequest) {
	res, err := s.payments.Refund(ctx, req.ID, *req.PaymentIntentID)
	if err != nil {
		s.log.WithError(err).WithField("request_id", req.ID).Error("refund failed")
		return
	}
	req.PaymentStatus = models.PaymentRefunded
	if err := s.repo.UpdatePayment(ctx, req); err != nil {
		s.log.WithError(err).WithField("request_id", req.ID).Error("record refund")
		return
	}
	s.announcer.Send(ctx, notifications.Refund(req, res.Amount, res.Currency))
}

// Dispute is raised by the client or the bound provider. A paid booking's
// payment is blocked until resolution.
func (s *Service) Dispute(ctx context.Context, id string, actor models.Actor, in models.DisputeRequest) (*models.ServiceRequest, error) {
	return s.transition(ctx, id, change{
		to:     models.StatusDispute,
		actor:  actor,
		reason: in.Reason,
		check: func(r *models.ServiceRequest) error {
			isClient := actor.Role == models.RoleClient && r.ClientID == actor.ID
			if !isClient && !actor.IsProvider(r.AssignedProviderID) && actor.Role != models.RoleAdmin {
				return models.ErrForbidden
			}
			if r.PaymentStatus == models.PaymentPaid {
				r.PaymentStatus = models.PaymentBlocked
			}
			return nil
		},
	})
}

// Resolve closes a dispute as confirmed or completed. Only a dispute over a
// booking the client already paid can be resolved as confirmed.
func (s *Service) Resolve(ctx context.Context, id string, actor models.Actor, in models.ResolveDisputeRequest) (*models.ServiceRequest, error) {
	if actor.Role != models.RoleAdmin {
		return nil, models.ErrForbidden
	}
	return s.transition(ctx, id, change{
		to:     in.Outcome,
		actor:  actor,
		reason: in.Note,
		check: func(r *models.ServiceRequest) error {
			if r.Status != models.StatusDispute {
				return &models.InvalidTransitionError{From: r.Status, To: in.Outcome}
			}
			paid := r.PaymentStatus == models.PaymentPaid || r.PaymentStatus == models.PaymentBlocked
			if in.Outcome == models.StatusConfirmed && !paid {
				return &models.InvalidTransitionError{From: r.Status, To: in.Outcome}
			}
			if r.PaymentStatus == models.PaymentBlocked {
				r.PaymentStatus = models.PaymentPaid
			}
			return nil
		},
	})
}

// Start is called by the bound provider when the mission begins.
func (s *Service) Start(ctx context.Context, id string, actor models.Actor) (*models.ServiceRequest, error) {
	return s.transition(ctx, id, change{to: models.StatusInProgress, actor: actor, check: boundProvider(actor)})
}

// Complete is called by the bound provider when the mission ends.
func (s *Service) Complete(ctx context.Context, id string, actor models.Actor) (*models.ServiceRequest, error) {
	return s.transition(ctx, id, change{to: models.StatusCompleted, actor: actor, check: boundProvider(actor)})
}

func boundProvider(actor models.Actor) func(*models.ServiceRequest) error {
	return func(r *models.ServiceRequest) error {
		if actor.Role == models.RoleAdmin || actor.IsProvider(r.AssignedProviderID) {
			return nil
		}
		return models.ErrForbidden
	}
}

// SendReminders sends booking_reminder for every confirmed booking scheduled
// tomorrow. Each request is reminded once.
func (s *Service) SendReminders(ctx context.Context) (int, error) {
	now := s.Now().UTC()
	tomorrow := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1)

	due, err := s.repo.ListDueReminders(ctx, tomorrow)
	if err != nil {
		return 0, fmt.Errorf("service.SendReminders: %w", err)
	}

	sent := 0
	for _, req := range due {
		var provider *models.Provider
		if req.AssignedProviderID != nil {
			if provider, err = s.providers.FindByID(ctx, *req.AssignedProviderID); err != nil {
				s.log.WithError(err).WithField("request_id", req.ID).Warn("load provider for reminder")
			}
		}
		s.announcer.Send(ctx, notifications.Reminder(req, provider))
		if err := s.repo.MarkReminderSent(ctx, req.ID, now); err != nil {
			return sent, fmt.Errorf("service.SendReminders: %w", err)
		}
		sent++
	}
	s.log.WithField("count", sent).Info("booking reminders sent")
	return sent, nil
}
