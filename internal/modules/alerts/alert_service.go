package alerts

import (
	"context"

	"family-booking/internal/models"

	"github.com/sirupsen/logrus"
)

type ServiceInterface interface {
	RecordAlert(ctx context.Context, requestID *string, kind, message string) error
	ListOpen(ctx context.Context, limit int) ([]*models.AdminAlert, error)
	Acknowledge(ctx context.Context, id string) (*models.AdminAlert, error)
}

type Service struct {
	repo RepositoryInterface
	log  *logrus.Entry
}

func NewService(repo RepositoryInterface, log *logrus.Entry) *Service {
	return &Service{repo: repo, log: log.WithField("module", "alerts")}
}

// RecordAlert stores an alert for the admin panel.
func (s *Service) RecordAlert(ctx context.Context, requestID *string, kind, message string) error {
	a := &models.AdminAlert{RequestID: requestID, Kind: kind, Message: message}
	if err := s.repo.Create(ctx, a); err != nil {
		return err
	}
	s.log.WithFields(logrus.Fields{"alert_id": a.ID, "kind": kind}).Info("admin alert raised")
	return nil
}

func (s *Service) ListOpen(ctx context.Context, limit int) ([]*models.AdminAlert, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.repo.ListOpen(ctx, limit)
}

func (s *Service) Acknowledge(ctx context.Context, id string) (*models.AdminAlert, error) {
	return s.repo.Acknowledge(ctx, id)
}
