package providers

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"family-booking/internal/models"

	"github.com/sirupsen/logrus"
)

// ServiceInterface defines the provider directory operations exposed to handlers.
type ServiceInterface interface {
	ListProviders(ctx context.Context, status *models.ProviderStatus, page, limit int) ([]*models.Provider, int, error)
	UpdateStatus(ctx context.Context, id string, req models.ProviderStatusUpdateRequest) (*models.Provider, error)
}

// Service implements the provider directory logic.
type Service struct {
	repo RepositoryInterface
	log  *logrus.Entry
}

// NewService creates a provider service.
func NewService(repo RepositoryInterface, log *logrus.Entry) *Service {
	return &Service{repo: repo, log: log.WithField("module", "providers")}
}

func (s *Service) ListProviders(ctx context.Context, status *models.ProviderStatus, page, limit int) ([]*models.Provider, int, error) {
	providers, total, err := s.repo.List(ctx, status, page, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("service.ListProviders: %w", err)
	}
	return providers, total, nil
}

// UpdateStatus applies a moderation decision. Suspending or deactivating a
// provider does not touch requests already bound to it.
func (s *Service) UpdateStatus(ctx context.Context, id string, req models.ProviderStatusUpdateRequest) (*models.Provider, error) {
	p, err := s.repo.UpdateStatus(ctx, id, req.Status, req.IsVerified)
	if err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{
		"provider_id": id,
		"status":      p.Status,
		"is_verified": p.IsVerified,
	}).Info("provider moderated")
	return p, nil
}

// Compatible filters and orders providers for a request. Ineligible providers
// are dropped. Location-incompatible providers stay in the list with
// LocationMatch=false. Order is location match first, then performance score
// descending, then id.
func Compatible(req *models.ServiceRequest, providers []*models.Provider) []models.ProviderMatch {
	out := make([]models.ProviderMatch, 0, len(providers))
	for _, p := range providers {
		if !p.IsEligible() {
			continue
		}
		text, postal := LocationMatch(p, req)
		out = append(out, models.ProviderMatch{
			Provider:      p,
			LocationMatch: text || postal,
			TextMatch:     text,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.LocationMatch != b.LocationMatch {
			return a.LocationMatch
		}
		if a.Provider.PerformanceScore != b.Provider.PerformanceScore {
			return a.Provider.PerformanceScore > b.Provider.PerformanceScore
		}
		return a.Provider.ID < b.Provider.ID
	})
	return out
}

// LocationMatch reports whether the provider's coverage text contains the
// request location (case-insensitive) and whether the request postal code is
// one the provider serves.
func LocationMatch(p *models.Provider, req *models.ServiceRequest) (text, postal bool) {
	loc := strings.ToLower(strings.TrimSpace(req.Location))
	if loc != "" {
		text = strings.Contains(strings.ToLower(p.Coverage), loc)
	}
	if req.PostalCode != "" {
		for _, pc := range p.PostalCodes {
			if strings.EqualFold(strings.TrimSpace(pc), req.PostalCode) {
				postal = true
				break
			}
		}
	}
	return text, postal
}
