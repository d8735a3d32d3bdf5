package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"family-booking/internal/models"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

// Claims are the access token claims. Subject is the account id.
type Claims struct {
	Role       string `json:"role"`
	ProviderID string `json:"provider_id,omitempty"`
	jwt.RegisteredClaims
}

type ServiceInterface interface {
	Login(ctx context.Context, req models.LoginRequest) (*models.LoginResponse, error)
	CreateAccount(ctx context.Context, email, password, role string, providerID *string) (*models.Account, error)
	IssueToken(account *models.Account) (string, error)
}

// Service handles authentication operations
type Service struct {
	repo   RepositoryInterface
	secret []byte
	ttl    time.Duration
	log    *logrus.Entry

	Now func() time.Time
}

func NewService(repo RepositoryInterface, secret string, ttl time.Duration, log *logrus.Entry) *Service {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Service{repo: repo, secret: []byte(secret), ttl: ttl, log: log.WithField("module", "auth"), Now: time.Now}
}

// HashPassword hashes a password using bcrypt
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// Login checks the credentials and issues an access token. Unknown emails and
// wrong passwords are indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, req models.LoginRequest) (*models.LoginResponse, error) {
	account, err := s.repo.FindByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrInvalidCredentials
		}
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(req.Password)); err != nil {
		s.log.WithField("account_id", account.ID).Info("login rejected")
		return nil, models.ErrInvalidCredentials
	}

	token, err := s.IssueToken(account)
	if err != nil {
		return nil, err
	}
	return &models.LoginResponse{Token: token, ExpiresIn: int64(s.ttl.Seconds()), Role: account.Role}, nil
}

// CreateAccount stores a new account with a hashed password.
func (s *Service) CreateAccount(ctx context.Context, email, password, role string, providerID *string) (*models.Account, error) {
	switch role {
	case models.RoleAdmin, models.RoleClient:
		providerID = nil
	case models.RoleProvider:
		if providerID == nil || *providerID == "" {
			return nil, errors.New("provider accounts need a provider id")
		}
	default:
		return nil, fmt.Errorf("unknown role %q", role)
	}
	if len(password) < 8 {
		return nil, errors.New("password must be at least 8 characters long")
	}

	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}
	account := &models.Account{
		Email:        strings.ToLower(strings.TrimSpace(email)),
		PasswordHash: hash,
		Role:         role,
		ProviderID:   providerID,
	}
	if err := s.repo.Create(ctx, account); err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"account_id": account.ID, "role": role}).Info("account created")
	return account, nil
}

// IssueToken signs an HS256 token for account.
func (s *Service) IssueToken(account *models.Account) (string, error) {
	now := s.Now()
	claims := Claims{
		Role: account.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   account.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	if account.ProviderID != nil {
		claims.ProviderID = *account.ProviderID
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("service.IssueToken: %w", err)
	}
	return signed, nil
}
