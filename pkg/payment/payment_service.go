package payment

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/client"
)

// ServiceInterface defines the contract for a payment processing service.
type ServiceInterface interface {
	Charge(ctx context.Context, req ChargeRequest) (string, error)
	Refund(ctx context.Context, requestID, paymentIntentID string) (*RefundResult, error)
}

// ChargeRequest is one client payment for one booking.
type ChargeRequest struct {
	RequestID       string
	ClientID        string
	Amount          float64
	Currency        string
	PaymentMethodID string
}

type RefundResult struct {
	RefundID string
	Amount   float64
	Currency string
}

var ErrInvalidAmount = errors.New("invalid payment amount")

type paymentIntents interface {
	New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

type refunds interface {
	New(params *stripe.RefundParams) (*stripe.Refund, error)
}

// StripeService charges and refunds through the Stripe API.
type StripeService struct {
	intents paymentIntents
	refunds refunds
}

// NewStripeService creates a Stripe backed service for apiKey.
func NewStripeService(apiKey string) *StripeService {
	sc := &client.API{}
	sc.Init(apiKey, nil)
	return &StripeService{intents: sc.PaymentIntents, refunds: sc.Refunds}
}

func toMinorUnits(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

// Charge creates and confirms a PaymentIntent. The request id is the
// idempotency key so a retried confirmation never charges twice.
func (s *StripeService) Charge(ctx context.Context, req ChargeRequest) (string, error) {
	if req.Amount <= 0 {
		return "", ErrInvalidAmount
	}
	params := &stripe.PaymentIntentParams{
		Amount:             stripe.Int64(toMinorUnits(req.Amount)),
		Currency:           stripe.String(req.Currency),
		PaymentMethod:      stripe.String(req.PaymentMethodID),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		Confirm:            stripe.Bool(true),
	}
	params.Context = ctx
	params.SetIdempotencyKey("charge-" + req.RequestID)
	params.AddMetadata("request_id", req.RequestID)
	params.AddMetadata("client_id", req.ClientID)

	pi, err := s.intents.New(params)
	if err != nil {
		return "", fmt.Errorf("payment.Charge: %w", err)
	}
	if pi.Status != stripe.PaymentIntentStatusSucceeded {
		return "", fmt.Errorf("payment.Charge: payment intent %s is %s", pi.ID, pi.Status)
	}
	return pi.ID, nil
}

// Refund refunds the whole PaymentIntent.
func (s *StripeService) Refund(ctx context.Context, requestID, paymentIntentID string) (*RefundResult, error) {
	params := &stripe.RefundParams{PaymentIntent: stripe.String(paymentIntentID)}
	params.Context = ctx
	params.SetIdempotencyKey("refund-" + requestID)
	params.AddMetadata("request_id", requestID)

	r, err := s.refunds.New(params)
	if err != nil {
		return nil, fmt.Errorf("payment.Refund: %w", err)
	}
	return &RefundResult{RefundID: r.ID, Amount: float64(r.Amount) / 100, Currency: string(r.Currency)}, nil
}

// OfflineService accepts every charge without contacting a processor. It is
// wired when no Stripe key is configured.
type OfflineService struct {
	log *logrus.Entry
}

func NewOfflineService(log *logrus.Entry) *OfflineService {
	return &OfflineService{log: log.WithField("module", "payment")}
}

func (s *OfflineService) Charge(ctx context.Context, req ChargeRequest) (string, error) {
	if req.Amount <= 0 {
		return "", ErrInvalidAmount
	}
	id := "offline_" + uuid.NewString()
	s.log.WithFields(logrus.Fields{"request_id": req.RequestID, "amount": req.Amount, "intent": id}).Warn("offline charge recorded")
	return id, nil
}

func (s *OfflineService) Refund(ctx context.Context, requestID, paymentIntentID string) (*RefundResult, error) {
	s.log.WithFields(logrus.Fields{"request_id": requestID, "intent": paymentIntentID}).Warn("offline refund recorded")
	return &RefundResult{RefundID: "offline_" + uuid.NewString()}, nil
}
