package notifications

import (
	"context"

	"family-booking/internal/models"
)

// Template keys.
const (
	TemplateProviderNewMission       = "provider_new_mission"
	TemplateProviderMissionConfirmed = "provider_mission_confirmed"
	TemplateMissionStarted           = "mission_started"
	TemplateMissionCompleted         = "mission_completed"
	TemplateCancellation             = "cancellation"
	TemplateAdminUnmatchedAlert      = "admin_unmatched_alert"
	TemplateDisputeOpened            = "dispute_opened"
	TemplateBookingReminder          = "booking_reminder"
	TemplateRefundProcessed          = "refund_processed"
)

var templateByStatus = map[models.RequestStatus]string{
	models.StatusSearchingProvider:          TemplateProviderNewMission,
	models.StatusAwaitingClientConfirmation: TemplateProviderNewMission,
	models.StatusConfirmed:                  TemplateProviderMissionConfirmed,
	models.StatusInProgress:                 TemplateMissionStarted,
	models.StatusCompleted:                  TemplateMissionCompleted,
	models.StatusCancelled:                  TemplateCancellation,
	models.StatusUnmatched:                  TemplateAdminUnmatchedAlert,
	models.StatusDispute:                    TemplateDisputeOpened,
}

// TemplateFor returns the template sent when a request enters status.
func TemplateFor(status models.RequestStatus) (string, bool) {
	key, ok := templateByStatus[status]
	return key, ok
}

// Recipient roles.
const (
	RoleClient   = "client"
	RoleProvider = "provider"
	RoleAdmin    = "admin"
)

type Recipient struct {
	Role  string `json:"role"`
	ID    string `json:"id,omitempty"`
	Name  string `json:"name,omitempty"`
	Email string `json:"email"`
}

// Notification is one dispatch: a template, its payload and every recipient.
type Notification struct {
	Template   string               `json:"template"`
	RequestID  string               `json:"request_id"`
	Status     models.RequestStatus `json:"status,omitempty"`
	Recipients []Recipient          `json:"recipients"`
	Data       map[string]any       `json:"data"`
}

// Dispatcher accepts notifications. Implementations must not block on delivery
// failures; callers never roll back state because of them.
type Dispatcher interface {
	Dispatch(ctx context.Context, n Notification) error
}

// Sender delivers one rendered template to one recipient.
type Sender interface {
	Send(ctx context.Context, template string, to Recipient, payload map[string]any) (messageID string, err error)
}

// Parties are the people a transition may concern.
type Parties struct {
	// Provider is the provider bound to the request before the transition.
	Provider *models.Provider
	// Offered are the providers a mission was just offered to.
	Offered    []*models.Provider
	AdminEmail string
	Reason     string
}

// ForTransition builds the single notification sent when req enters its
// current status. ok is false when the status has no template.
func ForTransition(req *models.ServiceRequest, from models.RequestStatus, p Parties) (Notification, bool) {
	key, ok := TemplateFor(req.Status)
	if !ok {
		return Notification{}, false
	}

	client := Recipient{Role: RoleClient, ID: req.ClientID, Name: req.ClientName, Email: req.ClientEmail}
	admin := Recipient{Role: RoleAdmin, Email: p.AdminEmail}

	var to []Recipient
	switch req.Status {
	case models.StatusSearchingProvider:
		for _, op := range p.Offered {
			to = append(to, providerRecipient(op))
		}
	case models.StatusAwaitingClientConfirmation, models.StatusConfirmed:
		to = appendProvider(to, p.Provider)
		to = append(to, client)
	case models.StatusInProgress:
		to = append(to, client)
	case models.StatusCompleted:
		to = append(to, client)
		to = appendProvider(to, p.Provider)
	case models.StatusCancelled:
		to = append(to, client)
		to = appendProvider(to, p.Provider)
	case models.StatusUnmatched:
		to = append(to, admin)
	case models.StatusDispute:
		to = append(to, admin, client)
	}

	data := requestData(req)
	data["previous_status"] = string(from)
	if p.Provider != nil {
		data["provider_name"] = p.Provider.BusinessName
	}
	if p.Reason != "" {
		data["reason"] = p.Reason
	}

	return Notification{
		Template:   key,
		RequestID:  req.ID,
		Status:     req.Status,
		Recipients: to,
		Data:       data,
	}, true
}

// Reminder builds the day-before booking reminder.
func Reminder(req *models.ServiceRequest, provider *models.Provider) Notification {
	to := []Recipient{{Role: RoleClient, ID: req.ClientID, Name: req.ClientName, Email: req.ClientEmail}}
	to = appendProvider(to, provider)
	data := requestData(req)
	if provider != nil {
		data["provider_name"] = provider.BusinessName
	}
	return Notification{Template: TemplateBookingReminder, RequestID: req.ID, Status: req.Status, Recipients: to, Data: data}
}

// Refund builds the refund confirmation sent to the client.
func Refund(req *models.ServiceRequest, amount float64, currency string) Notification {
	data := requestData(req)
	data["amount"] = amount
	data["currency"] = currency
	return Notification{
		Template:   TemplateRefundProcessed,
		RequestID:  req.ID,
		Status:     req.Status,
		Recipients: []Recipient{{Role: RoleClient, ID: req.ClientID, Name: req.ClientName, Email: req.ClientEmail}},
		Data:       data,
	}
}

func requestData(req *models.ServiceRequest) map[string]any {
	return map[string]any{
		"request_id":     req.ID,
		"client_name":    req.ClientName,
		"service_type":   req.ServiceType,
		"location":       req.Location,
		"preferred_date": req.PreferredDate.Format("2006-01-02"),
		"window_start":   req.WindowStart,
		"window_end":     req.WindowEnd,
		"status":         string(req.Status),
	}
}

func providerRecipient(p *models.Provider) Recipient {
	return Recipient{Role: RoleProvider, ID: p.ID, Name: p.BusinessName, Email: p.Email}
}

func appendProvider(to []Recipient, p *models.Provider) []Recipient {
	if p == nil {
		return to
	}
	return append(to, providerRecipient(p))
}
