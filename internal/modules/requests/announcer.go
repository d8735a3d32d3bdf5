package requests

import (
	"context"

	"family-booking/internal/models"
	"family-booking/internal/notifications"
	"family-booking/pkg/realtime"

	"github.com/sirupsen/logrus"
)

// Announcer runs the side effects of a committed transition: one change
// event on the realtime feed and one notification dispatch.
type Announcer struct {
	dispatcher notifications.Dispatcher
	publisher  realtime.Publisher
	adminEmail string
	log        *logrus.Entry
}

func NewAnnouncer(d notifications.Dispatcher, p realtime.Publisher, adminEmail string, log *logrus.Entry) *Announcer {
	if p == nil {
		p = realtime.Noop{}
	}
	return &Announcer{dispatcher: d, publisher: p, adminEmail: adminEmail, log: log.WithField("module", "announcer")}
}

// Transition announces that req moved from "from" to its current status. It
// returns the number of recipients the notification was addressed to.
// Failures are logged and never returned.
func (a *Announcer) Transition(ctx context.Context, req *models.ServiceRequest, from models.RequestStatus, p notifications.Parties) int {
	a.Changed(ctx, req, from)

	p.AdminEmail = a.adminEmail
	n, ok := notifications.ForTransition(req, from, p)
	if !ok {
		return 0
	}
	return a.Send(ctx, n)
}

// Changed publishes a change event only.
func (a *Announcer) Changed(ctx context.Context, req *models.ServiceRequest, from models.RequestStatus) {
	err := a.publisher.Publish(ctx, realtime.Change{
		RequestID: req.ID,
		OldStatus: string(from),
		NewStatus: string(req.Status),
		At:        req.UpdatedAt,
	})
	if err != nil {
		a.log.WithError(err).WithField("request_id", req.ID).Warn("publish change event")
	}
}

// Send dispatches a notification that is not tied to a transition.
func (a *Announcer) Send(ctx context.Context, n notifications.Notification) int {
	if err := a.dispatcher.Dispatch(ctx, n); err != nil {
		a.log.WithError(err).WithFields(logrus.Fields{
			"request_id": n.RequestID,
			"template":   n.Template,
		}).Warn("notification dispatch failed")
		return 0
	}
	return len(n.Recipients)
}
