package notifications

import (
	"context"
	"errors"
	"fmt"

	"family-booking/internal/models"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// AlertRecorder stores admin alerts for failed deliveries.
type AlertRecorder interface {
	RecordAlert(ctx context.Context, requestID *string, kind, message string) error
}

// Direct delivers notifications inline, one Send per recipient. Delivery
// failures are logged and recorded as admin alerts but never returned.
type Direct struct {
	sender Sender
	alerts AlertRecorder
	log    *logrus.Entry
}

func NewDirect(sender Sender, alerts AlertRecorder, log *logrus.Entry) *Direct {
	return &Direct{sender: sender, alerts: alerts, log: log.WithField("module", "notifications")}
}

func (d *Direct) Dispatch(ctx context.Context, n Notification) error {
	d.deliver(ctx, n)
	return nil
}

func (d *Direct) deliver(ctx context.Context, n Notification) int {
	sent := 0
	for _, to := range n.Recipients {
		id, err := d.sender.Send(ctx, n.Template, to, n.Data)
		if err != nil {
			d.fail(ctx, n, &models.NotificationDeliveryError{Template: n.Template, Recipient: to.Email, Err: err})
			continue
		}
		sent++
		d.log.WithFields(logrus.Fields{
			"template":   n.Template,
			"request_id": n.RequestID,
			"role":       to.Role,
			"message_id": id,
		}).Debug("notification sent")
	}
	return sent
}

func (d *Direct) fail(ctx context.Context, n Notification, err *models.NotificationDeliveryError) {
	d.log.WithError(err).WithFields(logrus.Fields{
		"template":   n.Template,
		"request_id": n.RequestID,
	}).Warn("notification delivery failed")

	if d.alerts == nil {
		return
	}
	var reqID *string
	if n.RequestID != "" {
		id := n.RequestID
		reqID = &id
	}
	if aerr := d.alerts.RecordAlert(ctx, reqID, models.AlertNotificationFailed, err.Error()); aerr != nil {
		d.log.WithError(aerr).Error("record notification alert")
	}
}

// ErrQueueFull is returned when the queue cannot accept more work.
var ErrQueueFull = errors.New("notification queue full")

// Queue is the asynchronous Dispatcher used by the server. Dispatch enqueues
// and returns; Run drains the queue with a fixed number of workers.
type Queue struct {
	direct  *Direct
	jobs    chan Notification
	workers int
}

func NewQueue(direct *Direct, workers, size int) *Queue {
	if workers < 1 {
		workers = 1
	}
	if size < 1 {
		size = 1
	}
	return &Queue{direct: direct, jobs: make(chan Notification, size), workers: workers}
}

func (q *Queue) Dispatch(ctx context.Context, n Notification) error {
	select {
	case q.jobs <- n:
		return nil
	default:
		err := &models.NotificationDeliveryError{Template: n.Template, Recipient: n.RequestID, Err: ErrQueueFull}
		q.direct.fail(ctx, n, err)
		return err
	}
}

// Run processes notifications until ctx is done, then delivers whatever is
// still buffered before returning.
func (q *Queue) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < q.workers; i++ {
		g.Go(func() error {
			for {
				select {
				case n := <-q.jobs:
					q.direct.deliver(context.WithoutCancel(gctx), n)
				case <-gctx.Done():
					return nil
				}
			}
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("notification workers: %w", err)
	}

	drain := context.WithoutCancel(ctx)
	for {
		select {
		case n := <-q.jobs:
			q.direct.deliver(drain, n)
		default:
			return nil
		}
	}
}
