package usecase

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Severity string

const (
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

type Notification struct {
	RecipientID uuid.UUID `json:"recipient_id"`
	Title       string    `json:"title"`
	Message     string    `json:"message"`
	Severity    Severity  `json:"severity"`
	Category    string    `json:"category"`
}

// Notifier hands a notification to the delivery service.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// Publisher is satisfied by *mq.Publisher.
type Publisher interface {
	PublishJSON(ctx context.Context, key string, v any) error
}

type brokerNotifier struct {
	pub Publisher
}

// NewBrokerNotifier publishes each notification under "notification.<category>".
func NewBrokerNotifier(pub Publisher) Notifier {
	return &brokerNotifier{pub: pub}
}

func (n *brokerNotifier) Notify(ctx context.Context, note Notification) error {
	return n.pub.PublishJSON(ctx, "notification."+note.Category, note)
}

type logNotifier struct {
	log *zap.Logger
}

// NewLogNotifier only logs. Used when no broker is configured.
func NewLogNotifier(log *zap.Logger) Notifier {
	return &logNotifier{log: log.With(zap.String("component", "notifier"))}
}

func (n *logNotifier) Notify(_ context.Context, note Notification) error {
	n.log.Info("Notification",
		zap.String("recipient_id", note.RecipientID.String()),
		zap.String("title", note.Title),
		zap.String("category", note.Category),
		zap.String("severity", string(note.Severity)),
	)
	return nil
}

// NotificationDispatcher sends notifications off the request path.
// Failures are logged and never reach the caller.
type NotificationDispatcher struct {
	notifier Notifier
	timeout  time.Duration
	log      *zap.Logger
	wg       sync.WaitGroup
}

func NewNotificationDispatcher(notifier Notifier, timeout time.Duration, log *zap.Logger) *NotificationDispatcher {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &NotificationDispatcher{
		notifier: notifier,
		timeout:  timeout,
		log:      log.With(zap.String("component", "notification_dispatcher")),
	}
}

func (d *NotificationDispatcher) Dispatch(n Notification) {
	if d == nil || d.notifier == nil {
		return
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				d.log.Error("Notifier panicked", zap.Any("panic", r))
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()

		if err := d.notifier.Notify(ctx, n); err != nil {
			d.log.Warn("Failed to send notification",
				zap.Error(err),
				zap.String("recipient_id", n.RecipientID.String()),
				zap.String("category", n.Category),
			)
		}
	}()
}

// Wait blocks until every dispatched notification has finished.
func (d *NotificationDispatcher) Wait() {
	if d == nil {
		return
	}
	d.wg.Wait()
}
