package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type panickingNotifier struct{}

func (panickingNotifier) Notify(context.Context, Notification) error {
	panic("boom")
}

func TestBrokerNotifier_RoutesByCategory(t *testing.T) {
	pub := &recordingPublisher{}
	n := NewBrokerNotifier(pub)

	require.NoError(t, n.Notify(context.Background(), Notification{RecipientID: uuid.New(), Category: "booking"}))
	require.NoError(t, n.Notify(context.Background(), Notification{RecipientID: uuid.New(), Category: "payment"}))
	assert.Equal(t, []string{"notification.booking", "notification.payment"}, pub.keys)
}

func TestNotificationDispatcher_SurvivesPanics(t *testing.T) {
	d := NewNotificationDispatcher(panickingNotifier{}, time.Second, zap.NewNop())

	assert.NotPanics(t, func() {
		d.Dispatch(Notification{RecipientID: uuid.New(), Category: "booking"})
		d.Wait()
	})
}

func TestNotificationDispatcher_NilIsNoop(t *testing.T) {
	var d *NotificationDispatcher
	assert.NotPanics(t, func() {
		d.Dispatch(Notification{})
		d.Wait()
	})
}
