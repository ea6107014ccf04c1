package notifications

import (
	"context"
	"log"
	"time"

	"social-service/internal/bus"
	"social-service/internal/models"
	"social-service/internal/observability"
	"social-service/internal/repositories"
)

// CoalesceWindow is the trailing window within which same-type notifications
// for a user are merged into one row with an incremented count.
const CoalesceWindow = 60 * time.Second

// Notifier is what mutation paths use to alert users.
type Notifier interface {
	Notify(ctx context.Context, userID int, ntype, title, message string) (models.Notification, bool, error)
}

// Aggregator creates or coalesces notifications and publishes the matching
// event on the recipient's notification channel. It is the only writer of
// notification rows.
type Aggregator struct {
	repo repositories.NotificationRepository
	bus  bus.Bus
}

// NewAggregator constructs an Aggregator.
func NewAggregator(repo repositories.NotificationRepository, eventBus bus.Bus) *Aggregator {
	return &Aggregator{repo: repo, bus: eventBus}
}

// Notify records the event for the user. Repeats of the same (type, title)
// within the window bump the existing row instead of creating a new one, so
// bursty sources cannot spam the recipient. Returns the row and whether it
// was newly created; clients use the new/updated event distinction to decide
// between appending and mutating their local list.
func (a *Aggregator) Notify(ctx context.Context, userID int, ntype, title, message string) (models.Notification, bool, error) {
	notification, created, err := a.repo.CoalesceOrCreate(ctx, userID, ntype, title, message, coalescedSummary(ntype, message), CoalesceWindow)
	if err != nil {
		return models.Notification{}, false, err
	}

	event := models.EventNotificationUpdated
	if created {
		event = models.EventNewNotification
	}
	channel := bus.UserNotificationsChannel(userID)
	if err := a.bus.Publish(ctx, channel, event, notification); err != nil {
		log.Printf("notifications: publish %s on %s failed: %v", event, channel, err)
		observability.IncBusPublishError()
	}
	return notification, created, nil
}

// coalescedSummary is the message text used once a notification represents
// more than one event.
func coalescedSummary(ntype, latest string) string {
	if ntype == models.NotificationTypeMessage {
		return "You have multiple new messages"
	}
	return latest
}
