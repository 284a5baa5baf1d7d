package notificator

import (
	"context"
	"runtime/debug"

	"github.com/core-coin/solvere/internal/models"
	"github.com/core-coin/solvere/pkg/logger"
)

// Notificator fans a notification out to every configured channel.
// A nil channel is skipped.
type Notificator struct {
	logger *logger.Logger

	TelegramNotificator *TelegramNotificator
	EmailNotificator    *EmailNotificator
}

var _ models.NotificationService = (*Notificator)(nil)

func NewNotificator(logger *logger.Logger, telNotif *TelegramNotificator, emailNotif *EmailNotificator) *Notificator {
	return &Notificator{logger: logger.Named("notificator"), TelegramNotificator: telNotif, EmailNotificator: emailNotif}
}

// safeCall runs a function with panic recovery (synchronous, no goroutine spawning)
func (n *Notificator) safeCall(fn func(), context string) {
	defer func() {
		if r := recover(); r != nil {
			n.logger.Error("Function panicked",
				"context", context,
				"panic", r,
				"stack", string(debug.Stack()))
		}
	}()
	fn()
}

func (n *Notificator) SendNotification(ctx context.Context, notification *models.Notification) {
	if notification == nil {
		return
	}
	message := notification.String()
	if n.TelegramNotificator != nil {
		n.safeCall(func() { n.TelegramNotificator.SendNotification(ctx, message) }, "telegramNotification")
	}
	if n.EmailNotificator != nil {
		n.safeCall(func() { n.EmailNotificator.SendNotification(ctx, notification.Title, message) }, "emailNotification")
	}
}
