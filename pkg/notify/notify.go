// Package notify drains the notification queue: per-user daily caps,
// retrying delivery through a chat transport and recording outcomes.
package notify

import (
	"context"
	"errors"
	"time"

	"github.com/huurscout/huurscout/pkg/store"
)

// Sentinel errors transports map provider failures onto.
var (
	// ErrUserBlocked means the recipient blocked the bot; the user is
	// deactivated and the entry fails without retry.
	ErrUserBlocked = errors.New("user blocked the bot")
	// ErrBadRequest means the provider rejected the message itself;
	// retrying the same payload cannot succeed.
	ErrBadRequest = errors.New("message rejected")
)

// Button is one inline keyboard button. Exactly one of URL, CopyText
// and CallbackData is set.
type Button struct {
	Label        string
	URL          string
	CopyText     string
	CallbackData string
}

// Transport delivers messages to a chat provider.
type Transport interface {
	SendText(ctx context.Context, chatID int64, html string, buttons []Button) error
	SendPhoto(ctx context.Context, chatID int64, photoURL, caption string, buttons []Button) error
}

// Queue is the slice of the queue store the worker drives.
type Queue interface {
	PickPending(ctx context.Context, batch int) ([]*store.PendingNotification, error)
	MarkProcessing(ctx context.Context, id int64) error
	MarkSent(ctx context.Context, id int64) error
	MarkFailed(ctx context.Context, id int64) error
	MarkRateLimited(ctx context.Context, id int64) error
	DailySentCount(ctx context.Context, userID int64, since time.Time) (int, error)
	RecordSent(ctx context.Context, userID, propertyID int64) error
	DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error)
	CountByStatus(ctx context.Context) (map[store.QueueStatus]int, error)
}

// UserDirectory deactivates users who blocked the bot.
type UserDirectory interface {
	SetActive(ctx context.Context, userID int64, active bool) error
}
