package notify

import (
	"context"
	"errors"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/huurscout/huurscout/pkg/config"
	"github.com/huurscout/huurscout/pkg/metrics"
	"github.com/huurscout/huurscout/pkg/store"
)

const (
	queueRetention = 30 * 24 * time.Hour
	gcSchedule     = "30 3 * * *"
	transientWait  = time.Second
)

// Deps wires the worker's collaborators.
type Deps struct {
	Queue     Queue
	Users     UserDirectory
	Transport Transport
	Metrics   *metrics.Metrics
	Cfg       *config.Config
	Log       zerolog.Logger
	Now       func() time.Time
	Sleep     func(ctx context.Context, d time.Duration) error
}

// Worker drains the notification queue in batches.
type Worker struct {
	deps Deps
	log  zerolog.Logger
	cron *cron.Cron
}

// New builds a Worker with defaults filled in.
func New(deps Deps) *Worker {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Sleep == nil {
		deps.Sleep = func(ctx context.Context, d time.Duration) error {
			timer := time.NewTimer(d)
			defer timer.Stop()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-timer.C:
				return nil
			}
		}
	}
	return &Worker{
		deps: deps,
		log:  deps.Log.With().Str("component", "notify_worker").Logger(),
	}
}

// Run processes batches until the context is cancelled. Queue GC runs
// daily on its own schedule.
func (w *Worker) Run(ctx context.Context) error {
	w.cron = cron.New()
	if _, err := w.cron.AddFunc(gcSchedule, func() { w.gc(ctx) }); err != nil {
		return err
	}
	w.cron.Start()
	defer w.cron.Stop()

	interval := time.Duration(w.deps.Cfg.Notify.IntervalSecs) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if _, err := w.RunBatch(ctx); err != nil && ctx.Err() == nil {
			w.log.Error().Err(err).Msg("Batch failed")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunBatch picks and delivers one batch of pending notifications.
// Returns the number of successful sends.
func (w *Worker) RunBatch(ctx context.Context) (int, error) {
	defer w.updateQueueDepth(ctx)
	pending, err := w.deps.Queue.PickPending(ctx, w.deps.Cfg.Notify.BatchSize)
	if err != nil {
		return 0, err
	}
	if len(pending) == 0 {
		return 0, nil
	}

	// Per-user sent counts, loaded once per batch and bumped locally on
	// success so one batch cannot overshoot the cap.
	sentToday := make(map[int64]int)
	dayAgo := w.deps.Now().Add(-24 * time.Hour)

	sent := 0
	for i, n := range pending {
		if ctx.Err() != nil {
			return sent, ctx.Err()
		}
		count, known := sentToday[n.UserID]
		if !known {
			count, err = w.deps.Queue.DailySentCount(ctx, n.UserID, dayAgo)
			if err != nil {
				w.log.Error().Err(err).Int64("user_id", n.UserID).Msg("Loading daily count failed")
				continue
			}
			sentToday[n.UserID] = count
		}
		if count >= w.deps.Cfg.Notify.DailyCap {
			if err := w.deps.Queue.MarkRateLimited(ctx, n.ID); err != nil {
				w.log.Error().Err(err).Int64("entry", n.ID).Msg("Marking rate limited failed")
			}
			w.count("rate_limited")
			continue
		}

		if err := w.deps.Queue.MarkProcessing(ctx, n.ID); err != nil {
			w.log.Error().Err(err).Int64("entry", n.ID).Msg("Marking processing failed")
			continue
		}
		if err := w.deliver(ctx, n.UserID, BuildMessage(n)); err != nil {
			w.fail(ctx, n.ID, n.UserID, err)
		} else {
			sent++
			sentToday[n.UserID]++
			if err := w.deps.Queue.MarkSent(ctx, n.ID); err != nil {
				w.log.Error().Err(err).Int64("entry", n.ID).Msg("Marking sent failed")
			}
			if err := w.deps.Queue.RecordSent(ctx, n.UserID, n.PropertyID); err != nil {
				w.log.Error().Err(err).Int64("entry", n.ID).Msg("Recording history failed")
			}
			w.count("sent")
		}

		if i < len(pending)-1 {
			delay := time.Duration(w.deps.Cfg.Notify.SendDelayMs) * time.Millisecond
			if err := w.deps.Sleep(ctx, delay); err != nil {
				return sent, err
			}
		}
	}
	return sent, nil
}

// deliver sends one message with transient retries. Permanent errors
// return immediately.
func (w *Worker) deliver(ctx context.Context, chatID int64, msg Message) error {
	var err error
	for attempt := 1; attempt <= w.deps.Cfg.Notify.RetryAttempts; attempt++ {
		err = w.send(ctx, chatID, msg)
		if err == nil || errors.Is(err, ErrUserBlocked) || errors.Is(err, ErrBadRequest) {
			return err
		}
		if attempt < w.deps.Cfg.Notify.RetryAttempts {
			if serr := w.deps.Sleep(ctx, transientWait); serr != nil {
				return serr
			}
		}
	}
	return err
}

func (w *Worker) send(ctx context.Context, chatID int64, msg Message) error {
	if msg.PhotoURL != "" && msg.fitsCaption() {
		return w.deps.Transport.SendPhoto(ctx, chatID, msg.PhotoURL, msg.HTML, msg.Buttons)
	}
	return w.deps.Transport.SendText(ctx, chatID, msg.HTML, msg.Buttons)
}

func (w *Worker) fail(ctx context.Context, entryID, userID int64, sendErr error) {
	if errors.Is(sendErr, ErrUserBlocked) {
		w.log.Info().Int64("user_id", userID).Msg("User blocked the bot, deactivating")
		if err := w.deps.Users.SetActive(ctx, userID, false); err != nil {
			w.log.Error().Err(err).Int64("user_id", userID).Msg("Deactivating user failed")
		}
	} else {
		w.log.Warn().Err(sendErr).Int64("entry", entryID).Msg("Delivery failed")
	}
	if err := w.deps.Queue.MarkFailed(ctx, entryID); err != nil {
		w.log.Error().Err(err).Int64("entry", entryID).Msg("Marking failed failed")
	}
	w.count("failed")
}

func (w *Worker) count(status string) {
	if w.deps.Metrics != nil {
		w.deps.Metrics.Notifications.WithLabelValues(status).Inc()
	}
}

// updateQueueDepth refreshes the per-status queue gauge after a batch.
// Every known status is set so drained ones drop back to zero.
func (w *Worker) updateQueueDepth(ctx context.Context) {
	if w.deps.Metrics == nil {
		return
	}
	counts, err := w.deps.Queue.CountByStatus(ctx)
	if err != nil {
		w.log.Error().Err(err).Msg("Counting queue statuses failed")
		return
	}
	for _, status := range []store.QueueStatus{
		store.StatusPending, store.StatusProcessing, store.StatusSent,
		store.StatusFailed, store.StatusRateLimited,
	} {
		w.deps.Metrics.QueueDepth.WithLabelValues(string(status)).Set(float64(counts[status]))
	}
}

// gc deletes terminal queue rows past the retention window.
func (w *Worker) gc(ctx context.Context) {
	deleted, err := w.deps.Queue.DeleteTerminalBefore(ctx, w.deps.Now().Add(-queueRetention))
	if err != nil {
		w.log.Error().Err(err).Msg("Queue GC failed")
		return
	}
	if deleted > 0 {
		w.log.Info().Int64("deleted", deleted).Msg("Queue GC done")
	}
}
