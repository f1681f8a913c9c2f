package notify

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"

	"github.com/huurscout/huurscout/pkg/config"
	"github.com/huurscout/huurscout/pkg/listing"
	"github.com/huurscout/huurscout/pkg/metrics"
	"github.com/huurscout/huurscout/pkg/store"
)

type fakeQueue struct {
	pending  []*store.PendingNotification
	statuses map[int64]store.QueueStatus
	daily    map[int64]int
	recorded [][2]int64
}

func newFakeQueue() *fakeQueue {
	return &fakeQueue{statuses: make(map[int64]store.QueueStatus), daily: make(map[int64]int)}
}

func (q *fakeQueue) PickPending(_ context.Context, batch int) ([]*store.PendingNotification, error) {
	if len(q.pending) > batch {
		return q.pending[:batch], nil
	}
	return q.pending, nil
}
func (q *fakeQueue) MarkProcessing(_ context.Context, id int64) error {
	q.statuses[id] = store.StatusProcessing
	return nil
}
func (q *fakeQueue) MarkSent(_ context.Context, id int64) error {
	q.statuses[id] = store.StatusSent
	return nil
}
func (q *fakeQueue) MarkFailed(_ context.Context, id int64) error {
	q.statuses[id] = store.StatusFailed
	return nil
}
func (q *fakeQueue) MarkRateLimited(_ context.Context, id int64) error {
	q.statuses[id] = store.StatusRateLimited
	return nil
}
func (q *fakeQueue) DailySentCount(_ context.Context, userID int64, _ time.Time) (int, error) {
	return q.daily[userID], nil
}
func (q *fakeQueue) RecordSent(_ context.Context, userID, propertyID int64) error {
	q.recorded = append(q.recorded, [2]int64{userID, propertyID})
	return nil
}
func (q *fakeQueue) DeleteTerminalBefore(_ context.Context, _ time.Time) (int64, error) {
	return 0, nil
}
func (q *fakeQueue) CountByStatus(_ context.Context) (map[store.QueueStatus]int, error) {
	out := make(map[store.QueueStatus]int)
	for _, s := range q.statuses {
		out[s]++
	}
	return out, nil
}

type fakeUsers struct {
	deactivated []int64
}

func (u *fakeUsers) SetActive(_ context.Context, userID int64, active bool) error {
	if !active {
		u.deactivated = append(u.deactivated, userID)
	}
	return nil
}

type sendCall struct {
	chatID  int64
	photo   string
	text    string
	buttons []Button
}

// fakeTransport returns errs in order, then succeeds.
type fakeTransport struct {
	calls []sendCall
	errs  []error
}

func (tr *fakeTransport) next() error {
	if len(tr.errs) == 0 {
		return nil
	}
	err := tr.errs[0]
	tr.errs = tr.errs[1:]
	return err
}

func (tr *fakeTransport) SendText(_ context.Context, chatID int64, html string, buttons []Button) error {
	tr.calls = append(tr.calls, sendCall{chatID: chatID, text: html, buttons: buttons})
	return tr.next()
}

func (tr *fakeTransport) SendPhoto(_ context.Context, chatID int64, photoURL, caption string, buttons []Button) error {
	tr.calls = append(tr.calls, sendCall{chatID: chatID, photo: photoURL, text: caption, buttons: buttons})
	return tr.next()
}

func entry(id, userID, propID int64) *store.PendingNotification {
	return &store.PendingNotification{
		QueueEntry: store.QueueEntry{ID: id, UserID: userID, PropertyID: propID, Status: store.StatusPending},
		Listing: &listing.Listing{
			Source:       "pararius",
			SourceID:     "a1b2c3d4",
			URL:          "https://pararius.com/detail/a1b2c3d4",
			Title:        "Flat Herengracht 12",
			Address:      "Herengracht 12",
			PostalCode:   "1015 CS",
			City:         "AMSTERDAM",
			PriceNumeric: 1750,
			PricePeriod:  listing.PeriodMonth,
			LivingArea:   75,
			Rooms:        3,
			PropertyType: listing.TypeApartment,
			Images:       []string{"https://img.example/1.jpg"},
		},
	}
}

func newTestWorker(q Queue, u UserDirectory, tr Transport) *Worker {
	cfg := (&config.Config{}).WithDefaults()
	cfg.Notify.DailyCap = 2
	cfg.Notify.RetryAttempts = 3
	return New(Deps{
		Queue:     q,
		Users:     u,
		Transport: tr,
		Cfg:       cfg,
		Log:       zerolog.Nop(),
		Sleep:     func(context.Context, time.Duration) error { return nil },
	})
}

func TestDailyCapLimitsBatch(t *testing.T) {
	q := newFakeQueue()
	q.pending = []*store.PendingNotification{entry(1, 7, 101), entry(2, 7, 102), entry(3, 7, 103)}
	tr := &fakeTransport{}
	w := newTestWorker(q, &fakeUsers{}, tr)

	sent, err := w.RunBatch(context.Background())
	if err != nil {
		t.Fatalf("run batch: %v", err)
	}
	if sent != 2 {
		t.Fatalf("sent = %d, want 2 (cap)", sent)
	}
	if q.statuses[1] != store.StatusSent || q.statuses[2] != store.StatusSent {
		t.Fatalf("statuses = %v", q.statuses)
	}
	if q.statuses[3] != store.StatusRateLimited {
		t.Fatalf("third entry = %s, want rate_limited", q.statuses[3])
	}
	if len(q.recorded) != 2 {
		t.Fatalf("history rows = %d, want 2", len(q.recorded))
	}
}

func TestBlockedUserDeactivated(t *testing.T) {
	q := newFakeQueue()
	q.pending = []*store.PendingNotification{entry(1, 7, 101)}
	tr := &fakeTransport{errs: []error{ErrUserBlocked}}
	users := &fakeUsers{}
	w := newTestWorker(q, users, tr)

	sent, err := w.RunBatch(context.Background())
	if err != nil || sent != 0 {
		t.Fatalf("sent=%d err=%v", sent, err)
	}
	// A block is permanent: one attempt, user off, entry failed.
	if len(tr.calls) != 1 {
		t.Fatalf("send calls = %d, want 1", len(tr.calls))
	}
	if len(users.deactivated) != 1 || users.deactivated[0] != 7 {
		t.Fatalf("deactivated = %v, want [7]", users.deactivated)
	}
	if q.statuses[1] != store.StatusFailed {
		t.Fatalf("status = %s, want failed", q.statuses[1])
	}
}

func TestBadRequestFailsWithoutRetry(t *testing.T) {
	q := newFakeQueue()
	q.pending = []*store.PendingNotification{entry(1, 7, 101)}
	tr := &fakeTransport{errs: []error{ErrBadRequest}}
	users := &fakeUsers{}
	w := newTestWorker(q, users, tr)

	if _, err := w.RunBatch(context.Background()); err != nil {
		t.Fatalf("run batch: %v", err)
	}
	if len(tr.calls) != 1 {
		t.Fatalf("send calls = %d, want 1", len(tr.calls))
	}
	if len(users.deactivated) != 0 {
		t.Fatalf("deactivated = %v, want none", users.deactivated)
	}
	if q.statuses[1] != store.StatusFailed {
		t.Fatalf("status = %s, want failed", q.statuses[1])
	}
}

func TestTransientErrorRetries(t *testing.T) {
	q := newFakeQueue()
	q.pending = []*store.PendingNotification{entry(1, 7, 101)}
	tr := &fakeTransport{errs: []error{errors.New("500"), errors.New("500")}}
	w := newTestWorker(q, &fakeUsers{}, tr)

	sent, err := w.RunBatch(context.Background())
	if err != nil {
		t.Fatalf("run batch: %v", err)
	}
	// Two transient failures, then the third attempt lands.
	if sent != 1 || len(tr.calls) != 3 {
		t.Fatalf("sent=%d calls=%d, want 1 sent after 3 attempts", sent, len(tr.calls))
	}
	if q.statuses[1] != store.StatusSent {
		t.Fatalf("status = %s, want sent", q.statuses[1])
	}
}

func TestTransientErrorExhaustsRetries(t *testing.T) {
	q := newFakeQueue()
	q.pending = []*store.PendingNotification{entry(1, 7, 101)}
	tr := &fakeTransport{errs: []error{errors.New("500"), errors.New("500"), errors.New("500")}}
	w := newTestWorker(q, &fakeUsers{}, tr)

	sent, err := w.RunBatch(context.Background())
	if err != nil {
		t.Fatalf("run batch: %v", err)
	}
	if sent != 0 || len(tr.calls) != 3 {
		t.Fatalf("sent=%d calls=%d, want 0 sent after 3 attempts", sent, len(tr.calls))
	}
	if q.statuses[1] != store.StatusFailed {
		t.Fatalf("status = %s, want failed", q.statuses[1])
	}
}

func TestQueueDepthGaugeTracksStatuses(t *testing.T) {
	q := newFakeQueue()
	q.pending = []*store.PendingNotification{entry(1, 7, 101), entry(2, 7, 102), entry(3, 7, 103)}
	m := metrics.New()
	cfg := (&config.Config{}).WithDefaults()
	cfg.Notify.DailyCap = 2
	w := New(Deps{
		Queue:     q,
		Users:     &fakeUsers{},
		Transport: &fakeTransport{},
		Metrics:   m,
		Cfg:       cfg,
		Log:       zerolog.Nop(),
		Sleep:     func(context.Context, time.Duration) error { return nil },
	})

	if _, err := w.RunBatch(context.Background()); err != nil {
		t.Fatalf("run batch: %v", err)
	}

	for status, want := range map[string]float64{
		"sent":         2,
		"rate_limited": 1,
		"pending":      0,
		"failed":       0,
	} {
		got := testutil.ToFloat64(m.QueueDepth.WithLabelValues(status))
		if got != want {
			t.Fatalf("queue depth %q = %v, want %v", status, got, want)
		}
	}
}

func TestBuildMessage(t *testing.T) {
	msg := BuildMessage(entry(1, 7, 101))

	for _, want := range []string{
		"<b>🏠 Flat Herengracht 12</b>",
		"📍 Herengracht 12, 1015 CS AMSTERDAM",
		"💰 € 1750 per maand",
		"📐 75 m²",
		"🚪 3 kamers",
		"🏢 apartment",
	} {
		if !strings.Contains(msg.HTML, want) {
			t.Fatalf("message missing %q:\n%s", want, msg.HTML)
		}
	}
	if msg.PhotoURL != "https://img.example/1.jpg" {
		t.Fatalf("photo = %q", msg.PhotoURL)
	}
	if len(msg.Buttons) != 5 {
		t.Fatalf("buttons = %d, want 5", len(msg.Buttons))
	}
	if !strings.Contains(msg.Buttons[0].CopyText, "Herengracht 12, 1015 CS AMSTERDAM") {
		t.Fatalf("letter button has no address:\n%s", msg.Buttons[0].CopyText)
	}
	if !strings.Contains(msg.Buttons[1].URL, "google.com/maps/search") {
		t.Fatalf("maps button = %q", msg.Buttons[1].URL)
	}
	if msg.Buttons[2].URL != "https://pararius.com/detail/a1b2c3d4" {
		t.Fatalf("details button = %q", msg.Buttons[2].URL)
	}
	if msg.Buttons[3].CallbackData != "react:interested:101" ||
		msg.Buttons[4].CallbackData != "react:not_interested:101" {
		t.Fatalf("reaction buttons = %+v", msg.Buttons[3:])
	}
}

func TestLongCaptionFallsBackToText(t *testing.T) {
	q := newFakeQueue()
	n := entry(1, 7, 101)
	n.Listing.Title = strings.Repeat("Zeer ruim appartement ", 60)
	q.pending = []*store.PendingNotification{n}
	tr := &fakeTransport{}
	w := newTestWorker(q, &fakeUsers{}, tr)

	if _, err := w.RunBatch(context.Background()); err != nil {
		t.Fatalf("run batch: %v", err)
	}
	if len(tr.calls) != 1 {
		t.Fatalf("calls = %d", len(tr.calls))
	}
	if tr.calls[0].photo != "" {
		t.Fatal("oversized caption still sent as photo")
	}
}
