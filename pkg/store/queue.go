package store

import (
	"context"
	"time"

	"go.mau.fi/util/dbutil"

	"github.com/huurscout/huurscout/pkg/listing"
)

// QueueStatus is the delivery state of one queue entry.
type QueueStatus string

const (
	StatusPending     QueueStatus = "pending"
	StatusProcessing  QueueStatus = "processing"
	StatusSent        QueueStatus = "sent"
	StatusFailed      QueueStatus = "failed"
	StatusRateLimited QueueStatus = "rate_limited"
)

// QueueStore is the durable notification queue plus the sent-history
// table backing the daily cap.
type QueueStore struct {
	db *dbutil.Database
}

// QueueEntry is one (user, listing) notification.
type QueueEntry struct {
	ID          int64
	UserID      int64
	PropertyID  int64
	Status      QueueStatus
	Attempts    int
	CreatedAt   time.Time
	LastAttempt time.Time
}

// PendingNotification pairs a queue entry with a snapshot of its
// listing, as one row so the worker needs no second query.
type PendingNotification struct {
	QueueEntry
	Listing *listing.Listing
}

// EnqueueMatches fans one listing out to every matching user in a
// single INSERT..SELECT. The predicate treats NULL preference fields
// and zero max bounds as unconstrained; users with no cities never
// match. Idempotent through the (user_id, property_id) conflict.
// Postgres only (array membership, ILIKE).
func (s *QueueStore) EnqueueMatches(ctx context.Context, propertyID int64) (int64, error) {
	res, err := s.db.Exec(ctx, `
		INSERT INTO notification_queue (user_id, property_id, created_at, status)
		SELECT tu.user_id, p.id, $2, 'pending'
		FROM properties p
		JOIN user_preferences up ON true
		JOIN telegram_users tu ON tu.user_id = up.user_id
		WHERE p.id = $1
		  AND tu.is_active = true AND tu.notifications_enabled = true
		  AND up.cities IS NOT NULL AND p.city = ANY(up.cities)
		  AND (up.min_price IS NULL OR p.price_numeric >= up.min_price)
		  AND (up.max_price IS NULL OR up.max_price = 0 OR p.price_numeric <= up.max_price)
		  AND (up.min_rooms IS NULL OR p.rooms >= up.min_rooms)
		  AND (up.max_rooms IS NULL OR up.max_rooms = 0 OR p.rooms <= up.max_rooms)
		  AND (up.min_area IS NULL OR p.living_area >= up.min_area)
		  AND (up.max_area IS NULL OR up.max_area = 0 OR p.living_area <= up.max_area)
		  AND (up.property_types IS NULL OR cardinality(up.property_types) = 0 OR p.property_type = ANY(up.property_types))
		  AND (up.neighborhood IS NULL OR up.neighborhood = '' OR p.neighborhood ILIKE '%' || up.neighborhood || '%')
		ON CONFLICT (user_id, property_id) DO NOTHING`,
		propertyID, time.Now().UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Enqueue adds a single (user, listing) entry directly, used by tests
// and manual requeues. Idempotent.
func (s *QueueStore) Enqueue(ctx context.Context, userID, propertyID int64) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO notification_queue (user_id, property_id, created_at, status)
		VALUES ($1, $2, $3, 'pending')
		ON CONFLICT (user_id, property_id) DO NOTHING`,
		userID, propertyID, time.Now().UTC())
	return err
}

// PickPending returns up to batch pending entries in FIFO order,
// joined to active users with notifications on so disabled users'
// entries stay untouched.
func (s *QueueStore) PickPending(ctx context.Context, batch int) ([]*PendingNotification, error) {
	rows, err := s.db.Query(ctx, `
		SELECT nq.id, nq.user_id, nq.property_id, nq.status, nq.attempts, nq.created_at,
		       `+listingColumns+`
		FROM notification_queue nq
		JOIN properties p ON nq.property_id = p.id
		JOIN telegram_users tu ON nq.user_id = tu.user_id
		WHERE nq.status = 'pending'
		  AND tu.is_active = true AND tu.notifications_enabled = true
		ORDER BY nq.created_at ASC
		LIMIT $1`, batch)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*PendingNotification
	for rows.Next() {
		n, err := scanPending(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// MarkProcessing flips an entry to processing and counts the attempt.
func (s *QueueStore) MarkProcessing(ctx context.Context, id int64) error {
	return s.setStatus(ctx, id, StatusProcessing, true)
}

// MarkSent records a successful delivery.
func (s *QueueStore) MarkSent(ctx context.Context, id int64) error {
	return s.setStatus(ctx, id, StatusSent, false)
}

// MarkFailed records a terminal failure.
func (s *QueueStore) MarkFailed(ctx context.Context, id int64) error {
	return s.setStatus(ctx, id, StatusFailed, false)
}

// MarkRateLimited parks an entry that hit the user's daily cap.
func (s *QueueStore) MarkRateLimited(ctx context.Context, id int64) error {
	return s.setStatus(ctx, id, StatusRateLimited, false)
}

func (s *QueueStore) setStatus(ctx context.Context, id int64, status QueueStatus, countAttempt bool) error {
	var err error
	if countAttempt {
		_, err = s.db.Exec(ctx,
			`UPDATE notification_queue SET status = $1, attempts = attempts + 1, last_attempt = $2 WHERE id = $3`,
			string(status), time.Now().UTC(), id)
	} else {
		_, err = s.db.Exec(ctx,
			`UPDATE notification_queue SET status = $1, last_attempt = $2 WHERE id = $3`,
			string(status), time.Now().UTC(), id)
	}
	return err
}

// DailySentCount counts deliveries to a user since the cutoff.
func (s *QueueStore) DailySentCount(ctx context.Context, userID int64, since time.Time) (int, error) {
	var n int
	err := s.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM notification_history WHERE user_id = $1 AND sent_at > $2`,
		userID, since.UTC()).Scan(&n)
	return n, err
}

// RecordSent writes the history row backing the daily cap and the
// reaction UI.
func (s *QueueStore) RecordSent(ctx context.Context, userID, propertyID int64) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO notification_history (user_id, property_id, sent_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, property_id) DO UPDATE SET sent_at = excluded.sent_at`,
		userID, propertyID, time.Now().UTC())
	return err
}

// SetReaction stores the user's reaction to a sent notification.
// Reports whether a history row existed.
func (s *QueueStore) SetReaction(ctx context.Context, userID, propertyID int64, reaction string) (bool, error) {
	res, err := s.db.Exec(ctx, `
		UPDATE notification_history SET user_reaction = $1, was_read = true
		WHERE user_id = $2 AND property_id = $3`,
		reaction, userID, propertyID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// DeleteTerminalBefore garbage-collects terminal queue rows older than
// the cutoff. Returns the number of deleted rows.
func (s *QueueStore) DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.Exec(ctx, `
		DELETE FROM notification_queue
		WHERE status IN ('sent', 'failed', 'rate_limited') AND created_at < $1`,
		cutoff.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// CountByStatus returns the queue depth per status.
func (s *QueueStore) CountByStatus(ctx context.Context) (map[QueueStatus]int, error) {
	rows, err := s.db.Query(ctx,
		`SELECT status, COUNT(*) FROM notification_queue GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[QueueStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		out[QueueStatus(status)] = n
	}
	return out, rows.Err()
}

func scanPending(rows dbutil.Rows) (*PendingNotification, error) {
	var n PendingNotification
	var ls listingScanner
	var status string
	dests := append([]any{&n.ID, &n.UserID, &n.PropertyID, &status, &n.Attempts, &n.CreatedAt}, ls.dests()...)
	if err := rows.Scan(dests...); err != nil {
		return nil, err
	}
	n.Status = QueueStatus(status)
	n.Listing = ls.finish()
	return &n, nil
}
