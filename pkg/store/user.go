package store

import (
	"context"
	"database/sql"
	"time"

	"go.mau.fi/util/dbutil"
)

// UserStore manages registered Telegram users.
type UserStore struct {
	db *dbutil.Database
}

// User is one registered chat user. UserID is the Telegram id.
type User struct {
	UserID               int64
	Username             string
	FirstName            string
	LastName             string
	IsActive             bool
	IsAdmin              bool
	NotificationsEnabled bool
	DateJoined           time.Time
	LastActive           time.Time
}

// Upsert registers a user or refreshes names and activity. Existing
// admin and notification flags are kept.
func (s *UserStore) Upsert(ctx context.Context, u *User) error {
	now := time.Now().UTC()
	_, err := s.db.Exec(ctx, `
		INSERT INTO telegram_users (user_id, username, first_name, last_name, is_active, is_admin, notifications_enabled, date_joined, last_active)
		VALUES ($1, $2, $3, $4, true, $5, true, $6, $6)
		ON CONFLICT (user_id) DO UPDATE SET
			username = excluded.username,
			first_name = excluded.first_name,
			last_name = excluded.last_name,
			is_active = true,
			last_active = excluded.last_active`,
		u.UserID, u.Username, u.FirstName, u.LastName, u.IsAdmin, now)
	return err
}

// Touch refreshes last_active.
func (s *UserStore) Touch(ctx context.Context, userID int64) error {
	_, err := s.db.Exec(ctx,
		`UPDATE telegram_users SET last_active = $1 WHERE user_id = $2`,
		time.Now().UTC(), userID)
	return err
}

// SetActive flips the active flag, used both by /stop and by the
// delivery worker when a user blocks the bot.
func (s *UserStore) SetActive(ctx context.Context, userID int64, active bool) error {
	_, err := s.db.Exec(ctx,
		`UPDATE telegram_users SET is_active = $1 WHERE user_id = $2`, active, userID)
	return err
}

// SetNotifications flips the notification flag.
func (s *UserStore) SetNotifications(ctx context.Context, userID int64, enabled bool) error {
	_, err := s.db.Exec(ctx,
		`UPDATE telegram_users SET notifications_enabled = $1 WHERE user_id = $2`, enabled, userID)
	return err
}

// SetAdmin grants or revokes admin. Reports whether the user exists.
func (s *UserStore) SetAdmin(ctx context.Context, userID int64, admin bool) (bool, error) {
	res, err := s.db.Exec(ctx,
		`UPDATE telegram_users SET is_admin = $1 WHERE user_id = $2`, admin, userID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// Get loads one user, nil when unknown.
func (s *UserStore) Get(ctx context.Context, userID int64) (*User, error) {
	row := s.db.QueryRow(ctx, userColumns+` WHERE user_id = $1`, userID)
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return u, err
}

// List returns every user ordered by join date.
func (s *UserStore) List(ctx context.Context) ([]*User, error) {
	rows, err := s.db.Query(ctx, userColumns+` ORDER BY date_joined ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// ActiveChatIDs returns the ids of active users with notifications on,
// the broadcast audience.
func (s *UserStore) ActiveChatIDs(ctx context.Context) ([]int64, error) {
	rows, err := s.db.Query(ctx,
		`SELECT user_id FROM telegram_users WHERE is_active = true AND notifications_enabled = true ORDER BY user_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

const userColumns = `
	SELECT user_id, COALESCE(username, ''), COALESCE(first_name, ''), COALESCE(last_name, ''),
	       is_active, is_admin, notifications_enabled, date_joined, last_active
	FROM telegram_users`

func scanUser(row dbutil.Scannable) (*User, error) {
	var u User
	err := row.Scan(&u.UserID, &u.Username, &u.FirstName, &u.LastName,
		&u.IsActive, &u.IsAdmin, &u.NotificationsEnabled, &u.DateJoined, &u.LastActive)
	if err != nil {
		return nil, err
	}
	return &u, nil
}
