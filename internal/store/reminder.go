package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jonocairns/tskr/internal/model"
)

type ReminderStore struct {
	db *sql.DB
}

func NewReminderStore(db *sql.DB) *ReminderStore {
	return &ReminderStore{db: db}
}

// Recipient is a household member together with their reminder override,
// which is nil when the member never customised reminders.
type Recipient struct {
	UserID   int64
	Override *model.UserReminderOverride
}

// ConfigFilter narrows ListHouseholdConfigs to households that may have a
// reminder of Type due. Time and Weekday are optional pre-filters for the
// scheduled types. A household also matches when any member override could
// make it match, so callers must re-check each member after resolving.
type ConfigFilter struct {
	Type    model.ReminderType
	Time    string
	Weekday *int
}

// ClaimResult is the outcome of ClaimSend.
type ClaimResult int

const (
	ClaimOK ClaimResult = iota
	ClaimDuplicate
	ClaimPaused
)

// SendClaim describes the send log row that acts as a delivery lock.
type SendClaim struct {
	UserID      int64
	HouseholdID int64
	Type        model.ReminderType
	LockKey     string
	SentAt      time.Time
}

const configCols = `household_id, daily_enabled, daily_time, weekly_enabled, weekly_day, weekly_time,
	interval_enabled, interval_days, event_enabled, event_days, updated_at`

func scanConfig(scanner interface{ Scan(...any) error }) (*model.HouseholdReminderConfig, error) {
	var c model.HouseholdReminderConfig
	var daily, weekly, interval, event int

	err := scanner.Scan(
		&c.HouseholdID, &daily, &c.DailyTime, &weekly, &c.WeeklyDay, &c.WeeklyTime,
		&interval, &c.IntervalDays, &event, &c.EventDays, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	c.DailyEnabled = daily != 0
	c.WeeklyEnabled = weekly != 0
	c.IntervalEnabled = interval != 0
	c.EventEnabled = event != 0
	return &c, nil
}

const overrideCols = `user_id, household_id, daily_enabled, daily_time, weekly_enabled, weekly_day, weekly_time,
	interval_enabled, interval_days, event_enabled, event_days, is_paused, paused_until, updated_at`

// overrideRow holds nullable override columns so the same scan works for a
// direct read and for a LEFT JOIN where the whole override may be missing.
type overrideRow struct {
	userID, householdID                                       sql.NullInt64
	dailyEnabled, weeklyEnabled, intervalEnabled, eventEnabled sql.NullBool
	dailyTime, weeklyTime                                      sql.NullString
	weeklyDay, intervalDays, eventDays                         sql.NullInt64
	paused                                                     sql.NullInt64
	pausedUntil, updatedAt                                     sql.NullTime
}

func (r *overrideRow) dest() []any {
	return []any{
		&r.userID, &r.householdID, &r.dailyEnabled, &r.dailyTime, &r.weeklyEnabled, &r.weeklyDay, &r.weeklyTime,
		&r.intervalEnabled, &r.intervalDays, &r.eventEnabled, &r.eventDays, &r.paused, &r.pausedUntil, &r.updatedAt,
	}
}

func (r *overrideRow) override() *model.UserReminderOverride {
	if !r.userID.Valid {
		return nil
	}
	o := &model.UserReminderOverride{
		UserID:          r.userID.Int64,
		HouseholdID:     r.householdID.Int64,
		DailyEnabled:    boolPtr(r.dailyEnabled),
		DailyTime:       stringPtr(r.dailyTime),
		WeeklyEnabled:   boolPtr(r.weeklyEnabled),
		WeeklyDay:       intPtr(r.weeklyDay),
		WeeklyTime:      stringPtr(r.weeklyTime),
		IntervalEnabled: boolPtr(r.intervalEnabled),
		IntervalDays:    intPtr(r.intervalDays),
		EventEnabled:    boolPtr(r.eventEnabled),
		EventDays:       intPtr(r.eventDays),
		IsPaused:        r.paused.Int64 != 0,
		UpdatedAt:       r.updatedAt.Time,
	}
	if r.pausedUntil.Valid {
		o.PausedUntil = &r.pausedUntil.Time
	}
	return o
}

func boolPtr(v sql.NullBool) *bool {
	if !v.Valid {
		return nil
	}
	return &v.Bool
}

func stringPtr(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	return &v.String
}

func intPtr(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int64)
	return &n
}

func nullableBool(b *bool) any {
	if b == nil {
		return nil
	}
	return boolInt(*b)
}

func nullableString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func nullableInt(n *int) any {
	if n == nil {
		return nil
	}
	return *n
}

const sendLogCols = `id, user_id, household_id, reminder_type, sent_at, status, scheduler_lock_key`

func scanSendLog(scanner interface{ Scan(...any) error }) (*model.ReminderSendLog, error) {
	var l model.ReminderSendLog
	err := scanner.Scan(&l.ID, &l.UserID, &l.HouseholdID, &l.ReminderType, &l.SentAt, &l.Status, &l.SchedulerLockKey)
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// configFilterSQL builds the WHERE clause for a ConfigFilter. Each household
// column check is paired with an EXISTS over member overrides so an override
// can enable a type or move its time even when the household default would
// not match.
func configFilterSQL(f ConfigFilter) (string, []any, error) {
	switch f.Type {
	case model.ReminderDaily:
		where := `(c.daily_enabled = 1 OR EXISTS (SELECT 1 FROM user_reminder_overrides o
			WHERE o.household_id = c.household_id AND o.daily_enabled = 1))`
		var args []any
		if f.Time != "" {
			where += ` AND (c.daily_time = ? OR EXISTS (SELECT 1 FROM user_reminder_overrides o
				WHERE o.household_id = c.household_id AND o.daily_time = ?))`
			args = append(args, f.Time, f.Time)
		}
		return where, args, nil
	case model.ReminderWeekly:
		where := `(c.weekly_enabled = 1 OR EXISTS (SELECT 1 FROM user_reminder_overrides o
			WHERE o.household_id = c.household_id AND o.weekly_enabled = 1))`
		var args []any
		if f.Time != "" && f.Weekday != nil {
			where += ` AND ((c.weekly_day = ? AND c.weekly_time = ?) OR EXISTS (SELECT 1 FROM user_reminder_overrides o
				WHERE o.household_id = c.household_id AND (o.weekly_day IS NOT NULL OR o.weekly_time IS NOT NULL)))`
			args = append(args, *f.Weekday, f.Time)
		}
		return where, args, nil
	case model.ReminderInterval:
		return `(c.interval_enabled = 1 OR EXISTS (SELECT 1 FROM user_reminder_overrides o
			WHERE o.household_id = c.household_id AND o.interval_enabled = 1))`, nil, nil
	case model.ReminderEvent:
		return `(c.event_enabled = 1 OR EXISTS (SELECT 1 FROM user_reminder_overrides o
			WHERE o.household_id = c.household_id AND o.event_enabled = 1))`, nil, nil
	}
	return "", nil, fmt.Errorf("unknown reminder type %q", f.Type)
}

// ListHouseholdConfigs returns configs of households that may have a
// reminder of the filter's type due.
func (s *ReminderStore) ListHouseholdConfigs(ctx context.Context, f ConfigFilter) ([]model.HouseholdReminderConfig, error) {
	where, args, err := configFilterSQL(f)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+configCols+` FROM household_reminder_configs c WHERE `+where+` ORDER BY c.household_id`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("list reminder configs: %w", err)
	}
	defer rows.Close()

	var configs []model.HouseholdReminderConfig
	for rows.Next() {
		c, err := scanConfig(rows)
		if err != nil {
			return nil, fmt.Errorf("scan reminder config: %w", err)
		}
		configs = append(configs, *c)
	}
	return configs, rows.Err()
}

// GetHouseholdConfig returns the household's reminder config, falling back
// to the defaults when no row exists.
func (s *ReminderStore) GetHouseholdConfig(ctx context.Context, householdID int64) (*model.HouseholdReminderConfig, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+configCols+` FROM household_reminder_configs WHERE household_id = ?`, householdID,
	)
	c, err := scanConfig(row)
	if err == sql.ErrNoRows {
		return DefaultReminderConfig(householdID), nil
	}
	if err != nil {
		return nil, fmt.Errorf("get reminder config: %w", err)
	}
	return c, nil
}

// DefaultReminderConfig mirrors the column defaults of
// household_reminder_configs.
func DefaultReminderConfig(householdID int64) *model.HouseholdReminderConfig {
	return &model.HouseholdReminderConfig{
		HouseholdID:  householdID,
		DailyTime:    "18:00",
		WeeklyTime:   "18:00",
		IntervalDays: 3,
		EventDays:    3,
	}
}

func (s *ReminderStore) UpsertHouseholdConfig(ctx context.Context, c model.HouseholdReminderConfig) (*model.HouseholdReminderConfig, error) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO household_reminder_configs (household_id, daily_enabled, daily_time, weekly_enabled, weekly_day, weekly_time,
			interval_enabled, interval_days, event_enabled, event_days, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(household_id) DO UPDATE SET
			daily_enabled = excluded.daily_enabled, daily_time = excluded.daily_time,
			weekly_enabled = excluded.weekly_enabled, weekly_day = excluded.weekly_day, weekly_time = excluded.weekly_time,
			interval_enabled = excluded.interval_enabled, interval_days = excluded.interval_days,
			event_enabled = excluded.event_enabled, event_days = excluded.event_days,
			updated_at = CURRENT_TIMESTAMP`,
		c.HouseholdID, boolInt(c.DailyEnabled), c.DailyTime, boolInt(c.WeeklyEnabled), c.WeeklyDay, c.WeeklyTime,
		boolInt(c.IntervalEnabled), c.IntervalDays, boolInt(c.EventEnabled), c.EventDays,
	)
	if err != nil {
		return nil, fmt.Errorf("upsert reminder config: %w", err)
	}
	return s.GetHouseholdConfig(ctx, c.HouseholdID)
}

// ListRecipients returns every member of a household with their override.
func (s *ReminderStore) ListRecipients(ctx context.Context, householdID int64) ([]Recipient, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT m.user_id, o.user_id, o.household_id, o.daily_enabled, o.daily_time, o.weekly_enabled, o.weekly_day, o.weekly_time,
			o.interval_enabled, o.interval_days, o.event_enabled, o.event_days, o.is_paused, o.paused_until, o.updated_at
		 FROM household_members m
		 LEFT JOIN user_reminder_overrides o ON o.user_id = m.user_id AND o.household_id = m.household_id
		 WHERE m.household_id = ?
		 ORDER BY m.user_id`,
		householdID,
	)
	if err != nil {
		return nil, fmt.Errorf("list reminder recipients: %w", err)
	}
	defer rows.Close()

	var recipients []Recipient
	for rows.Next() {
		var r Recipient
		var o overrideRow
		if err := rows.Scan(append([]any{&r.UserID}, o.dest()...)...); err != nil {
			return nil, fmt.Errorf("scan reminder recipient: %w", err)
		}
		r.Override = o.override()
		recipients = append(recipients, r)
	}
	return recipients, rows.Err()
}

func getOverride(ctx context.Context, q interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}, userID, householdID int64) (*model.UserReminderOverride, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+overrideCols+` FROM user_reminder_overrides WHERE user_id = ? AND household_id = ?`,
		userID, householdID,
	)
	var o overrideRow
	err := row.Scan(o.dest()...)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get reminder override: %w", err)
	}
	return o.override(), nil
}

func (s *ReminderStore) GetOverride(ctx context.Context, userID, householdID int64) (*model.UserReminderOverride, error) {
	return getOverride(ctx, s.db, userID, householdID)
}

// UpsertOverride replaces a member's reminder preferences. The pause state
// is left untouched; use SetPause for that.
func (s *ReminderStore) UpsertOverride(ctx context.Context, o model.UserReminderOverride) (*model.UserReminderOverride, error) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO user_reminder_overrides (user_id, household_id, daily_enabled, daily_time, weekly_enabled, weekly_day, weekly_time,
			interval_enabled, interval_days, event_enabled, event_days, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(user_id, household_id) DO UPDATE SET
			daily_enabled = excluded.daily_enabled, daily_time = excluded.daily_time,
			weekly_enabled = excluded.weekly_enabled, weekly_day = excluded.weekly_day, weekly_time = excluded.weekly_time,
			interval_enabled = excluded.interval_enabled, interval_days = excluded.interval_days,
			event_enabled = excluded.event_enabled, event_days = excluded.event_days,
			updated_at = CURRENT_TIMESTAMP`,
		o.UserID, o.HouseholdID,
		nullableBool(o.DailyEnabled), nullableString(o.DailyTime),
		nullableBool(o.WeeklyEnabled), nullableInt(o.WeeklyDay), nullableString(o.WeeklyTime),
		nullableBool(o.IntervalEnabled), nullableInt(o.IntervalDays),
		nullableBool(o.EventEnabled), nullableInt(o.EventDays),
	)
	if err != nil {
		return nil, fmt.Errorf("upsert reminder override: %w", err)
	}
	return s.GetOverride(ctx, o.UserID, o.HouseholdID)
}

// SetPause pauses or resumes reminders for a member. A nil until with
// paused set means paused indefinitely.
func (s *ReminderStore) SetPause(ctx context.Context, userID, householdID int64, paused bool, until *time.Time) (*model.UserReminderOverride, error) {
	var untilArg any
	if paused && until != nil {
		untilArg = until.UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO user_reminder_overrides (user_id, household_id, is_paused, paused_until, updated_at)
		 VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(user_id, household_id) DO UPDATE SET
			is_paused = excluded.is_paused, paused_until = excluded.paused_until, updated_at = CURRENT_TIMESTAMP`,
		userID, householdID, boolInt(paused), untilArg,
	)
	if err != nil {
		return nil, fmt.Errorf("set reminder pause: %w", err)
	}
	return s.GetOverride(ctx, userID, householdID)
}

// LastSend returns the most recent send of a reminder type that still
// counts, meaning SENT or SNOOZED. Dismissed sends are ignored.
func (s *ReminderStore) LastSend(ctx context.Context, userID, householdID int64, typ model.ReminderType) (*model.ReminderSendLog, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sendLogCols+` FROM reminder_send_logs
		 WHERE user_id = ? AND household_id = ? AND reminder_type = ? AND status IN ('SENT', 'SNOOZED')
		 ORDER BY sent_at DESC, id DESC LIMIT 1`,
		userID, householdID, typ,
	)
	l, err := scanSendLog(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get last send: %w", err)
	}
	return l, nil
}

// ClaimSend records a send log under the claim's lock key. In one
// transaction it checks the key is free, re-reads the member's override and
// asks paused whether delivery is still allowed, then inserts. The caller
// delivers only on ClaimOK.
func (s *ReminderStore) ClaimSend(ctx context.Context, c SendClaim, paused func(*model.UserReminderOverride) bool) (ClaimResult, *model.ReminderSendLog, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM reminder_send_logs WHERE scheduler_lock_key = ?`, c.LockKey,
	).Scan(&exists)
	if err != nil {
		return 0, nil, fmt.Errorf("check send lock: %w", err)
	}
	if exists > 0 {
		return ClaimDuplicate, nil, nil
	}

	o, err := getOverride(ctx, tx, c.UserID, c.HouseholdID)
	if err != nil {
		return 0, nil, err
	}
	if paused != nil && paused(o) {
		return ClaimPaused, nil, nil
	}

	result, err := tx.ExecContext(ctx,
		`INSERT INTO reminder_send_logs (user_id, household_id, reminder_type, sent_at, status, scheduler_lock_key)
		 VALUES (?, ?, ?, ?, 'SENT', ?)
		 ON CONFLICT(scheduler_lock_key) DO NOTHING`,
		c.UserID, c.HouseholdID, c.Type, c.SentAt.UTC(), c.LockKey,
	)
	if err != nil {
		return 0, nil, fmt.Errorf("insert send log: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, nil, fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ClaimDuplicate, nil, nil
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, nil, fmt.Errorf("last insert id: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, nil, fmt.Errorf("commit send log: %w", err)
	}

	return ClaimOK, &model.ReminderSendLog{
		ID:               id,
		UserID:           c.UserID,
		HouseholdID:      c.HouseholdID,
		ReminderType:     c.Type,
		SentAt:           c.SentAt.UTC(),
		Status:           model.SendStatusSent,
		SchedulerLockKey: c.LockKey,
	}, nil
}

// UpdateSendStatus changes the status of a member's own send log. It
// returns nil when the log does not belong to the member.
func (s *ReminderStore) UpdateSendStatus(ctx context.Context, id, userID int64, status model.SendStatus) (*model.ReminderSendLog, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE reminder_send_logs SET status = ? WHERE id = ? AND user_id = ?`,
		status, id, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("update send status: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return nil, nil
	}

	row := s.db.QueryRowContext(ctx, `SELECT `+sendLogCols+` FROM reminder_send_logs WHERE id = ?`, id)
	l, err := scanSendLog(row)
	if err != nil {
		return nil, fmt.Errorf("get send log: %w", err)
	}
	return l, nil
}

// ListSendLogs returns a member's most recent send logs, newest first.
func (s *ReminderStore) ListSendLogs(ctx context.Context, userID, householdID int64, limit int) ([]model.ReminderSendLog, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sendLogCols+` FROM reminder_send_logs
		 WHERE user_id = ? AND household_id = ?
		 ORDER BY sent_at DESC, id DESC LIMIT ?`,
		userID, householdID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list send logs: %w", err)
	}
	defer rows.Close()

	var logs []model.ReminderSendLog
	for rows.Next() {
		l, err := scanSendLog(rows)
		if err != nil {
			return nil, fmt.Errorf("scan send log: %w", err)
		}
		logs = append(logs, *l)
	}
	return logs, rows.Err()
}

// CleanupSendLogs deletes send logs older than before.
func (s *ReminderStore) CleanupSendLogs(ctx context.Context, before time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM reminder_send_logs WHERE sent_at < ?`, before.UTC())
	if err != nil {
		return 0, fmt.Errorf("cleanup send logs: %w", err)
	}
	return result.RowsAffected()
}
