package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jonocairns/tskr/internal/model"
)

// ErrNotReviewable is returned when a point log is no longer pending.
var ErrNotReviewable = errors.New("point log is not pending")

type PointLogStore struct {
	db *sql.DB
}

func NewPointLogStore(db *sql.DB) *PointLogStore {
	return &PointLogStore{db: db}
}

// PointLogInput describes a new point log.
type PointLogInput struct {
	HouseholdID int64
	UserID      int64
	TaskID      *int64
	Kind        model.PointLogKind
	Points      int
	Status      model.PointLogStatus
	Note        string
	CreatedAt   time.Time
}

func scanPointLog(scanner interface{ Scan(...any) error }) (*model.PointLog, error) {
	var l model.PointLog
	var taskID, reviewedBy sql.NullInt64
	var revertedAt sql.NullTime

	err := scanner.Scan(
		&l.ID, &l.HouseholdID, &l.UserID, &taskID, &l.Kind, &l.Points, &l.Status,
		&l.Note, &reviewedBy, &revertedAt, &l.CreatedAt, &l.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if taskID.Valid {
		l.TaskID = &taskID.Int64
	}
	if reviewedBy.Valid {
		l.ReviewedBy = &reviewedBy.Int64
	}
	if revertedAt.Valid {
		l.RevertedAt = &revertedAt.Time
	}
	return &l, nil
}

const pointLogCols = `id, household_id, user_id, task_id, kind, points, status, note, reviewed_by, reverted_at, created_at, updated_at`

// countedFilter selects logs that count toward cadence progress.
const countedFilter = `reverted_at IS NULL AND status IN ('PENDING', 'APPROVED')`

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertPointLog(ctx context.Context, ex execer, in PointLogInput) (int64, error) {
	var taskID sql.NullInt64
	if in.TaskID != nil {
		taskID = sql.NullInt64{Int64: *in.TaskID, Valid: true}
	}
	createdAt := in.CreatedAt.UTC()

	result, err := ex.ExecContext(ctx,
		`INSERT INTO point_logs (household_id, user_id, task_id, kind, points, status, note, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		in.HouseholdID, in.UserID, taskID, in.Kind, in.Points, in.Status, in.Note, createdAt, createdAt,
	)
	if err != nil {
		return 0, fmt.Errorf("insert point log: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	return id, nil
}

func (s *PointLogStore) Create(ctx context.Context, in PointLogInput) (*model.PointLog, error) {
	id, err := insertPointLog(ctx, s.db, in)
	if err != nil {
		return nil, err
	}
	return s.GetByID(ctx, id, in.HouseholdID)
}

// CreateForTask inserts a task completion only if check accepts the task's
// currently counted completion times. The read and the insert share one
// transaction so concurrent completions cannot both pass the check.
func (s *PointLogStore) CreateForTask(ctx context.Context, in PointLogInput, check func(completions []time.Time) error) (*model.PointLog, error) {
	if in.TaskID == nil {
		return nil, fmt.Errorf("create task completion: missing task id")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	completions, err := listCompletionTimes(ctx, tx, *in.TaskID)
	if err != nil {
		return nil, err
	}
	if err := check(completions); err != nil {
		return nil, err
	}

	id, err := insertPointLog(ctx, tx, in)
	if err != nil {
		return nil, err
	}
	row := tx.QueryRowContext(ctx, `SELECT `+pointLogCols+` FROM point_logs WHERE id = ?`, id)
	l, err := scanPointLog(row)
	if err != nil {
		return nil, fmt.Errorf("get point log: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit task completion: %w", err)
	}
	return l, nil
}

func (s *PointLogStore) GetByID(ctx context.Context, id, householdID int64) (*model.PointLog, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+pointLogCols+` FROM point_logs WHERE id = ? AND household_id = ?`, id, householdID,
	)
	l, err := scanPointLog(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get point log: %w", err)
	}
	return l, nil
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func listCompletionTimes(ctx context.Context, q querier, taskID int64) ([]time.Time, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT created_at FROM point_logs WHERE task_id = ? AND `+countedFilter+` ORDER BY created_at ASC`,
		taskID,
	)
	if err != nil {
		return nil, fmt.Errorf("list completion times: %w", err)
	}
	defer rows.Close()

	var times []time.Time
	for rows.Next() {
		var t time.Time
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("scan completion time: %w", err)
		}
		times = append(times, t)
	}
	return times, rows.Err()
}

// ListCompletionTimes returns the creation times of a task's counted logs:
// not reverted and pending or approved.
func (s *PointLogStore) ListCompletionTimes(ctx context.Context, taskID int64) ([]time.Time, error) {
	return listCompletionTimes(ctx, s.db, taskID)
}

// ListPending returns pending, unreverted logs of a household, oldest first.
func (s *PointLogStore) ListPending(ctx context.Context, householdID int64) ([]model.PointLog, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+pointLogCols+` FROM point_logs
		 WHERE household_id = ? AND status = 'PENDING' AND reverted_at IS NULL
		 ORDER BY created_at ASC`,
		householdID,
	)
	if err != nil {
		return nil, fmt.Errorf("list pending point logs: %w", err)
	}
	defer rows.Close()

	var logs []model.PointLog
	for rows.Next() {
		l, err := scanPointLog(rows)
		if err != nil {
			return nil, fmt.Errorf("scan point log: %w", err)
		}
		logs = append(logs, *l)
	}
	return logs, rows.Err()
}

// Review sets the status of a pending log. It returns ErrNotReviewable when
// the log is no longer pending or was reverted.
func (s *PointLogStore) Review(ctx context.Context, id, householdID, reviewerID int64, status model.PointLogStatus, at time.Time) (*model.PointLog, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE point_logs SET status = ?, reviewed_by = ?, updated_at = ?
		 WHERE id = ? AND household_id = ? AND status = 'PENDING' AND reverted_at IS NULL`,
		status, reviewerID, at.UTC(), id, householdID,
	)
	if err != nil {
		return nil, fmt.Errorf("review point log: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return nil, ErrNotReviewable
	}
	return s.GetByID(ctx, id, householdID)
}

// Revert marks a log as reverted. Reverting twice keeps the first timestamp.
func (s *PointLogStore) Revert(ctx context.Context, id, householdID int64, at time.Time) (*model.PointLog, error) {
	_, err := s.db.ExecContext(ctx,
		`UPDATE point_logs SET reverted_at = COALESCE(reverted_at, ?), updated_at = ? WHERE id = ? AND household_id = ?`,
		at.UTC(), at.UTC(), id, householdID,
	)
	if err != nil {
		return nil, fmt.Errorf("revert point log: %w", err)
	}
	return s.GetByID(ctx, id, householdID)
}

// Balance sums approved, unreverted points for a member.
func (s *PointLogStore) Balance(ctx context.Context, userID, householdID int64) (int, error) {
	var total int
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(points), 0) FROM point_logs
		 WHERE user_id = ? AND household_id = ? AND status = 'APPROVED' AND reverted_at IS NULL`,
		userID, householdID,
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("point balance: %w", err)
	}
	return total, nil
}

// CountRecentCompletions counts a member's qualifying task completions
// created at or after since. Qualifying means not reverted, pending or
// approved, and produced by a preset or timed task.
func (s *PointLogStore) CountRecentCompletions(ctx context.Context, userID, householdID int64, since time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM point_logs
		 WHERE user_id = ? AND household_id = ? AND `+countedFilter+`
		   AND kind IN ('PRESET', 'TIMED') AND created_at >= ?`,
		userID, householdID, since.UTC(),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count recent completions: %w", err)
	}
	return n, nil
}
