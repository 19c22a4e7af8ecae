package store

import (
	"database/sql"
	"fmt"

	"github.com/jonocairns/tskr/internal/model"
)

type TaskStore struct {
	db *sql.DB
}

func NewTaskStore(db *sql.DB) *TaskStore {
	return &TaskStore{db: db}
}

// TaskInput holds the editable fields of an assigned task.
type TaskInput struct {
	AssigneeID             int64
	Title                  string
	Points                 int
	CadenceTarget          int
	CadenceIntervalMinutes int
	IsRecurring            bool
	RequiresApproval       bool
}

func scanTask(scanner interface{ Scan(...any) error }) (*model.AssignedTask, error) {
	var t model.AssignedTask
	var recurring, approval int
	var createdBy sql.NullInt64

	err := scanner.Scan(
		&t.ID, &t.HouseholdID, &t.AssigneeID, &t.Title, &t.Points,
		&t.CadenceTarget, &t.CadenceIntervalMinutes, &recurring, &approval,
		&createdBy, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	t.IsRecurring = recurring != 0
	t.RequiresApproval = approval != 0
	if createdBy.Valid {
		t.CreatedBy = &createdBy.Int64
	}
	return &t, nil
}

const taskCols = `id, household_id, assignee_id, title, points, cadence_target, cadence_interval_minutes, is_recurring, requires_approval, created_by, created_at, updated_at`

func (s *TaskStore) Create(householdID, createdBy int64, in TaskInput) (*model.AssignedTask, error) {
	result, err := s.db.Exec(
		`INSERT INTO assigned_tasks (household_id, assignee_id, title, points, cadence_target, cadence_interval_minutes, is_recurring, requires_approval, created_by)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		householdID, in.AssigneeID, in.Title, in.Points, in.CadenceTarget, in.CadenceIntervalMinutes,
		boolInt(in.IsRecurring), boolInt(in.RequiresApproval), createdBy,
	)
	if err != nil {
		return nil, fmt.Errorf("insert task: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id, householdID)
}

func (s *TaskStore) GetByID(id, householdID int64) (*model.AssignedTask, error) {
	row := s.db.QueryRow(`SELECT `+taskCols+` FROM assigned_tasks WHERE id = ? AND household_id = ?`, id, householdID)
	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return t, nil
}

func (s *TaskStore) ListByHousehold(householdID int64) ([]model.AssignedTask, error) {
	rows, err := s.db.Query(
		`SELECT `+taskCols+` FROM assigned_tasks WHERE household_id = ? ORDER BY title ASC, id ASC`,
		householdID,
	)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()
	return scanTasks(rows)
}

func (s *TaskStore) ListByAssignee(householdID, assigneeID int64) ([]model.AssignedTask, error) {
	rows, err := s.db.Query(
		`SELECT `+taskCols+` FROM assigned_tasks WHERE household_id = ? AND assignee_id = ? ORDER BY title ASC, id ASC`,
		householdID, assigneeID,
	)
	if err != nil {
		return nil, fmt.Errorf("list tasks by assignee: %w", err)
	}
	defer rows.Close()
	return scanTasks(rows)
}

func (s *TaskStore) Update(id, householdID int64, in TaskInput) (*model.AssignedTask, error) {
	_, err := s.db.Exec(
		`UPDATE assigned_tasks
		 SET assignee_id = ?, title = ?, points = ?, cadence_target = ?, cadence_interval_minutes = ?, is_recurring = ?, requires_approval = ?
		 WHERE id = ? AND household_id = ?`,
		in.AssigneeID, in.Title, in.Points, in.CadenceTarget, in.CadenceIntervalMinutes,
		boolInt(in.IsRecurring), boolInt(in.RequiresApproval), id, householdID,
	)
	if err != nil {
		return nil, fmt.Errorf("update task: %w", err)
	}
	return s.GetByID(id, householdID)
}

func (s *TaskStore) Delete(id, householdID int64) error {
	_, err := s.db.Exec(`DELETE FROM assigned_tasks WHERE id = ? AND household_id = ?`, id, householdID)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	return nil
}

func scanTasks(rows *sql.Rows) ([]model.AssignedTask, error) {
	var tasks []model.AssignedTask
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, *t)
	}
	return tasks, rows.Err()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
