package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/jonocairns/tskr/internal/auth"
	"github.com/jonocairns/tskr/internal/chore"
	"github.com/jonocairns/tskr/internal/model"
	"github.com/jonocairns/tskr/internal/store"
	"github.com/jonocairns/tskr/internal/websocket"
)

var errTaskInactive = errors.New("task is not active")

type TaskHandler struct {
	tasks   *store.TaskStore
	points  *store.PointLogStore
	members *store.HouseholdStore
	calc    *chore.Calculator
	hub     *websocket.Hub
	logger  *slog.Logger
	now     func() time.Time
}

func NewTaskHandler(ts *store.TaskStore, ps *store.PointLogStore, hs *store.HouseholdStore, calc *chore.Calculator, hub *websocket.Hub, logger *slog.Logger) *TaskHandler {
	return &TaskHandler{
		tasks:   ts,
		points:  ps,
		members: hs,
		calc:    calc,
		hub:     hub,
		logger:  logger.With("component", "tasks"),
		now:     time.Now,
	}
}

func (h *TaskHandler) broadcast(householdID int64, ev websocket.Event) {
	if h.hub != nil {
		h.hub.Broadcast(householdID, ev)
	}
}

type taskRequest struct {
	AssigneeID             int64  `json:"assignee_id" validate:"required"`
	Title                  string `json:"title" validate:"required,max=200"`
	Points                 int    `json:"points" validate:"min=0"`
	CadenceTarget          int    `json:"cadence_target" validate:"min=1"`
	CadenceIntervalMinutes int    `json:"cadence_interval_minutes" validate:"min=1,max=5256000"`
	IsRecurring            bool   `json:"is_recurring"`
	RequiresApproval       bool   `json:"requires_approval"`
}

func (req taskRequest) input() store.TaskInput {
	return store.TaskInput{
		AssigneeID:             req.AssigneeID,
		Title:                  strings.TrimSpace(req.Title),
		Points:                 req.Points,
		CadenceTarget:          req.CadenceTarget,
		CadenceIntervalMinutes: req.CadenceIntervalMinutes,
		IsRecurring:            req.IsRecurring,
		RequiresApproval:       req.RequiresApproval,
	}
}

// taskView is a task together with its cadence state at request time.
type taskView struct {
	model.AssignedTask
	State chore.State `json:"state"`
}

func policyOf(t *model.AssignedTask) chore.Policy {
	return chore.Policy{
		Target:          t.CadenceTarget,
		IntervalMinutes: t.CadenceIntervalMinutes,
		IsRecurring:     t.IsRecurring,
	}
}

func (h *TaskHandler) view(r *http.Request, t *model.AssignedTask) (taskView, error) {
	completions, err := h.points.ListCompletionTimes(r.Context(), t.ID)
	if err != nil {
		return taskView{}, err
	}
	return taskView{
		AssignedTask: *t,
		State:        h.calc.State(t.ID, policyOf(t), completions, h.now()),
	}, nil
}

// readTaskRequest decodes a create/update body and checks the assignee
// belongs to the household.
func (h *TaskHandler) readTaskRequest(w http.ResponseWriter, r *http.Request) (taskRequest, bool) {
	var req taskRequest
	if !decodeJSON(w, r, &req) {
		return req, false
	}
	if strings.TrimSpace(req.Title) == "" {
		writeError(w, http.StatusBadRequest, "title is required")
		return req, false
	}
	member, err := h.members.GetMember(auth.HouseholdID(r.Context()), req.AssigneeID)
	if err != nil {
		h.logger.Error("get assignee", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to check assignee")
		return req, false
	}
	if member == nil {
		writeError(w, http.StatusBadRequest, "assignee is not a household member")
		return req, false
	}
	return req, true
}

// Create handles POST /api/tasks
func (h *TaskHandler) Create(w http.ResponseWriter, r *http.Request) {
	req, ok := h.readTaskRequest(w, r)
	if !ok {
		return
	}

	householdID := auth.HouseholdID(r.Context())
	task, err := h.tasks.Create(householdID, auth.UserID(r.Context()), req.input())
	if err != nil {
		h.logger.Error("create task", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create task")
		return
	}

	h.broadcast(householdID, websocket.NewEvent("task", "created", task.ID, task.AssigneeID, nil))
	writeJSON(w, http.StatusCreated, taskView{AssignedTask: *task, State: chore.State{IsActive: true}})
}

// List handles GET /api/tasks, optionally filtered by ?assignee_id=.
func (h *TaskHandler) List(w http.ResponseWriter, r *http.Request) {
	householdID := auth.HouseholdID(r.Context())

	var (
		tasks []model.AssignedTask
		err   error
	)
	if v := r.URL.Query().Get("assignee_id"); v != "" {
		assigneeID, perr := strconv.ParseInt(v, 10, 64)
		if perr != nil {
			writeError(w, http.StatusBadRequest, "invalid assignee_id")
			return
		}
		tasks, err = h.tasks.ListByAssignee(householdID, assigneeID)
	} else {
		tasks, err = h.tasks.ListByHousehold(householdID)
	}
	if err != nil {
		h.logger.Error("list tasks", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list tasks")
		return
	}

	views := make([]taskView, 0, len(tasks))
	for i := range tasks {
		v, err := h.view(r, &tasks[i])
		if err != nil {
			h.logger.Error("compute task state", "task_id", tasks[i].ID, "error", err)
			writeError(w, http.StatusInternalServerError, "failed to list tasks")
			return
		}
		views = append(views, v)
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *TaskHandler) load(w http.ResponseWriter, r *http.Request) (*model.AssignedTask, bool) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return nil, false
	}
	task, err := h.tasks.GetByID(id, auth.HouseholdID(r.Context()))
	if err != nil {
		h.logger.Error("get task", "task_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get task")
		return nil, false
	}
	if task == nil {
		writeError(w, http.StatusNotFound, "task not found")
		return nil, false
	}
	return task, true
}

// Get handles GET /api/tasks/{id}
func (h *TaskHandler) Get(w http.ResponseWriter, r *http.Request) {
	task, ok := h.load(w, r)
	if !ok {
		return
	}
	v, err := h.view(r, task)
	if err != nil {
		h.logger.Error("compute task state", "task_id", task.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get task")
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// Update handles PUT /api/tasks/{id}
func (h *TaskHandler) Update(w http.ResponseWriter, r *http.Request) {
	existing, ok := h.load(w, r)
	if !ok {
		return
	}
	req, ok := h.readTaskRequest(w, r)
	if !ok {
		return
	}

	task, err := h.tasks.Update(existing.ID, existing.HouseholdID, req.input())
	if err != nil {
		h.logger.Error("update task", "task_id", existing.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update task")
		return
	}
	v, err := h.view(r, task)
	if err != nil {
		h.logger.Error("compute task state", "task_id", task.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update task")
		return
	}

	h.broadcast(task.HouseholdID, websocket.NewEvent("task", "updated", task.ID, task.AssigneeID, nil))
	writeJSON(w, http.StatusOK, v)
}

// Delete handles DELETE /api/tasks/{id}
func (h *TaskHandler) Delete(w http.ResponseWriter, r *http.Request) {
	task, ok := h.load(w, r)
	if !ok {
		return
	}
	if err := h.tasks.Delete(task.ID, task.HouseholdID); err != nil {
		h.logger.Error("delete task", "task_id", task.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete task")
		return
	}

	h.broadcast(task.HouseholdID, websocket.NewEvent("task", "deleted", task.ID, task.AssigneeID, nil))
	w.WriteHeader(http.StatusNoContent)
}

// Complete handles POST /api/tasks/{id}/complete. The completion is
// recorded for the assignee; only the assignee or a dictator may log it.
func (h *TaskHandler) Complete(w http.ResponseWriter, r *http.Request) {
	task, ok := h.load(w, r)
	if !ok {
		return
	}

	ac, _ := auth.FromContext(r.Context())
	if ac.UserID != task.AssigneeID && ac.Role != model.RoleDictator {
		writeError(w, http.StatusForbidden, "only the assignee can complete this task")
		return
	}

	var body struct {
		Note string `json:"note" validate:"max=500"`
	}
	if r.ContentLength > 0 && !decodeJSON(w, r, &body) {
		return
	}

	status := model.StatusApproved
	if task.RequiresApproval && !ac.Role.CanApprove() {
		status = model.StatusPending
	}

	now := h.now()
	policy := policyOf(task)
	var state chore.State
	entry, err := h.points.CreateForTask(r.Context(), store.PointLogInput{
		HouseholdID: task.HouseholdID,
		UserID:      task.AssigneeID,
		TaskID:      &task.ID,
		Kind:        model.KindPreset,
		Points:      task.Points,
		Status:      status,
		Note:        strings.TrimSpace(body.Note),
		CreatedAt:   now,
	}, func(completions []time.Time) error {
		state = h.calc.State(task.ID, policy, completions, now)
		if !state.IsActive {
			return errTaskInactive
		}
		state = chore.ComputeState(policy, append(completions, now), now, h.calc.Location())
		return nil
	})
	if errors.Is(err, errTaskInactive) {
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":         errTaskInactive.Error(),
			"progress":      state.Progress,
			"next_reset_at": state.NextResetAt,
		})
		return
	}
	if err != nil {
		h.logger.Error("complete task", "task_id", task.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to complete task")
		return
	}

	h.broadcast(task.HouseholdID, websocket.NewEvent("task", "completed", task.ID, task.AssigneeID, map[string]any{
		"point_log_id": entry.ID,
		"status":       entry.Status,
		"points":       entry.Points,
	}))
	writeJSON(w, http.StatusCreated, map[string]any{
		"point_log": entry,
		"state":     state,
	})
}
