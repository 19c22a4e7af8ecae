package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/jonocairns/tskr/internal/backup"
	"github.com/jonocairns/tskr/internal/chore"
	"github.com/jonocairns/tskr/internal/config"
	"github.com/jonocairns/tskr/internal/handler"
	"github.com/jonocairns/tskr/internal/middleware"
	"github.com/jonocairns/tskr/internal/model"
	"github.com/jonocairns/tskr/internal/push"
	"github.com/jonocairns/tskr/internal/reminder"
	"github.com/jonocairns/tskr/internal/store"
	ws "github.com/jonocairns/tskr/internal/websocket"
)

// Names under which background loops are registered.
const (
	SchedulerName   = "reminders"
	MaintenanceName = "maintenance"
	BackupName      = "backup"
)

const maintenanceInterval = time.Hour

type Server struct {
	db     *sql.DB
	cfg    *config.Config
	logger *slog.Logger
	hub    *ws.Hub

	sessionStore   *store.SessionStore
	householdStore *store.HouseholdStore
	reminderStore  *store.ReminderStore

	pushService *push.Service
	backups     *backup.Manager
	scheduler   *reminder.Scheduler
	registry    *reminder.Registry
	rateLimiter *middleware.RateLimiter

	taskH     *handler.TaskHandler
	pointH    *handler.PointHandler
	reminderH *handler.ReminderHandler
	pushH     *handler.PushHandler
	sessionH  *handler.SessionHandler
}

func New(db *sql.DB, cfg *config.Config, logger *slog.Logger) *Server {
	hub := ws.NewHub(logger.With("component", "websocket"))

	userStore := store.NewUserStore(db)
	householdStore := store.NewHouseholdStore(db)
	sessionStore := store.NewSessionStore(db)
	taskStore := store.NewTaskStore(db)
	pointStore := store.NewPointLogStore(db)
	reminderStore := store.NewReminderStore(db)
	pushStore := store.NewPushStore(db)

	pushSvc := push.NewService(push.Config{
		VAPIDPublicKey:  cfg.VAPIDPublicKey,
		VAPIDPrivateKey: cfg.VAPIDPrivateKey,
		Subject:         cfg.VAPIDSubject,
	})
	broadcaster := push.NewBroadcaster(pushSvc, pushStore, logger)

	finder := reminder.NewFinder(reminderStore, pointStore, logger)
	sender := reminder.NewSender(reminderStore, broadcaster, logger)
	calc := chore.NewCalculator(cfg.CadenceLocation(), logger.With("component", "cadence"))

	return &Server{
		db:             db,
		cfg:            cfg,
		logger:         logger,
		hub:            hub,
		sessionStore:   sessionStore,
		householdStore: householdStore,
		reminderStore:  reminderStore,
		pushService:    pushSvc,
		backups:        backup.NewManager(cfg.Backup(), db, logger),
		scheduler:      reminder.NewScheduler(finder, sender, cfg.ReminderPollInterval, logger),
		registry:       reminder.NewRegistry(),
		rateLimiter:    middleware.NewRateLimiter(),
		taskH:          handler.NewTaskHandler(taskStore, pointStore, householdStore, calc, hub, logger),
		pointH:         handler.NewPointHandler(pointStore, householdStore, hub, logger),
		reminderH:      handler.NewReminderHandler(reminderStore, logger),
		pushH:          handler.NewPushHandler(pushStore, pushSvc, broadcaster, logger),
		sessionH:       handler.NewSessionHandler(userStore, householdStore, sessionStore, middleware.SessionCookieName, logger),
	}
}

// Scheduler returns the reminder scheduler.
func (s *Server) Scheduler() *reminder.Scheduler {
	return s.scheduler
}

// Start launches the background loops: hourly maintenance always, the
// reminder scheduler when reminders are enabled and push is configured, and
// periodic snapshots when backup storage is configured.
func (s *Server) Start(ctx context.Context) {
	s.registry.Start(ctx, MaintenanceName, reminder.NewLoop(maintenanceInterval, s.Cleanup, false, s.logger.With("component", "maintenance")))

	switch {
	case !s.cfg.RemindersEnabled:
		s.logger.Info("reminder scheduler disabled")
	case !s.pushService.Enabled():
		s.logger.Warn("reminder scheduler not started, VAPID keys are not configured")
	default:
		s.registry.Start(ctx, SchedulerName, s.scheduler)
	}

	if s.backups.Enabled() {
		s.registry.Start(ctx, BackupName, reminder.NewLoop(s.cfg.BackupInterval, s.runBackup, false, s.logger.With("component", "backup")))
	}
}

func (s *Server) runBackup(ctx context.Context) {
	if _, err := s.backups.Run(ctx); err != nil {
		s.logger.Error("scheduled backup failed", "component", "backup", "error", err)
	}
}

// Stop stops every background loop and waits for them to return.
func (s *Server) Stop() {
	s.registry.StopAll()
}

// Cleanup removes expired sessions, stale rate limiter entries, and send
// logs older than the configured retention.
func (s *Server) Cleanup(ctx context.Context) {
	log := s.logger.With("component", "maintenance")

	sessions, err := s.sessionStore.DeleteExpired()
	if err != nil {
		log.Error("cleanup sessions", "error", err)
	}
	limits := s.rateLimiter.Cleanup()
	sendLogs, err := s.reminderStore.CleanupSendLogs(ctx, time.Now().Add(-s.cfg.SendLogRetention))
	if err != nil {
		log.Error("cleanup send logs", "error", err)
	}

	log.Info("maintenance complete", "sessions", sessions, "rate_limits", limits, "send_logs", sendLogs)
}

func (s *Server) Router() http.Handler {
	outerMux := http.NewServeMux()
	outerMux.HandleFunc("GET /health", s.healthHandler)

	protectedMux := http.NewServeMux()
	s.registerProtectedRoutes(protectedMux)

	authMiddleware := middleware.RequireAuth(s.sessionStore, s.householdStore)
	outerMux.Handle("/", authMiddleware(protectedMux))

	return middleware.RequestLogger(s.logger.With("component", "http"))(outerMux)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	status, code := "ok", http.StatusOK
	if err := s.db.PingContext(r.Context()); err != nil {
		status, code = "database unavailable", http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]any{
		"status":    status,
		"push":      s.pushService.Enabled(),
		"reminders": s.registry.Running(SchedulerName),
		"backup":    s.backups.Status(),
	})
}

func only(roles ...model.Role) func(http.HandlerFunc) http.Handler {
	gate := middleware.RequireRole(roles...)
	return func(h http.HandlerFunc) http.Handler { return gate(h) }
}

func (s *Server) registerProtectedRoutes(mux *http.ServeMux) {
	dictator := only(model.RoleDictator)
	approver := only(model.RoleDictator, model.RoleApprover)

	mux.HandleFunc("GET /api/me", s.sessionH.Me)
	mux.HandleFunc("POST /api/logout", s.sessionH.Logout)
	mux.HandleFunc("POST /api/households/{id}/switch", s.sessionH.SwitchHousehold)

	// Tasks
	completeLimit := middleware.RateLimit(s.rateLimiter, middleware.ByUser, s.cfg.CompleteRateLimit, s.cfg.CompleteRateWindow)
	mux.HandleFunc("GET /api/tasks", s.taskH.List)
	mux.HandleFunc("GET /api/tasks/{id}", s.taskH.Get)
	mux.Handle("POST /api/tasks", dictator(s.taskH.Create))
	mux.Handle("PUT /api/tasks/{id}", dictator(s.taskH.Update))
	mux.Handle("DELETE /api/tasks/{id}", dictator(s.taskH.Delete))
	mux.Handle("POST /api/tasks/{id}/complete", completeLimit(http.HandlerFunc(s.taskH.Complete)))

	// Points
	mux.Handle("GET /api/points/pending", approver(s.pointH.Pending))
	mux.Handle("POST /api/points/{id}/approve", approver(s.pointH.Approve))
	mux.Handle("POST /api/points/{id}/reject", approver(s.pointH.Reject))
	mux.HandleFunc("POST /api/points/{id}/revert", s.pointH.Revert)
	mux.HandleFunc("GET /api/points/balance", s.pointH.Balance)
	mux.Handle("POST /api/points/adjust", dictator(s.pointH.Adjust))

	// Reminder settings
	mux.HandleFunc("GET /api/reminders/household", s.reminderH.GetHousehold)
	mux.Handle("PUT /api/reminders/household", dictator(s.reminderH.UpdateHousehold))
	mux.HandleFunc("GET /api/reminders/me", s.reminderH.GetMine)
	mux.HandleFunc("PUT /api/reminders/me", s.reminderH.UpdateMine)
	mux.HandleFunc("GET /api/reminders/me/effective", s.reminderH.Effective)
	mux.HandleFunc("POST /api/reminders/me/pause", s.reminderH.Pause)
	mux.HandleFunc("POST /api/reminders/me/resume", s.reminderH.Resume)
	mux.HandleFunc("GET /api/reminders/logs", s.reminderH.Logs)
	mux.HandleFunc("POST /api/reminders/logs/{id}/snooze", s.reminderH.Snooze)
	mux.HandleFunc("POST /api/reminders/logs/{id}/dismiss", s.reminderH.Dismiss)

	// Push notifications
	mux.HandleFunc("GET /api/push/vapid-key", s.pushH.GetVAPIDKey)
	if s.pushService.Enabled() {
		mux.HandleFunc("POST /api/push/subscribe", s.pushH.Subscribe)
		mux.HandleFunc("DELETE /api/push/subscriptions/{id}", s.pushH.Unsubscribe)
		mux.HandleFunc("GET /api/push/subscriptions", s.pushH.ListSubscriptions)
		mux.HandleFunc("POST /api/push/test", s.pushH.TestNotification)
	}

	mux.HandleFunc("GET /ws", ws.HandleWebSocket(s.hub, s.originPatterns(), s.logger.With("component", "websocket")))
}

// originPatterns returns the websocket origins to accept. Without explicit
// configuration only the base URL's host is allowed.
func (s *Server) originPatterns() []string {
	if len(s.cfg.WebSocketOrigins) > 0 {
		return s.cfg.WebSocketOrigins
	}
	u, err := url.Parse(s.cfg.BaseURL)
	if err != nil || u.Host == "" {
		return nil
	}
	return []string{u.Host}
}
