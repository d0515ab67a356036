package app

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/lvdund/agent-english-teacher/internal/activity"
	"github.com/lvdund/agent-english-teacher/internal/cache"
	"github.com/lvdund/agent-english-teacher/internal/config"
	"github.com/lvdund/agent-english-teacher/internal/jobs"
	"github.com/lvdund/agent-english-teacher/internal/moderation"
	"github.com/lvdund/agent-english-teacher/internal/models"
	"github.com/lvdund/agent-english-teacher/internal/observability"
	"github.com/lvdund/agent-english-teacher/internal/permissions"
	"github.com/lvdund/agent-english-teacher/internal/rabbitmq"
	"github.com/lvdund/agent-english-teacher/internal/repositories"
	"github.com/lvdund/agent-english-teacher/internal/room"
	"github.com/lvdund/agent-english-teacher/internal/session"
	"github.com/lvdund/agent-english-teacher/internal/telemetry"
	"github.com/lvdund/agent-english-teacher/internal/ws"
)

// Application wires the coordination core together: session registry, room
// registry, permission evaluator, moderation store, activity aggregator and
// the broadcast hub. The outward command surface (REST, whatever) holds one
// Application and calls its methods; nothing here listens on a socket.
type Application struct {
	cfg       *config.AppConfig
	log       zerolog.Logger
	hub       *ws.Hub
	sessions  *session.Registry
	rooms     *room.Registry
	perms     *permissions.Evaluator
	mods      *moderation.Store
	metrics   *activity.Aggregator
	repo      repositories.RoomRepository
	persist   *jobs.PersistQueue
	publisher rabbitmq.Publisher
	scheduler *jobs.Scheduler

	mu           sync.RWMutex
	connByHandle map[string]string

	tracingShutdown func(context.Context) error
}

// Options carries the optional collaborators. Every field may be zero; the
// core runs fully in-memory without them.
type Options struct {
	Repo      repositories.RoomRepository
	Warm      *cache.Warm
	Publisher rabbitmq.Publisher
	Detector  moderation.SpamDetector
}

// New builds an Application from configuration and collaborators.
func New(cfg *config.AppConfig, logger zerolog.Logger, opts Options) *Application {
	publisher := opts.Publisher
	if publisher == nil {
		publisher = rabbitmq.NewPublisher("", cfg.AMQP.Exchange, logger)
	}
	detector := opts.Detector
	if detector == nil {
		detector = moderation.NewRepeatDetector(5)
	}

	observability.SetPublisher(publisher)
	audit := telemetry.NewAuditEmitter(publisher, observability.RoutingModeration, cfg.Service, cfg.Environment, logger)

	app := &Application{
		cfg:          cfg,
		log:          logger.With().Str("component", "app").Logger(),
		hub:          ws.NewHub(logger),
		repo:         opts.Repo,
		publisher:    publisher,
		connByHandle: make(map[string]string),
	}

	app.mods = moderation.NewStore(cfg.Moderation, detector, audit, logger)
	app.metrics = activity.NewAggregator(cfg.Activity, app.mods, logger)
	app.perms = permissions.NewEvaluator(app.mods)
	app.rooms = room.NewRegistry(cfg.Rooms, app.hub, app.metrics, opts.Warm, logger)
	app.sessions = session.NewRegistry(cfg.Session, app, opts.Warm, logger)
	app.persist = jobs.NewPersistQueue(256, 3, 500*time.Millisecond, logger)
	app.scheduler = jobs.NewScheduler(app.mods, app.rooms, app.sessions, app.metrics, logger)

	return app
}

// Init hydrates room state from the backing store and starts the
// background sweeps. Tracing is wired when enabled.
func (a *Application) Init(ctx context.Context) error {
	if a.cfg.Tracing.Enabled {
		shutdown, err := observability.InitTracing(ctx, a.cfg.Tracing.Endpoint, a.cfg.Service, a.cfg.Environment)
		if err != nil {
			// Tracing is an observability aid, never a startup gate.
			a.log.Warn().Err(err).Msg("tracing init failed")
		} else {
			a.tracingShutdown = shutdown
		}
	}

	a.rooms.Hydrate(ctx, a.repo)

	if err := a.scheduler.Start(); err != nil {
		return err
	}

	a.log.Info().
		Str("publisher", rabbitmq.PublisherMode(a.publisher)).
		Msg("coordination core started")
	return nil
}

// Destroy stops the background machinery and flushes the persist queue.
func (a *Application) Destroy(ctx context.Context) {
	a.scheduler.Stop()
	a.persist.Close()
	_ = a.publisher.Close()
	if a.tracingShutdown != nil {
		_ = a.tracingShutdown(ctx)
	}
	a.log.Info().Msg("coordination core stopped")
}

// Sessions exposes the session registry for the outward surface.
func (a *Application) Sessions() *session.Registry { return a.sessions }

// Rooms exposes the room registry.
func (a *Application) Rooms() *room.Registry { return a.rooms }

// Moderation exposes the moderation store.
func (a *Application) Moderation() *moderation.Store { return a.mods }

// Activity exposes the activity aggregator.
func (a *Application) Activity() *activity.Aggregator { return a.metrics }

// Hub exposes the broadcast hub.
func (a *Application) Hub() *ws.Hub { return a.hub }

// ActorOnline implements session.PresenceNotifier: the actor's first live
// handle announces presence to every room they occupy.
func (a *Application) ActorOnline(actorID string, roomIDs []string) {
	for _, roomID := range roomIDs {
		a.hub.Emit(roomID, models.EventPresenceOnline, map[string]any{"actor_id": actorID}, "")
	}
}

// ActorOffline implements session.PresenceNotifier: fired exactly once when
// the actor's last handle closes.
func (a *Application) ActorOffline(actorID string, roomIDs []string) {
	for _, roomID := range roomIDs {
		a.hub.Emit(roomID, models.EventPresenceOffline, map[string]any{"actor_id": actorID}, "")
	}
}

// AdminSnapshot is the read-only operator view: pure projections of the
// core's maps, no side effects.
type AdminSnapshot struct {
	Sessions   session.Stats              `json:"sessions"`
	Rooms      room.Stats                 `json:"rooms"`
	Hub        ws.Stats                   `json:"hub"`
	Moderation moderation.Stats           `json:"moderation"`
	Activity   activity.Stats             `json:"activity"`
	Recent     []models.ModerationOutcome `json:"recent_moderation"`
	TakenAt    time.Time                  `json:"taken_at"`
}

func (a *Application) AdminSnapshot() AdminSnapshot {
	return AdminSnapshot{
		Sessions:   a.sessions.Stats(),
		Rooms:      a.rooms.Stats(),
		Hub:        a.hub.Stats(),
		Moderation: a.mods.Stats(),
		Activity:   a.metrics.Stats(),
		Recent:     a.mods.History("", 20),
		TakenAt:    time.Now(),
	}
}

func (a *Application) bindConn(handleID, connID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.connByHandle[handleID] = connID
}

func (a *Application) connFor(handleID string) string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.connByHandle[handleID]
}

func (a *Application) unbindConn(handleID string) string {
	a.mu.Lock()
	defer a.mu.Unlock()
	connID := a.connByHandle[handleID]
	delete(a.connByHandle, handleID)
	return connID
}
