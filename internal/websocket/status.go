package websocket

import (
	"context"
	"errors"
	"strconv"
	"time"

	"ridematch/internal/metrics"
	"ridematch/internal/models"
	"ridematch/pkg/logger"
)

// StatusStore is the slice of the database StatusSync writes through.
type StatusStore interface {
	GetUserByID(ctx context.Context, id int) (*models.User, error)
	UpsertUserStatus(ctx context.Context, userID int, status models.PresenceStatus, serverInstance *string, connectedAt *time.Time) error
}

// PresenceMirror is an optional second presence sink, shared by all instances.
// Entries expire unless refreshed. SetOffline only clears an entry still
// owned by instance.
type PresenceMirror interface {
	SetOnline(ctx context.Context, userID, instance string) error
	SetOffline(ctx context.Context, userID, instance string) error
	Refresh(ctx context.Context, instance string, userIDs []string) error
}

// LiveSessions lists the users holding a session on this instance.
type LiveSessions interface {
	Users() []string
}

type statusJob struct {
	userID string
	status models.PresenceStatus
	at     time.Time
}

// StatusSync applies presence transitions to the store on a single worker,
// off the connection path. Jobs are dropped when the queue is full.
type StatusSync struct {
	store        StatusStore
	mirror       PresenceMirror
	instance     string
	jobs         chan statusJob
	writeTimeout time.Duration

	live         LiveSessions
	refreshEvery time.Duration
}

func NewStatusSync(store StatusStore, mirror PresenceMirror, instance string, queueSize int) *StatusSync {
	return &StatusSync{
		store:        store,
		mirror:       mirror,
		instance:     instance,
		jobs:         make(chan statusJob, queueSize),
		writeTimeout: 5 * time.Second,
	}
}

func (s *StatusSync) Online(userID string) {
	s.enqueue(statusJob{userID: userID, status: models.StatusOnline, at: time.Now()})
}

func (s *StatusSync) Offline(userID string) {
	s.enqueue(statusJob{userID: userID, status: models.StatusOffline, at: time.Now()})
}

func (s *StatusSync) enqueue(job statusJob) {
	select {
	case s.jobs <- job:
	default:
		metrics.StatusQueueDroppedTotal.Inc()
		logger.Warn().Str("user_id", job.userID).Str("status", string(job.status)).Msg("status queue full, dropping update")
	}
}

// KeepAlive makes Run refresh the mirror entries of every live session each
// interval. Call it before Run; it has no effect without a mirror.
func (s *StatusSync) KeepAlive(live LiveSessions, every time.Duration) {
	s.live = live
	s.refreshEvery = every
}

// Run processes jobs until ctx is done, then drains what is already queued.
func (s *StatusSync) Run(ctx context.Context) error {
	var tick <-chan time.Time
	if s.mirror != nil && s.live != nil && s.refreshEvery > 0 {
		ticker := time.NewTicker(s.refreshEvery)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case job := <-s.jobs:
			s.apply(ctx, job)
		case <-tick:
			s.refresh(ctx)
		case <-ctx.Done():
			s.drain()
			return nil
		}
	}
}

func (s *StatusSync) drain() {
	for {
		select {
		case job := <-s.jobs:
			s.apply(context.Background(), job)
		default:
			return
		}
	}
}

func (s *StatusSync) apply(ctx context.Context, job statusJob) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.writeTimeout)
	defer cancel()

	status := string(job.status)
	log := logger.With().Str("user_id", job.userID).Str("status", status).Logger()

	id, err := strconv.Atoi(job.userID)
	if err != nil {
		metrics.StatusSyncTotal.WithLabelValues(status, "skipped").Inc()
		log.Warn().Msg("non-numeric user id, skipping status write")
		return
	}

	var instance *string
	var connectedAt *time.Time
	if job.status == models.StatusOnline {
		if _, err := s.store.GetUserByID(ctx, id); err != nil {
			if errors.Is(err, models.ErrNotFound) {
				metrics.StatusSyncTotal.WithLabelValues(status, "skipped").Inc()
				log.Warn().Msg("user row missing, skipping status write")
				return
			}
			metrics.StatusSyncTotal.WithLabelValues(status, "error").Inc()
			log.Error().Err(err).Msg("failed to look up user for status write")
			return
		}
		instance = &s.instance
		connectedAt = &job.at
	}

	if err := s.store.UpsertUserStatus(ctx, id, job.status, instance, connectedAt); err != nil {
		metrics.StatusSyncTotal.WithLabelValues(status, "error").Inc()
		log.Error().Err(err).Msg("failed to write user status")
	} else {
		metrics.StatusSyncTotal.WithLabelValues(status, "ok").Inc()
	}

	if s.mirror == nil {
		return
	}
	if job.status == models.StatusOnline {
		err = s.mirror.SetOnline(ctx, job.userID, s.instance)
	} else {
		err = s.mirror.SetOffline(ctx, job.userID, s.instance)
	}
	if err != nil {
		log.Error().Err(err).Msg("failed to mirror presence")
	}
}

func (s *StatusSync) refresh(ctx context.Context) {
	users := s.live.Users()
	if len(users) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, s.writeTimeout)
	defer cancel()

	if err := s.mirror.Refresh(ctx, s.instance, users); err != nil {
		metrics.PresenceRefreshTotal.WithLabelValues("error").Inc()
		logger.Error().Err(err).Int("users", len(users)).Msg("failed to refresh presence")
		return
	}
	metrics.PresenceRefreshTotal.WithLabelValues("ok").Inc()
}
