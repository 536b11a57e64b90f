// Package manager implements the transform manager: a single-writer event
// loop owning the content cache, the pending and in-progress request
// queues, and the pool of transformer workers. All state is mutated from
// one goroutine, so none of it needs locking.
package manager

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"shrimp/internal/cachemap"
	"shrimp/internal/keymvqueue"
	"shrimp/internal/transform"
)

const (
	// MaxCacheBytes bounds the cache; a single entry may exceed it.
	MaxCacheBytes uint64 = 100 * 1024 * 1024
	// MaxPending bounds the number of distinct keys waiting for a worker.
	MaxPending = 64
	// MaxCacheAge is how long an untouched entry survives the age sweep.
	MaxCacheAge = time.Hour
	// ClearCachePeriod is the age-sweep interval.
	ClearCachePeriod = time.Minute
	// MaxPendingTime is how long a request may wait for a worker.
	MaxPendingTime = 20 * time.Second
	// CheckPendingPeriod is the pending-sweep interval.
	CheckPendingPeriod = 5 * time.Second

	// negativeDeleteCacheDelay is the fixed cost of a failed admin auth.
	negativeDeleteCacheDelay = 7 * time.Second

	defaultWorkers    = 2
	defaultInboxDepth = 1024
)

// ManagerConfig encapsulates all tunables for Manager construction.
type ManagerConfig struct {
	// RootDir is the directory the workers load source images from.
	RootDir string
	// Workers is the transformer pool size.
	Workers int
	Logger  zerolog.Logger
	// Tracing logs every envelope entering the loop at trace level.
	Tracing bool
}

type Manager struct {
	log     zerolog.Logger
	tracing bool
	inbox   chan any

	cache      *cachemap.Map[transform.RequestKey, *transform.Blob]
	cacheBytes uint64

	pending    *keymvqueue.Queue[transform.RequestKey, Responder]
	inProgress *keymvqueue.Queue[transform.RequestKey, Responder]

	freeWorkers []chan workerJob
	workers     []*transformer
	workerCount int

	negativeRespDelay time.Duration
	now               func() time.Time
}

// NewWithConfig constructs a Manager and its transformer pool. The workers
// do not run until Run is called.
func NewWithConfig(cfg ManagerConfig) *Manager {
	workers := cfg.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}
	m := &Manager{
		log:               cfg.Logger,
		tracing:           cfg.Tracing,
		inbox:             make(chan any, defaultInboxDepth),
		cache:             cachemap.New[transform.RequestKey, *transform.Blob](),
		pending:           keymvqueue.New[transform.RequestKey, Responder](),
		inProgress:        keymvqueue.New[transform.RequestKey, Responder](),
		workerCount:       workers,
		negativeRespDelay: negativeDeleteCacheDelay,
		now:               time.Now,
	}
	for i := 0; i < workers; i++ {
		t := &transformer{
			log:     cfg.Logger.With().Str("component", fmt.Sprintf("worker_%d", i)).Logger(),
			rootDir: cfg.RootDir,
			jobs:    make(chan workerJob, 1),
		}
		m.workers = append(m.workers, t)
		m.freeWorkers = append(m.freeWorkers, t.jobs)
	}
	freeWorkersGauge.Set(float64(len(m.freeWorkers)))
	return m
}

// SubmitResize admits a parsed resize request into the manager loop.
func (m *Manager) SubmitResize(resp Responder, key transform.RequestKey) {
	m.inbox <- resizeRequest{resp: resp, key: key}
}

// SubmitDeleteCache admits an admin cache-purge request.
func (m *Manager) SubmitDeleteCache(resp Responder, token string) {
	m.inbox <- deleteCacheRequest{resp: resp, token: token}
}

// Run starts the transformer pool and processes messages and timer signals
// until ctx is cancelled. It is the only goroutine touching manager state.
func (m *Manager) Run(ctx context.Context) {
	for _, t := range m.workers {
		go t.run(ctx)
	}

	clearCache := time.NewTicker(ClearCachePeriod)
	defer clearCache.Stop()
	checkPending := time.NewTicker(CheckPendingPeriod)
	defer checkPending.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-m.inbox:
			m.handleMessage(msg)
		case <-clearCache.C:
			m.onClearCache()
		case <-checkPending.C:
			m.onCheckPendingRequests()
		}
	}
}

func (m *Manager) handleMessage(msg any) {
	if m.tracing {
		m.log.Trace().Type("msg", msg).Msg("message delivered")
	}
	switch msg := msg.(type) {
	case resizeRequest:
		m.onResizeRequest(msg)
	case resizeResult:
		m.onResizeResult(msg)
	case deleteCacheRequest:
		m.onDeleteCacheRequest(msg)
	case negativeDeleteCacheResponse:
		m.onNegativeDeleteCacheResponse(msg)
	default:
		m.log.Error().Type("msg", msg).Msg("unknown message type dropped")
	}
}
