package manager

import (
	"net/http"

	"shrimp/internal/cachemap"
	"shrimp/internal/transform"
)

func (m *Manager) onResizeRequest(req resizeRequest) {
	m.log.Trace().Stringer("request_key", req.key).Msg("request received")

	if h, ok := m.cache.Lookup(req.key); ok {
		m.handleAlreadyTransformedImage(req.resp, h)
		return
	}
	m.handleNotTransformedImage(req.key, req.resp)
}

func (m *Manager) handleAlreadyTransformedImage(
	resp Responder,
	h cachemap.Handle[transform.RequestKey, *transform.Blob],
) {
	m.log.Debug().Stringer("request_key", h.Key()).Msg("transformed image is present in cache")

	// Access time for the cached image is refreshed on every hit.
	m.cache.UpdateAccessTime(h)
	cacheHitsTotal.Inc()

	resp.SendImage(h.Value(), h.Key().Format, SrcCache, nil)
}

func (m *Manager) handleNotTransformedImage(key transform.RequestKey, resp Responder) {
	switch {
	case m.inProgress.HasKey(key):
		// Same request is already being computed; join its waiters.
		m.log.Debug().Stringer("request_key", key).Msg("same request is already in progress")
		m.inProgress.Insert(key, resp)

	case m.pending.HasKey(key):
		m.log.Debug().Stringer("request_key", key).Msg("same request is already pending")
		m.pending.Insert(key, resp)

	case m.pending.UniqueKeys() < MaxPending:
		m.log.Debug().Stringer("request_key", key).Msg("store request to pending requests queue")
		m.pending.Insert(key, resp)
		m.tryInitiatePendingRequestsProcessing()

	default:
		m.log.Warn().Stringer("request_key", key).Msg("request is rejected because of overloading")
		overloadRejectsTotal.Inc()
		resp.SendStatus(http.StatusServiceUnavailable, "")
	}
	pendingKeysGauge.Set(float64(m.pending.UniqueKeys()))
}
