package manager

import (
	"net/http"

	"shrimp/internal/transform"
)

// tryInitiatePendingRequestsProcessing allocates free workers to pending
// keys, oldest key first. Moving a key's requests from pending to
// in-progress is all-or-nothing: the whole per-key range is detached before
// anything is re-inserted.
func (m *Manager) tryInitiatePendingRequestsProcessing() {
	for len(m.freeWorkers) > 0 && !m.pending.Empty() {
		h, _ := m.pending.Oldest()
		key := h.Key()

		m.pending.ExtractValuesForKey(h, func(resp Responder) {
			m.inProgress.Insert(key, resp)
		})

		n := len(m.freeWorkers) - 1
		worker := m.freeWorkers[n]
		m.freeWorkers = m.freeWorkers[:n]

		m.log.Trace().Stringer("request_key", key).Msg("initiate processing of a request")

		worker <- workerJob{key: key, replyTo: m.inbox}
	}
	freeWorkersGauge.Set(float64(len(m.freeWorkers)))
	pendingKeysGauge.Set(float64(m.pending.UniqueKeys()))
}

func (m *Manager) onResizeResult(res resizeResult) {
	m.log.Trace().Stringer("request_key", res.key).Msg("resize result received")

	// The worker is freed and dispatch retried before the fan-out below,
	// so a slow response write cannot throttle new dispatches.
	m.freeWorkers = append(m.freeWorkers, res.worker)
	m.tryInitiatePendingRequestsProcessing()

	h, ok := m.inProgress.FindFirstForKey(res.key)
	if !ok {
		m.log.Error().Stringer("request_key", res.key).Msg("resize result for unknown in-progress key")
		return
	}
	var requests []Responder
	m.inProgress.ExtractValuesForKey(h, func(resp Responder) {
		requests = append(requests, resp)
	})

	if res.outcome.err != nil {
		m.onFailedResize(res.key, res.outcome.err, requests)
		return
	}
	m.onSuccessfulResize(res.key, res.outcome, requests)
}

func (m *Manager) onSuccessfulResize(
	key transform.RequestKey,
	out resizeOutcome,
	requests []Responder,
) {
	m.log.Debug().
		Stringer("request_key", key).
		Uint64("blob_size", out.blob.Size()).
		Msg("successful resize result")

	transformsTotal.Inc()
	m.storeInCache(key, out.blob)

	timings := &Timings{Resize: out.resizeDur, Encoding: out.encodingDur}
	for _, resp := range requests {
		m.log.Trace().Stringer("request_key", key).Msg("sending positive response back")
		// The blob is shared by reference across all coalesced responses.
		resp.SendImage(out.blob, key.Format, SrcTransform, timings)
	}
}

func (m *Manager) onFailedResize(key transform.RequestKey, err error, requests []Responder) {
	m.log.Warn().Stringer("request_key", key).Str("reason", err.Error()).Msg("failed resize")

	transformFailuresTotal.Inc()
	for _, resp := range requests {
		m.log.Trace().Stringer("request_key", key).Msg("sending negative response back")
		resp.SendStatus(http.StatusNotFound, "")
	}
}

// onCheckPendingRequests drops pending requests that waited longer than
// MaxPendingTime, oldest first. In-progress requests are never timed out:
// once a worker has started, the caller waits for the result.
func (m *Manager) onCheckPendingRequests() {
	threshold := m.now().Add(-MaxPendingTime)

	for {
		h, ok := m.pending.Oldest()
		if !ok || !h.StoredAt().Before(threshold) {
			break
		}
		resp := h.Value()
		m.log.Warn().
			Stringer("request_key", h.Key()).
			Msg("reject pending request, too long waiting time")
		m.pending.Erase(h)
		timeoutRejectsTotal.Inc()
		resp.SendStatus(http.StatusGatewayTimeout, "")
	}
	pendingKeysGauge.Set(float64(m.pending.UniqueKeys()))
}
