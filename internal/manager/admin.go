package manager

import (
	"net/http"
	"os"
	"time"
)

// adminTokenEnv names the environment variable holding the purge token.
const adminTokenEnv = "SHRIMP_ADMIN_TOKEN"

// onDeleteCacheRequest authenticates an admin purge. Any negative outcome
// is answered only after a fixed delay: the 403 is posted back to the loop
// as a delayed self-message, so online token guessing pays wall-clock time
// per attempt without ever blocking the loop.
func (m *Manager) onDeleteCacheRequest(req deleteCacheRequest) {
	m.log.Warn().Str("token", req.token).Msg("delete cache request received")

	delayResponse := func(text string) {
		resp := req.resp
		time.AfterFunc(m.negativeRespDelay, func() {
			m.inbox <- negativeDeleteCacheResponse{resp: resp, text: text}
		})
	}

	envToken := os.Getenv(adminTokenEnv)
	if envToken == "" {
		m.log.Warn().Msg("delete cache can't be performed because there is no admin token defined")
		delayResponse("No admin token defined\r\n")
		return
	}
	if req.token != envToken {
		m.log.Error().Str("token", req.token).Msg("invalid token value for delete cache request")
		delayResponse("Token value mismatch\r\n")
		return
	}

	m.cache.Clear()
	m.cacheBytes = 0
	m.updateCacheGauges()

	m.log.Info().Msg("cache deleted")
	req.resp.SendStatus(http.StatusOK, "Cache deleted\r\n")
}

func (m *Manager) onNegativeDeleteCacheResponse(msg negativeDeleteCacheResponse) {
	m.log.Debug().Msg("send negative response to delete cache request")
	msg.resp.SendStatus(http.StatusForbidden, msg.text)
}
