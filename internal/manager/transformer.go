package manager

import (
	"context"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"shrimp/internal/transform"
)

// transformer is a worker: it receives a resize-request key, loads the
// source image, resizes and re-encodes it, and replies to the manager with
// the outcome. It has no state beyond the shared read-only root directory.
type transformer struct {
	log     zerolog.Logger
	rootDir string
	jobs    chan workerJob
}

func (t *transformer) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-t.jobs:
			out := t.handleResizeRequest(job.key)
			select {
			case job.replyTo <- resizeResult{worker: t.jobs, key: job.key, outcome: out}:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (t *transformer) handleResizeRequest(key transform.RequestKey) resizeOutcome {
	t.log.Trace().Stringer("request_key", key).Msg("transformation started")

	img, err := transform.Load(filepath.Join(t.rootDir, filepath.FromSlash(key.Path)))
	if err != nil {
		return resizeOutcome{err: err}
	}

	var resizeDur time.Duration
	if key.Params.Mode != transform.KeepOriginal {
		started := time.Now()
		img, err = transform.Resize(img, key.Params)
		resizeDur = time.Since(started)
		if err != nil {
			return resizeOutcome{err: err}
		}
		t.log.Debug().
			Stringer("request_key", key).
			Dur("time", resizeDur).
			Msg("resize finished")
	}

	started := time.Now()
	blob, err := transform.Encode(img, key.Format)
	encodingDur := time.Since(started)
	if err != nil {
		return resizeOutcome{err: err}
	}
	t.log.Debug().
		Stringer("request_key", key).
		Dur("time", encodingDur).
		Msg("serialization finished")

	return resizeOutcome{blob: blob, resizeDur: resizeDur, encodingDur: encodingDur}
}
