package manager

import (
	"time"

	"shrimp/internal/transform"
)

// ImageSrc names where a served image came from, for the Shrimp-Image-Src
// response header.
type ImageSrc int

const (
	SrcCache ImageSrc = iota
	SrcTransform
	SrcSendfile
)

func (s ImageSrc) String() string {
	switch s {
	case SrcCache:
		return "cache"
	case SrcTransform:
		return "transform"
	case SrcSendfile:
		return "sendfile"
	}
	return "unknown"
}

// Timings carries the durations of a completed transformation, reported
// back to clients in response headers.
type Timings struct {
	Resize   time.Duration
	Encoding time.Duration
}

// Responder is the manager's handle on one admitted HTTP request. Exactly
// one terminal call is made per responder: SendImage for a served image,
// SendStatus for everything else. The handle is moved into the pending or
// in-progress queue; duplicating it would produce duplicate responses.
type Responder interface {
	// SendImage serves a blob. timings is nil when the image came from the
	// cache (processing time is reported as zero).
	SendImage(blob *transform.Blob, format transform.Format, src ImageSrc, timings *Timings)
	// SendStatus responds with a bare status and optional plain-text body.
	SendStatus(status int, body string)
}

// Messages delivered to the manager's inbox. The periodic timer signals are
// not inbox messages; they are separate ticker channels in the run loop. The
// delayed negative admin response is posted to the inbox.

type resizeRequest struct {
	resp Responder
	key  transform.RequestKey
}

// resizeOutcome is a worker's report: blob and timings on success, err set
// on failure. The completion handler branches on err.
type resizeOutcome struct {
	blob        *transform.Blob
	resizeDur   time.Duration
	encodingDur time.Duration
	err         error
}

type resizeResult struct {
	worker  chan workerJob
	key     transform.RequestKey
	outcome resizeOutcome
}

type deleteCacheRequest struct {
	resp  Responder
	token string
}

// negativeDeleteCacheResponse carries a failed admin authentication back
// into the loop after the penalty delay.
type negativeDeleteCacheResponse struct {
	resp Responder
	text string
}

// workerJob is what a transformer receives: the key to compute and the
// manager inbox to reply to.
type workerJob struct {
	key     transform.RequestKey
	replyTo chan<- any
}
