package httpapi

import (
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"shrimp/internal/manager"
	"shrimp/internal/transform"
)

const (
	serverName = "shrimp"

	headerImageSrc       = "Shrimp-Image-Src"
	headerProcessingTime = "Shrimp-Processing-Time"
	headerResizeTime     = "Shrimp-Resize-Time"
	headerEncodingTime   = "Shrimp-Encoding-Time"

	exposedHeaders = "Shrimp-Processing-Time, Shrimp-Image-Src"
)

// formatMillis renders a duration as milliseconds with fractional precision
// taken from the microsecond part, e.g. 1500us -> "1.5".
func formatMillis(d time.Duration) string {
	return strconv.FormatFloat(float64(d.Microseconds())/1000.0, 'f', -1, 64)
}

// setCommonImageHeaders applies the header set shared by every served
// image, whatever its source.
func setCommonImageHeaders(h http.Header, lastModified time.Time) {
	h.Set("Server", serverName)
	h.Set("Last-Modified", lastModified.UTC().Format(http.TimeFormat))
	h.Set("Access-Control-Allow-Origin", "*")
	h.Set("Access-Control-Expose-Headers", exposedHeaders)
}

// httpResponder adapts one in-flight HTTP exchange to the manager's
// Responder contract. The chi handler goroutine parks on done; the manager
// side makes exactly one terminal call, which releases it.
type httpResponder struct {
	w    http.ResponseWriter
	log  zerolog.Logger
	done chan struct{}
}

func newHTTPResponder(w http.ResponseWriter, log zerolog.Logger) *httpResponder {
	return &httpResponder{w: w, log: log, done: make(chan struct{})}
}

func (h *httpResponder) wait() { <-h.done }

func (h *httpResponder) SendImage(
	blob *transform.Blob,
	format transform.Format,
	src manager.ImageSrc,
	timings *manager.Timings,
) {
	defer close(h.done)

	hdr := h.w.Header()
	setCommonImageHeaders(hdr, blob.CreatedAt)
	hdr.Set("Content-Type", format.ContentType())
	hdr.Set(headerImageSrc, src.String())
	if timings == nil {
		hdr.Set(headerProcessingTime, "0")
	} else {
		hdr.Set(headerProcessingTime, formatMillis(timings.Resize+timings.Encoding))
		hdr.Set(headerResizeTime, formatMillis(timings.Resize))
		hdr.Set(headerEncodingTime, formatMillis(timings.Encoding))
	}
	hdr.Set("Content-Length", strconv.Itoa(len(blob.Data)))

	if _, err := h.w.Write(blob.Data); err != nil {
		// Client is gone; the response is dropped silently.
		h.log.Debug().Err(err).Msg("response write failed")
	}
}

func (h *httpResponder) SendStatus(status int, body string) {
	defer close(h.done)
	writeStatus(h.w, status, body)
}

// writeStatus emits a bare status response. Overload and timeout responses
// close the connection.
func writeStatus(w http.ResponseWriter, status int, body string) {
	h := w.Header()
	h.Set("Server", serverName)
	if status == http.StatusServiceUnavailable || status == http.StatusGatewayTimeout {
		h.Set("Connection", "close")
	}
	if body != "" {
		h.Set("Content-Type", "text/plain; charset=utf-8")
	}
	w.WriteHeader(status)
	if body != "" {
		io.WriteString(w, body)
	}
}
