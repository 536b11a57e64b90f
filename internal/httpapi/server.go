package httpapi

import (
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"shrimp/internal/manager"
	"shrimp/internal/transform"
)

// Service defines the methods required by the HTTP API layer.
type Service interface {
	SubmitResize(resp manager.Responder, key transform.RequestKey)
	SubmitDeleteCache(resp manager.Responder, token string)
}

// Options configures the router.
type Options struct {
	// RootDir is where original images are served from on the
	// no-query-string path.
	RootDir string
	// Throttle bounds concurrently processed requests; 0 disables.
	Throttle int
	// Tracing logs every request at trace level.
	Tracing bool
	Logger  zerolog.Logger
}

func NewMux(svc Service, opts Options) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if opts.Throttle > 0 {
		r.Use(middleware.Throttle(opts.Throttle))
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "DELETE"},
		ExposedHeaders: []string{headerProcessingTime, headerImageSrc},
	}))
	r.Use(MetricsMiddleware)
	if opts.Tracing {
		r.Use(traceRequests(opts.Logger))
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	// Prometheus metrics endpoint
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	MountSwagger(r)

	r.Delete("/cache", func(w http.ResponseWriter, r *http.Request) {
		token := r.URL.Query().Get("token")
		if token == "" {
			writeStatus(w, http.StatusForbidden, "No token provided\r\n")
			return
		}
		resp := newHTTPResponder(w, opts.Logger)
		svc.SubmitDeleteCache(resp, token)
		resp.wait()
	})

	r.Get("/*", func(w http.ResponseWriter, r *http.Request) {
		handleImageRequest(svc, opts, w, r)
	})

	return r
}

// hasIllegalPathComponents rejects traversal and double slashes.
func hasIllegalPathComponents(path string) bool {
	return strings.Contains(path, "..") || strings.Contains(path, "//")
}

// imageExtension extracts a 3-4 character extension, the only shape the
// image route accepts.
func imageExtension(path string) (string, bool) {
	idx := strings.LastIndexByte(path, '.')
	if idx < 0 {
		return "", false
	}
	ext := path[idx+1:]
	if len(ext) < 3 || len(ext) > 4 || strings.ContainsRune(ext, '/') {
		return "", false
	}
	return ext, true
}

// detectTargetFormat picks the format from the target-format parameter if
// present, else from the URL extension.
func detectTargetFormat(ext string, targetFormat string) (transform.Format, bool) {
	if targetFormat != "" {
		return transform.FormatFromExtension(targetFormat)
	}
	return transform.FormatFromExtension(ext)
}

func parseOptUint32(qp url.Values, name string) (*uint32, error) {
	s := qp.Get(name)
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return nil, err
	}
	u := uint32(v)
	return &u, nil
}

func handleImageRequest(svc Service, opts Options, w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path

	if hasIllegalPathComponents(path) {
		writeStatus(w, http.StatusBadRequest, "")
		return
	}

	ext, ok := imageExtension(path)
	if !ok {
		writeStatus(w, http.StatusNotFound, "")
		return
	}

	qp := r.URL.Query()
	targetFormat := qp.Get("target-format")

	format, ok := detectTargetFormat(ext, targetFormat)
	if !ok {
		// Target format of the image is unspecified or unknown.
		writeStatus(w, http.StatusBadRequest, "")
		return
	}

	if len(qp) == 0 {
		// No query string: serve the original file.
		serveAsRegularFile(opts, w, r, format)
		return
	}

	if op := qp.Get("op"); op != "" && op != "resize" {
		// Only the resize operation is supported.
		writeStatus(w, http.StatusBadRequest, "")
		return
	} else if op == "" && targetFormat == "" {
		// op=resize or target-format=something must be defined.
		writeStatus(w, http.StatusBadRequest, "")
		return
	}

	params, err := parseResizeParams(qp)
	if err != nil {
		writeStatus(w, http.StatusBadRequest, "")
		return
	}

	resp := newHTTPResponder(w, opts.Logger)
	svc.SubmitResize(resp, transform.RequestKey{Path: path, Format: format, Params: params})
	resp.wait()
}

func parseResizeParams(qp url.Values) (transform.ResizeParams, error) {
	width, err := parseOptUint32(qp, "width")
	if err != nil {
		return transform.ResizeParams{}, err
	}
	height, err := parseOptUint32(qp, "height")
	if err != nil {
		return transform.ResizeParams{}, err
	}
	maxSide, err := parseOptUint32(qp, "max")
	if err != nil {
		return transform.ResizeParams{}, err
	}

	params, err := transform.MakeResizeParams(width, height, maxSide)
	if err != nil {
		return transform.ResizeParams{}, err
	}
	if err := params.CheckConstraints(); err != nil {
		return transform.ResizeParams{}, err
	}
	return params, nil
}

// joinRoot resolves a URL path against the images root directory.
func joinRoot(root, urlPath string) string {
	return filepath.Join(root, filepath.FromSlash(urlPath))
}

func serveAsRegularFile(opts Options, w http.ResponseWriter, r *http.Request, format transform.Format) {
	full := joinRoot(opts.RootDir, r.URL.Path)

	f, err := os.Open(full)
	if err != nil {
		writeStatus(w, http.StatusNotFound, "")
		return
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil || st.IsDir() {
		writeStatus(w, http.StatusNotFound, "")
		return
	}

	setCommonImageHeaders(w.Header(), st.ModTime())
	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set(headerImageSrc, manager.SrcSendfile.String())
	http.ServeContent(w, r, "", st.ModTime(), f)
}
