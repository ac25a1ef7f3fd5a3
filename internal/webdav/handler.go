package webdav

import (
	"net/http"

	"golang.org/x/net/webdav"

	"github.com/panelfs/panelfs/internal/logging"
	"github.com/panelfs/panelfs/internal/metrics"
)

// MetricsPath serves Prometheus metrics beside the WebDAV tree.
const MetricsPath = "/metrics"

// NewHandler creates the WebDAV HTTP handler. Requests under prefix are
// served from the bridge; MetricsPath serves metrics.
func NewHandler(b Bridge, prefix string, logger *logging.Logger) http.Handler {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	davHandler := &webdav.Handler{
		FileSystem: NewFileSystem(b),
		LockSystem: webdav.NewMemLS(),
		Prefix:     prefix,
		Logger: func(r *http.Request, err error) {
			if err != nil {
				logger.Warn().Err(err).Str("method", r.Method).Str("path", r.URL.Path).Msg("webdav request failed")
				return
			}
			logger.Debug().Str("method", r.Method).Str("path", r.URL.Path).Msg("webdav request")
		},
	}

	mux := http.NewServeMux()
	mux.Handle(MetricsPath, metrics.Handler())
	mux.Handle("/", metrics.Middleware(davHandler))
	return mux
}
