package httpx

import (
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
)

// Headers the gateway sets on forwarded requests. Client-supplied values are dropped.
const (
	HeaderIdentityID = "X-Lms-Identity"
	HeaderRole       = "X-Lms-Role"
)

// NewUpstreamProxy forwards requests the route guard admitted to the front end. The
// caller's identity and role travel as headers.
func NewUpstreamProxy(target *url.URL, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "upstream_proxy")
	return &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(target)
			pr.SetXForwarded()
			pr.Out.Header.Del(HeaderIdentityID)
			pr.Out.Header.Del(HeaderRole)
			snap, ok := SnapshotFromContext(pr.In.Context())
			if !ok || snap.Identity == nil {
				return
			}
			pr.Out.Header.Set(HeaderIdentityID, snap.Identity.ID)
			if role, ok := snap.Role(); ok {
				pr.Out.Header.Set(HeaderRole, role.String())
			}
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			logger.WarnContext(r.Context(), "upstream request failed", "path", r.URL.Path, "error", err)
			http.Error(w, http.StatusText(http.StatusBadGateway), http.StatusBadGateway)
		},
	}
}
