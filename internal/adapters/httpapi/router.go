package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/Lumos-Programming/profile-api/internal/platform/metrics"
)

type RouterOptions struct {
	// AuthMiddleware, when set, runs for every request. It must let public paths through.
	AuthMiddleware func(http.Handler) http.Handler
	// Metrics, when set, records per-route request metrics and is served on /metrics.
	Metrics *metrics.Metrics
}

// NewRouter constructs the API HTTP router without authentication.
func NewRouter(s *Server) http.Handler {
	return NewRouterWithOptions(s, RouterOptions{})
}

func NewRouterWithOptions(s *Server, opts RouterOptions) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if opts.Metrics != nil {
		r.Use(metricsMiddleware(opts.Metrics))
	}
	if opts.AuthMiddleware != nil {
		r.Use(opts.AuthMiddleware)
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/profile/basic-info", s.GetBasicInfo)
		r.Put("/profile/basic-info", s.PutBasicInfo)
		r.Get("/profile/preview", s.GetPreview)
		r.Get("/profile/completeness", s.GetCompleteness)
		r.Get("/members", s.ListMembers)
		r.Get("/members/{memberId}", s.GetMember)
		r.Get("/accounts/{service}/callback", s.LinkAccountCallback)
	})
	return r
}

// isPublicPath reports paths served without authentication.
func isPublicPath(p string) bool {
	return p == "/healthz" || p == "/metrics"
}

// metricsMiddleware labels requests by chi route pattern, so path parameters do not
// explode label cardinality.
func metricsMiddleware(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			route := ""
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				route = rctx.RoutePattern()
			}
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			m.ObserveRequest(route, r.Method, status, time.Since(start))
		})
	}
}
