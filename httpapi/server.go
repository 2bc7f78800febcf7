package httpapi

import (
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	goRecovery "github.com/MrEthical07/goRecovery"
	"github.com/MrEthical07/goRecovery/metrics/export/prometheus"
	"github.com/MrEthical07/goRecovery/middleware"
)

const DefaultSessionCookie = "grsid"

// Options tunes the router. Zero values are usable.
type Options struct {
	// SessionCookie names the cookie carrying the recovery session id.
	SessionCookie string
	// SessionTTL bounds the cookie lifetime. Zero makes it a browser
	// session cookie.
	SessionTTL time.Duration
	// SecureCookie forces the Secure attribute. It is set automatically for
	// TLS requests.
	SecureCookie bool
	// AllowedOrigins enables CORS for JSON callers on other origins.
	AllowedOrigins []string
	// ExposeMetrics mounts the Prometheus exporter at /metrics.
	ExposeMetrics bool
	// LogRequests enables chi's access log.
	LogRequests bool
}

type handler struct {
	engine *goRecovery.Engine
	opts   Options
}

// NewRouter returns the HTTP surface of engine.
func NewRouter(engine *goRecovery.Engine, opts Options) http.Handler {
	if opts.SessionCookie == "" {
		opts.SessionCookie = DefaultSessionCookie
	}
	h := &handler{engine: engine, opts: opts}

	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	if opts.LogRequests {
		r.Use(chimw.Logger)
	}
	r.Use(chimw.Recoverer)
	r.Use(requestID)
	if len(opts.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   opts.AllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Content-Type", "Authorization"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	})

	r.Route("/forgotpassword", func(r chi.Router) {
		r.Get("/", h.serveRecovery)
		r.Post("/", h.serveRecovery)
		r.Get("/last", h.serveLastResponse)
		r.With(middleware.Guard(engine)).Get("/me", h.serveMe)
	})

	if opts.ExposeMetrics {
		r.Method(http.MethodGet, "/metrics", prometheus.NewPrometheusExporter(engine).Handler())
	}

	return r
}

func (h *handler) serveRecovery(w http.ResponseWriter, r *http.Request) {
	post := r.Method == http.MethodPost
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "invalid form")
		return
	}
	params := r.URL.Query()
	if post {
		params = r.Form
	}

	sessionID := h.sessionID(w, r)
	redirects := post && isBrowserForm(r)

	ctx := goRecovery.WithClientIP(r.Context(), clientIP(r))
	out, err := h.engine.Handle(ctx, goRecovery.Request{
		SessionID: sessionID,
		Post:      post,
		Params:    params,
		Redirects: redirects,
	})
	if err != nil {
		writeEngineError(w, err)
		return
	}

	if out.Redirect != "" && redirects {
		http.Redirect(w, r, out.Redirect, http.StatusSeeOther)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handler) serveLastResponse(w http.ResponseWriter, r *http.Request) {
	c, err := r.Cookie(h.opts.SessionCookie)
	if err != nil || c.Value == "" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	out, err := h.engine.LastResponse(r.Context(), c.Value)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if out == nil {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handler) serveMe(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"contact_id": claims.CID,
		"session_id": claims.SID,
		"locale":     claims.Locale,
	})
}

const requestIDHeader = "X-Request-ID"

// requestID echoes the caller's X-Request-ID or assigns a fresh UUID.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(goRecovery.WithRequestID(r.Context(), id)))
	})
}

// sessionID returns the caller's recovery session, minting one and setting
// the cookie when absent.
func (h *handler) sessionID(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(h.opts.SessionCookie); err == nil {
		if _, err := uuid.Parse(c.Value); err == nil {
			return c.Value
		}
	}

	id := uuid.NewString()
	cookie := &http.Cookie{
		Name:     h.opts.SessionCookie,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.opts.SecureCookie || r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	}
	if h.opts.SessionTTL > 0 {
		cookie.MaxAge = int(h.opts.SessionTTL / time.Second)
	}
	http.SetCookie(w, cookie)
	return id
}

// isBrowserForm reports whether the request is a plain HTML form
// submission rather than an API call.
func isBrowserForm(r *http.Request) bool {
	if strings.Contains(r.Header.Get("Accept"), "application/json") {
		return false
	}
	ct := r.Header.Get("Content-Type")
	return strings.HasPrefix(ct, "application/x-www-form-urlencoded") ||
		strings.HasPrefix(ct, "multipart/form-data")
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, goRecovery.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, goRecovery.ErrSessionUnavailable), errors.Is(err, goRecovery.ErrUnavailable):
		writeError(w, http.StatusServiceUnavailable, "temporarily unavailable")
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
