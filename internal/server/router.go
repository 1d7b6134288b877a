package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"mime"
	"net/http"
	"path/filepath"
	"time"

	"github.com/offpress/pagecache/internal/cache"
	"github.com/offpress/pagecache/internal/metrics"
	"github.com/offpress/pagecache/internal/templates"
)

// Router serves cached pages and the admin cache API. Page requests flow
// through the response cache with conditional request handling; admin routes
// expose statistics, health, and invalidation controls.
type Router struct {
	logger   *slog.Logger
	service  *cache.Service
	renderer *templates.Renderer
	recorder *metrics.Recorder
}

// NewRouter assembles the HTTP handler for the page and admin surfaces.
func NewRouter(logger *slog.Logger, service *cache.Service, renderer *templates.Renderer, recorder *metrics.Recorder) http.Handler {
	rt := &Router{
		logger:   logger.With(slog.String("component", "router")),
		service:  service,
		renderer: renderer,
		recorder: recorder,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.serveHealthz)
	mux.Handle("GET /metrics", recorder.Handler())
	mux.HandleFunc("GET /pages/{page...}", rt.servePage)
	mux.HandleFunc("GET /admin/cache/stats", rt.admin("/admin/cache/stats", rt.serveStats))
	mux.HandleFunc("GET /admin/cache/health", rt.admin("/admin/cache/health", rt.serveHealth))
	mux.HandleFunc("POST /admin/cache/clear", rt.admin("/admin/cache/clear", rt.serveClear))
	mux.HandleFunc("POST /admin/cache/warm", rt.admin("/admin/cache/warm", rt.serveWarm))
	mux.HandleFunc("POST /admin/cache/invalidate", rt.admin("/admin/cache/invalidate", rt.serveInvalidate))
	mux.HandleFunc("POST /admin/cache/reset-stats", rt.admin("/admin/cache/reset-stats", rt.serveResetStats))
	return mux
}

// servePage delivers a rendered page through the response cache, answering
// conditional requests with 304 when the client's validators still hold.
func (rt *Router) servePage(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	page := r.PathValue("page")
	urlKey := r.URL.Path
	variant := r.URL.RawQuery

	source := rt.renderer.Source()
	if source == nil {
		rt.writeError(w, http.StatusServiceUnavailable, "page serving not configured")
		rt.recorder.ObservePage(http.StatusServiceUnavailable, false, time.Since(start))
		return
	}
	if page == "" {
		rt.writeError(w, http.StatusNotFound, "page not found")
		rt.recorder.ObservePage(http.StatusNotFound, false, time.Since(start))
		return
	}
	if _, err := source.Resolve(page); err != nil {
		rt.writeError(w, http.StatusNotFound, "page not found")
		rt.recorder.ObservePage(http.StatusNotFound, false, time.Since(start))
		return
	}

	responses := rt.service.Responses()
	result, record := responses.HandleConditional(r.Context(), urlKey, variant,
		r.Header.Get("If-None-Match"), r.Header.Get("If-Modified-Since"))
	if result == cache.ConditionalNotModified {
		w.Header().Set("ETag", `"`+record.ETag+`"`)
		w.Header().Set("Last-Modified", record.LastModified.Format(http.TimeFormat))
		w.WriteHeader(http.StatusNotModified)
		rt.recorder.ObservePage(http.StatusNotModified, true, time.Since(start))
		return
	}

	record, fromCache, err := responses.CacheResponse(r.Context(), urlKey, variant, rt.renderFunc(page), 0, true)
	if err != nil {
		rt.logger.Error("page render failed", slog.String("page", page), slog.Any("error", err))
		rt.writeError(w, http.StatusInternalServerError, "page render failed")
		rt.recorder.ObservePage(http.StatusInternalServerError, false, time.Since(start))
		return
	}

	for name, value := range record.Headers {
		w.Header().Set(name, value)
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(record.Body))
	rt.recorder.ObservePage(http.StatusOK, fromCache, time.Since(start))
}

// renderFunc builds the response renderer for one page. The body comes out of
// the template cache, which itself renders from the pages source on a miss.
func (rt *Router) renderFunc(page string) cache.ResponseRenderFunc {
	return func(ctx context.Context) (string, map[string]string, error) {
		tctx := map[string]any{"page": page}
		dependencies := []string{"page:" + page}
		if configCache := rt.service.Config(); configCache != nil {
			site, err := configCache.Load(ctx)
			if err != nil {
				return "", nil, err
			}
			tctx["site"] = site
			dependencies = append(dependencies, "site-config")
		}

		body, err := rt.service.Templates().Page(ctx, "/pages/"+page, tctx,
			func(ctx context.Context, tctx map[string]any) (string, error) {
				return rt.renderer.RenderPage(page, tctx)
			}, 0, dependencies...)
		if err != nil {
			return "", nil, err
		}
		return body, map[string]string{"Content-Type": contentTypeFor(page)}, nil
	}
}

func (rt *Router) serveHealthz(w http.ResponseWriter, r *http.Request) {
	health := rt.service.Manager().GetHealth()
	status := http.StatusOK
	if health.Status != "healthy" {
		status = http.StatusServiceUnavailable
	}
	rt.writeJSON(w, status, health)
}

func (rt *Router) serveStats(w http.ResponseWriter, r *http.Request) int {
	rt.writeJSON(w, http.StatusOK, rt.service.Stats(r.Context()))
	return http.StatusOK
}

func (rt *Router) serveHealth(w http.ResponseWriter, r *http.Request) int {
	rt.writeJSON(w, http.StatusOK, rt.service.Manager().GetHealth())
	return http.StatusOK
}

func (rt *Router) serveClear(w http.ResponseWriter, r *http.Request) int {
	scope := r.URL.Query().Get("scope")
	if scope == "" {
		scope = "all"
	}
	cleared, err := rt.service.Clear(r.Context(), scope)
	if err != nil {
		rt.writeError(w, http.StatusBadRequest, err.Error())
		return http.StatusBadRequest
	}
	rt.writeJSON(w, http.StatusOK, map[string]any{"scope": scope, "cleared": cleared})
	return http.StatusOK
}

func (rt *Router) serveWarm(w http.ResponseWriter, r *http.Request) int {
	result := rt.service.Templates().Warm(r.Context())
	rt.writeJSON(w, http.StatusOK, result)
	return http.StatusOK
}

type invalidateRequest struct {
	Tag      string `json:"tag,omitempty"`
	Fragment string `json:"fragment,omitempty"`
	URL      string `json:"url,omitempty"`
	Variant  string `json:"variant,omitempty"`
}

func (rt *Router) serveInvalidate(w http.ResponseWriter, r *http.Request) int {
	var req invalidateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		rt.writeError(w, http.StatusBadRequest, "invalid request body")
		return http.StatusBadRequest
	}

	var invalidated int
	switch {
	case req.Tag != "":
		invalidated = rt.service.Templates().InvalidateByDependency(r.Context(), req.Tag)
	case req.Fragment != "":
		invalidated = rt.service.Templates().InvalidateFragment(r.Context(), req.Fragment)
	case req.URL != "":
		invalidated = rt.service.Templates().InvalidatePage(r.Context(), req.URL)
		if rt.service.Responses().Invalidate(r.Context(), req.URL, req.Variant) {
			invalidated++
		}
	default:
		rt.writeError(w, http.StatusBadRequest, "one of tag, fragment, or url is required")
		return http.StatusBadRequest
	}

	rt.writeJSON(w, http.StatusOK, map[string]any{"invalidated": invalidated})
	return http.StatusOK
}

func (rt *Router) serveResetStats(w http.ResponseWriter, r *http.Request) int {
	rt.service.Manager().ResetStats()
	rt.writeJSON(w, http.StatusOK, map[string]any{"status": "reset"})
	return http.StatusOK
}

// admin wraps an admin handler so every route reports its status to the
// metrics recorder.
func (rt *Router) admin(route string, handler func(http.ResponseWriter, *http.Request) int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := handler(w, r)
		rt.recorder.ObserveAdmin(route, status)
	}
}

func (rt *Router) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		rt.logger.Warn("response encode failed", slog.Any("error", err))
	}
}

func (rt *Router) writeError(w http.ResponseWriter, status int, message string) {
	rt.writeJSON(w, status, map[string]string{"error": message})
}

func contentTypeFor(page string) string {
	if ct := mime.TypeByExtension(filepath.Ext(page)); ct != "" {
		return ct
	}
	return "text/html; charset=utf-8"
}
