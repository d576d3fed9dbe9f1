package guest

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"guest-ordering/internal/common/logger"
)

func Router(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLog(h.log))

	r.Route("/session", func(r chi.Router) {
		r.Get("/", h.GetSession)
		r.Post("/", h.SetSession)
		r.Delete("/", h.LeaveSession)
	})
	r.Route("/orders", func(r chi.Router) {
		r.Post("/items", h.AddItems)
		r.Get("/active", h.GetActive)
		r.Get("/closed", h.GetClosed)
		r.Post("/{orderID}/close", h.CloseOrder)
		r.Get("/{orderID}/tracking", h.GetTracking)
	})
	r.Get("/hotel/menu", h.GetMenu)
	return r
}

func requestLog(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.Debug("http_request", map[string]any{
				"request_id":  middleware.GetReqID(r.Context()),
				"method":      r.Method,
				"path":        r.URL.Path,
				"status":      ww.Status(),
				"duration_ms": time.Since(start).Milliseconds(),
			})
		})
	}
}
