package voucher

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
)

// MountRoutes registers voucher endpoints onto the router.
func (h *Handler) MountRoutes(r chi.Router) {
	if h == nil {
		return
	}
	// Batch actions fan out to the database and queue; keep callers honest.
	limiter := httprate.Limit(10, time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
		}),
	)

	r.Get("/vouchers", h.listVouchers)
	r.Post("/vouchers", h.createVoucher)
	r.Get("/vouchers/{id}", h.getVoucher)
	r.Post("/vouchers/{id}/roster", h.fillRoster)
	r.Group(func(gr chi.Router) {
		gr.Use(limiter)
		gr.Post("/vouchers/{id}/slips", h.createSlips)
		gr.Post("/vouchers/{id}/submit", h.submitSlips)
		gr.Post("/vouchers/{id}/cancel", h.cancelVoucher)
	})
}
