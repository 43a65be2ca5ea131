package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	custommiddleware "github.com/parktrack/parktrack-system/internal/middleware"
	"github.com/parktrack/parktrack-system/internal/model"
)

// SetupRouter настраивает HTTP-маршруты и middleware сервиса парктрек.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	r.Route("/api", func(r chi.Router) {
		r.Post("/user/register", h.Register)
		r.Post("/user/login", h.Login)

		r.Group(func(r chi.Router) {
			r.Use(h.authMiddleware.Middleware)

			r.Post("/qr", h.CreateQR)

			r.Post("/parking/entry", h.RegisterEntry)
			r.Post("/parking/exit", h.RegisterExit)
			r.Get("/parking/transactions", h.GetTransactions)
			r.Get("/parking/transactions/{id}", h.GetTransaction)
			r.Get("/parking/estimate", h.EstimateCharge)

			r.Post("/invoices/generate", h.GenerateInvoice)
			r.Get("/invoices", h.GetInvoices)

			r.Group(func(r chi.Router) {
				r.Use(h.authMiddleware.RequireRole(model.UserRoleOperator))

				r.Post("/admin/invoices/generate", h.GenerateInvoices)
				r.Post("/admin/overdue/process", h.ProcessOverdue)
				r.Post("/admin/rates", h.CreateRate)
			})
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}
