package handlers

import (
	"net/http"

	"pettycash/internal/middleware"
	"pettycash/internal/models"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

// Routes assembles the full route table. Authorization is layered by route
// group: public, authenticated, approver/admin, admin.
func Routes(
	authMiddleware *middleware.AuthMiddleware,
	authHandler *AuthHandler,
	dashboardHandler *DashboardHandler,
	requestHandler *RequestHandler,
	receiptHandler *ReceiptHandler,
	adminHandler *AdminHandler,
) chi.Router {
	r := chi.NewRouter()

	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RealIP)

	// Public routes
	r.Get("/login", authHandler.LoginPage)
	r.Post("/login", authHandler.Login)
	r.Post("/bootstrap", adminHandler.Bootstrap)

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(authMiddleware.RequireAuth)

		r.Post("/logout", authHandler.Logout)
		r.Get("/change-password", authHandler.ChangePasswordPage)
		r.Post("/change-password", authHandler.ChangePassword)

		r.Get("/", dashboardHandler.Dashboard)

		r.Get("/requests/new", requestHandler.NewRequestPage)
		r.Post("/requests/new", requestHandler.CreateRequest)

		r.Get("/receipts/upload", receiptHandler.UploadPage)
		r.Post("/receipts/upload", receiptHandler.Upload)

		// Approver routes
		r.Group(func(r chi.Router) {
			r.Use(authMiddleware.RequireRole(models.RoleApprover, models.RoleAdmin))
			r.Get("/approvals", requestHandler.Approvals)
			r.Post("/approvals/{id}/approve", requestHandler.Approve)
			r.Post("/approvals/{id}/reject", requestHandler.Reject)
		})

		// Admin-only routes
		r.Group(func(r chi.Router) {
			r.Use(authMiddleware.RequireRole(models.RoleAdmin))
			r.Get("/admin/users", adminHandler.Users)
			r.Get("/admin/users/new", adminHandler.NewUserPage)
			r.Post("/admin/users/new", adminHandler.CreateUser)
			r.Get("/admin/logs", adminHandler.Logs)
		})
	})

	return r
}

// Static mounts a file server for the web assets.
func Static(r chi.Router, dir string) {
	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.Dir(dir))))
}
