package handlers

import (
	"log"
	"net/http"

	"pettycash/internal/auth"
	"pettycash/internal/middleware"
	"pettycash/internal/models"
	"pettycash/internal/services"
)

type DashboardHandler struct {
	templates      TemplateExecutor
	sessions       *auth.SessionManager
	requestService *services.RequestService
	receiptService *services.ReceiptService
}

func NewDashboardHandler(templates TemplateExecutor, sessions *auth.SessionManager, requestService *services.RequestService, receiptService *services.ReceiptService) *DashboardHandler {
	return &DashboardHandler{
		templates:      templates,
		sessions:       sessions,
		requestService: requestService,
		receiptService: receiptService,
	}
}

func (h *DashboardHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r)

	requests, err := h.requestService.ListByUser(user.ID)
	if err != nil {
		log.Printf("Failed to list requests: %v", err)
		requests = []models.Request{}
	}

	receipts, err := h.receiptService.ListRecentByUser(user.ID, 5)
	if err != nil {
		log.Printf("Failed to list receipts: %v", err)
		receipts = []models.Receipt{}
	}

	render(h.templates, w, "dashboard.html", map[string]interface{}{
		"Title":      "Dashboard",
		"ActivePage": "dashboard",
		"User":       user,
		"Requests":   requests,
		"Receipts":   receipts,
		"Flashes":    h.sessions.Flashes(w, r),
	})
}
