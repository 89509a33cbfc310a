package handlers

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"

	"pettycash/internal/auth"
	"pettycash/internal/middleware"
	"pettycash/internal/models"
	"pettycash/internal/services"

	"github.com/go-chi/chi/v5"
)

type RequestHandler struct {
	templates      TemplateExecutor
	sessions       *auth.SessionManager
	requestService *services.RequestService
	audit          *services.AuditService
}

func NewRequestHandler(templates TemplateExecutor, sessions *auth.SessionManager, requestService *services.RequestService, audit *services.AuditService) *RequestHandler {
	return &RequestHandler{
		templates:      templates,
		sessions:       sessions,
		requestService: requestService,
		audit:          audit,
	}
}

func (h *RequestHandler) NewRequestPage(w http.ResponseWriter, r *http.Request) {
	render(h.templates, w, "request_new.html", map[string]interface{}{
		"Title":      "New Request",
		"ActivePage": "requests",
		"User":       middleware.GetUser(r),
		"Flashes":    h.sessions.Flashes(w, r),
	})
}

func (h *RequestHandler) CreateRequest(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r)

	if err := r.ParseForm(); err != nil {
		h.renderNewRequestError(w, r, "Invalid form data")
		return
	}

	purpose := strings.TrimSpace(r.FormValue("purpose"))
	if purpose == "" {
		h.renderNewRequestError(w, r, "Purpose is required.")
		return
	}

	amount, err := strconv.ParseFloat(r.FormValue("amount"), 64)
	if err != nil {
		h.renderNewRequestError(w, r, "Amount must be a positive number.")
		return
	}

	req, err := h.requestService.Create(user.ID, purpose, amount)
	if err != nil {
		if errors.Is(err, services.ErrInvalidAmount) {
			h.renderNewRequestError(w, r, "Amount must be a positive number.")
			return
		}
		log.Printf("Failed to create request: %v", err)
		h.renderNewRequestError(w, r, "Failed to create request.")
		return
	}

	h.audit.Log(user.ID, fmt.Sprintf("Created request: %s - $%.2f", req.Purpose, req.Amount))
	h.sessions.Flash(w, r, "success", "Request created successfully!")
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// Approvals shows the pending queue, oldest submission first.
func (h *RequestHandler) Approvals(w http.ResponseWriter, r *http.Request) {
	pending, err := h.requestService.ListPending()
	if err != nil {
		log.Printf("Failed to list pending requests: %v", err)
		pending = []models.Request{}
	}

	render(h.templates, w, "approvals.html", map[string]interface{}{
		"Title":      "Approvals",
		"ActivePage": "approvals",
		"User":       middleware.GetUser(r),
		"Requests":   pending,
		"Flashes":    h.sessions.Flashes(w, r),
	})
}

func (h *RequestHandler) Approve(w http.ResponseWriter, r *http.Request) {
	h.resolve(w, r, true)
}

func (h *RequestHandler) Reject(w http.ResponseWriter, r *http.Request) {
	h.resolve(w, r, false)
}

// resolve performs the pending -> approved/rejected transition. When the
// conditional update matched no row the request was already resolved by
// someone else; that outcome is reported as informational and is not
// audit-logged, so the log never claims a second fresh decision.
func (h *RequestHandler) resolve(w http.ResponseWriter, r *http.Request, approve bool) {
	user := middleware.GetUser(r)

	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		h.sessions.Flash(w, r, "error", "Invalid request ID.")
		http.Redirect(w, r, "/approvals", http.StatusSeeOther)
		return
	}

	var applied bool
	if approve {
		applied, err = h.requestService.Approve(id, user.ID)
	} else {
		applied, err = h.requestService.Reject(id)
	}
	if err != nil {
		log.Printf("Failed to resolve request %d: %v", id, err)
		h.sessions.Flash(w, r, "error", "Failed to update request.")
		http.Redirect(w, r, "/approvals", http.StatusSeeOther)
		return
	}

	if !applied {
		h.sessions.Flash(w, r, "info", "Request was already handled.")
		http.Redirect(w, r, "/approvals", http.StatusSeeOther)
		return
	}

	req, err := h.requestService.Get(id)
	if err != nil {
		log.Printf("Failed to load request %d after update: %v", id, err)
		http.Redirect(w, r, "/approvals", http.StatusSeeOther)
		return
	}

	if approve {
		h.audit.Log(user.ID, fmt.Sprintf("Approved request: %s - $%.2f", req.Purpose, req.Amount))
		h.sessions.Flash(w, r, "success", "Request approved successfully!")
	} else {
		h.audit.Log(user.ID, fmt.Sprintf("Rejected request: %s - $%.2f", req.Purpose, req.Amount))
		h.sessions.Flash(w, r, "info", "Request rejected.")
	}
	http.Redirect(w, r, "/approvals", http.StatusSeeOther)
}

func (h *RequestHandler) renderNewRequestError(w http.ResponseWriter, r *http.Request, message string) {
	render(h.templates, w, "request_new.html", map[string]interface{}{
		"Title":      "New Request",
		"ActivePage": "requests",
		"User":       middleware.GetUser(r),
		"Error":      message,
		"Flashes":    h.sessions.Flashes(w, r),
	})
}
