package handlers

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"

	"pettycash/internal/auth"
	"pettycash/internal/middleware"
	"pettycash/internal/models"
	"pettycash/internal/services"
)

type ReceiptHandler struct {
	templates      TemplateExecutor
	sessions       *auth.SessionManager
	requestService *services.RequestService
	receiptService *services.ReceiptService
	audit          *services.AuditService
	maxUploadBytes int64
}

func NewReceiptHandler(templates TemplateExecutor, sessions *auth.SessionManager, requestService *services.RequestService, receiptService *services.ReceiptService, audit *services.AuditService, maxUploadBytes int64) *ReceiptHandler {
	return &ReceiptHandler{
		templates:      templates,
		sessions:       sessions,
		requestService: requestService,
		receiptService: receiptService,
		audit:          audit,
		maxUploadBytes: maxUploadBytes,
	}
}

func (h *ReceiptHandler) UploadPage(w http.ResponseWriter, r *http.Request) {
	h.renderUploadPage(w, r, "")
}

func (h *ReceiptHandler) Upload(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r)

	// Oversized uploads are rejected here, before the file reaches the
	// receipt service.
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		h.renderUploadPage(w, r, "File is too large or the form data is invalid.")
		return
	}

	file, header, err := r.FormFile("receipt")
	if err != nil {
		h.renderUploadPage(w, r, "Please choose a file to upload.")
		return
	}
	defer file.Close()

	description := r.FormValue("description")

	amount, err := strconv.ParseFloat(r.FormValue("amount"), 64)
	if err != nil {
		h.renderUploadPage(w, r, "Amount must be a positive number.")
		return
	}

	var requestID *int64
	if raw := r.FormValue("request_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			h.renderUploadPage(w, r, "Invalid request selection.")
			return
		}
		requestID = &id
	}

	receipt, err := h.receiptService.Store(user.ID, requestID, file, header.Filename, description, amount)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrMissingFile):
			h.renderUploadPage(w, r, "Please choose a file to upload.")
		case errors.Is(err, services.ErrInvalidAmount):
			h.renderUploadPage(w, r, "Amount must be a positive number.")
		default:
			log.Printf("Failed to store receipt: %v", err)
			h.renderUploadPage(w, r, "Failed to upload receipt.")
		}
		return
	}

	h.audit.Log(user.ID, fmt.Sprintf("Uploaded receipt: %s - $%.2f", receipt.Description, receipt.Amount))
	h.sessions.Flash(w, r, "success", "Receipt uploaded successfully!")
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (h *ReceiptHandler) renderUploadPage(w http.ResponseWriter, r *http.Request, errMsg string) {
	user := middleware.GetUser(r)

	approved, err := h.requestService.ListApprovedByUser(user.ID)
	if err != nil {
		log.Printf("Failed to list approved requests: %v", err)
		approved = []models.Request{}
	}

	// Flashes are drained on the error path too, so a queued flash never
	// leaks onto an unrelated later page.
	data := map[string]interface{}{
		"Title":      "Upload Receipt",
		"ActivePage": "receipts",
		"User":       user,
		"Requests":   approved,
		"Flashes":    h.sessions.Flashes(w, r),
	}
	if errMsg != "" {
		data["Error"] = errMsg
	}
	render(h.templates, w, "receipt_upload.html", data)
}
