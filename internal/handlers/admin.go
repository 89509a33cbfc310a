package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"

	"pettycash/internal/auth"
	"pettycash/internal/middleware"
	"pettycash/internal/models"
	"pettycash/internal/services"
)

type AdminHandler struct {
	templates       TemplateExecutor
	sessions        *auth.SessionManager
	userService     *auth.UserService
	audit           *services.AuditService
	defaultAdmin    string
	defaultPassword string
}

func NewAdminHandler(templates TemplateExecutor, sessions *auth.SessionManager, userService *auth.UserService, audit *services.AuditService, defaultAdmin, defaultPassword string) *AdminHandler {
	return &AdminHandler{
		templates:       templates,
		sessions:        sessions,
		userService:     userService,
		audit:           audit,
		defaultAdmin:    defaultAdmin,
		defaultPassword: defaultPassword,
	}
}

func (h *AdminHandler) Users(w http.ResponseWriter, r *http.Request) {
	users, err := h.userService.List()
	if err != nil {
		log.Printf("Failed to list users: %v", err)
		users = []models.User{}
	}

	render(h.templates, w, "users.html", map[string]interface{}{
		"Title":      "Users",
		"ActivePage": "users",
		"User":       middleware.GetUser(r),
		"Users":      users,
		"Flashes":    h.sessions.Flashes(w, r),
	})
}

func (h *AdminHandler) NewUserPage(w http.ResponseWriter, r *http.Request) {
	render(h.templates, w, "user_new.html", map[string]interface{}{
		"Title":      "Create User",
		"ActivePage": "users",
		"User":       middleware.GetUser(r),
		"Flashes":    h.sessions.Flashes(w, r),
	})
}

func (h *AdminHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	admin := middleware.GetUser(r)

	if err := r.ParseForm(); err != nil {
		h.renderNewUserError(w, r, "Invalid form data")
		return
	}

	username := strings.TrimSpace(r.FormValue("username"))
	name := strings.TrimSpace(r.FormValue("name"))
	role := r.FormValue("role")

	if username == "" || name == "" {
		h.renderNewUserError(w, r, "Username and name are required.")
		return
	}
	if !models.ValidRole(role) {
		h.renderNewUserError(w, r, "Invalid role.")
		return
	}

	created, tempPassword, err := h.userService.CreateWithTempPassword(username, name, role)
	if err != nil {
		if errors.Is(err, auth.ErrUserExists) {
			h.renderNewUserError(w, r, "Username already exists.")
			return
		}
		log.Printf("Failed to create user: %v", err)
		h.renderNewUserError(w, r, "Failed to create user.")
		return
	}

	h.audit.Log(admin.ID, fmt.Sprintf("Created user: %s (%s)", created.Username, created.Role))
	// The temporary password is shown exactly once; it is never stored in
	// plaintext or retrievable again.
	h.sessions.Flash(w, r, "success", "User created! Temporary password: "+tempPassword)
	http.Redirect(w, r, "/admin/users", http.StatusSeeOther)
}

func (h *AdminHandler) Logs(w http.ResponseWriter, r *http.Request) {
	entries, err := h.audit.Recent(100)
	if err != nil {
		log.Printf("Failed to list audit logs: %v", err)
		entries = []models.LogEntry{}
	}

	render(h.templates, w, "logs.html", map[string]interface{}{
		"Title":      "Audit Log",
		"ActivePage": "logs",
		"User":       middleware.GetUser(r),
		"Logs":       entries,
		"Flashes":    h.sessions.Flashes(w, r),
	})
}

// Bootstrap creates the default admin account when the user table is still
// empty. The endpoint is public by design so a fresh deployment can be
// initialized; once any user exists it always fails.
func (h *AdminHandler) Bootstrap(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	user, err := h.userService.BootstrapDefaultAdmin(h.defaultAdmin, h.defaultPassword)
	if err != nil {
		if errors.Is(err, auth.ErrUsersExist) {
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(map[string]string{"error": "users already exist"})
			return
		}
		log.Printf("Failed to bootstrap default admin: %v", err)
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]string{"error": "bootstrap failed"})
		return
	}

	json.NewEncoder(w).Encode(map[string]string{
		"message":  "Default admin created",
		"username": user.Username,
		"password": h.defaultPassword,
	})
}

func (h *AdminHandler) renderNewUserError(w http.ResponseWriter, r *http.Request, message string) {
	render(h.templates, w, "user_new.html", map[string]interface{}{
		"Title":      "Create User",
		"ActivePage": "users",
		"User":       middleware.GetUser(r),
		"Error":      message,
		"Flashes":    h.sessions.Flashes(w, r),
	})
}
