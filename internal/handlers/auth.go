package handlers

import (
	"errors"
	"fmt"
	"log"
	"net/http"

	"pettycash/internal/auth"
	"pettycash/internal/middleware"
	"pettycash/internal/services"
)

type AuthHandler struct {
	templates   TemplateExecutor
	sessions    *auth.SessionManager
	userService *auth.UserService
	audit       *services.AuditService
}

func NewAuthHandler(templates TemplateExecutor, sessions *auth.SessionManager, userService *auth.UserService, audit *services.AuditService) *AuthHandler {
	return &AuthHandler{
		templates:   templates,
		sessions:    sessions,
		userService: userService,
		audit:       audit,
	}
}

func (h *AuthHandler) LoginPage(w http.ResponseWriter, r *http.Request) {
	// If already logged in, redirect to dashboard
	if _, ok := h.sessions.GetUserID(r); ok {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	render(h.templates, w, "login.html", map[string]interface{}{
		"Title":   "Login",
		"Flashes": h.sessions.Flashes(w, r),
	})
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.renderLoginError(w, r, "Invalid form data")
		return
	}

	username := r.FormValue("username")
	password := r.FormValue("password")

	if username == "" || password == "" {
		h.renderLoginError(w, r, "Username and password are required")
		return
	}

	user, err := h.userService.Authenticate(username, password)
	if err != nil {
		h.renderLoginError(w, r, "Invalid username or password")
		return
	}

	if err := h.sessions.SetUser(w, r, user); err != nil {
		log.Printf("Session error: %v", err)
		h.renderLoginError(w, r, "Failed to create session")
		return
	}

	h.audit.Log(user.ID, fmt.Sprintf("User %s logged in", user.Username))

	if user.IsFirstLogin {
		http.Redirect(w, r, "/change-password", http.StatusSeeOther)
		return
	}

	h.sessions.Flash(w, r, "success", "Welcome back, "+user.Name+"!")
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r)
	if user != nil {
		h.audit.Log(user.ID, fmt.Sprintf("User %s logged out", user.Username))
	}

	h.sessions.Clear(w, r)
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

func (h *AuthHandler) ChangePasswordPage(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r)

	render(h.templates, w, "change_password.html", map[string]interface{}{
		"Title":      "Change Password",
		"ActivePage": "",
		"User":       user,
		"FirstLogin": user.IsFirstLogin,
		"Flashes":    h.sessions.Flashes(w, r),
	})
}

func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r)

	if err := r.ParseForm(); err != nil {
		h.renderChangePasswordError(w, r, "Invalid form data")
		return
	}

	current := r.FormValue("current_password")
	newPassword := r.FormValue("new_password")
	confirm := r.FormValue("confirm_password")

	if err := h.userService.ChangePassword(user.ID, current, newPassword, confirm); err != nil {
		switch {
		case errors.Is(err, auth.ErrPasswordMismatch):
			h.renderChangePasswordError(w, r, "New passwords do not match.")
		case errors.Is(err, auth.ErrPasswordTooShort):
			h.renderChangePasswordError(w, r, fmt.Sprintf("Password must be at least %d characters long.", auth.MinPasswordLength))
		case errors.Is(err, auth.ErrWrongPassword):
			h.renderChangePasswordError(w, r, "Current password is incorrect.")
		default:
			log.Printf("Failed to change password: %v", err)
			h.renderChangePasswordError(w, r, "Failed to change password.")
		}
		return
	}

	h.audit.Log(user.ID, "Password changed")
	h.sessions.Flash(w, r, "success", "Password updated successfully!")
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (h *AuthHandler) renderLoginError(w http.ResponseWriter, r *http.Request, message string) {
	render(h.templates, w, "login.html", map[string]interface{}{
		"Title":   "Login",
		"Error":   message,
		"Flashes": h.sessions.Flashes(w, r),
	})
}

func (h *AuthHandler) renderChangePasswordError(w http.ResponseWriter, r *http.Request, message string) {
	user := middleware.GetUser(r)
	render(h.templates, w, "change_password.html", map[string]interface{}{
		"Title":      "Change Password",
		"ActivePage": "",
		"User":       user,
		"FirstLogin": user.IsFirstLogin,
		"Error":      message,
		"Flashes":    h.sessions.Flashes(w, r),
	})
}
