package auth

import (
	"encoding/gob"
	"net/http"

	"github.com/gorilla/sessions"

	"pettycash/internal/models"
)

const (
	SessionName        = "pettycash-session"
	SessionUserID      = "user_id"
	SessionUsername    = "username"
	SessionRole        = "role"
	SessionDisplayName = "name"
)

// FlashMessage is a one-shot notice shown on the next rendered page.
type FlashMessage struct {
	Type    string
	Message string
}

func init() {
	gob.Register(FlashMessage{})
}

type SessionManager struct {
	store *sessions.CookieStore
}

func NewSessionManager(secret string, maxAge int) *SessionManager {
	store := sessions.NewCookieStore([]byte(secret))
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   false, // Set to true in production with HTTPS
		SameSite: http.SameSiteLaxMode,
	}
	return &SessionManager{store: store}
}

func (m *SessionManager) Get(r *http.Request) (*sessions.Session, error) {
	return m.store.Get(r, SessionName)
}

// SetUser records the signed-in identity: id, username, role and display
// name, matching what downstream handlers need without a second lookup.
func (m *SessionManager) SetUser(w http.ResponseWriter, r *http.Request, user *models.User) error {
	session, err := m.Get(r)
	if err != nil {
		return err
	}

	session.Values[SessionUserID] = user.ID
	session.Values[SessionUsername] = user.Username
	session.Values[SessionRole] = user.Role
	session.Values[SessionDisplayName] = user.Name

	return session.Save(r, w)
}

func (m *SessionManager) GetUserID(r *http.Request) (int64, bool) {
	session, err := m.Get(r)
	if err != nil {
		return 0, false
	}

	userID, ok := session.Values[SessionUserID].(int64)
	return userID, ok
}

func (m *SessionManager) Clear(w http.ResponseWriter, r *http.Request) error {
	session, err := m.Get(r)
	if err != nil {
		return err
	}

	session.Values = make(map[interface{}]interface{})
	session.Options.MaxAge = -1

	return session.Save(r, w)
}

// Flash queues a one-shot message for the next rendered page.
func (m *SessionManager) Flash(w http.ResponseWriter, r *http.Request, kind, message string) {
	session, err := m.Get(r)
	if err != nil {
		return
	}
	session.AddFlash(FlashMessage{Type: kind, Message: message})
	session.Save(r, w)
}

// Flashes drains queued messages.
func (m *SessionManager) Flashes(w http.ResponseWriter, r *http.Request) []FlashMessage {
	session, err := m.Get(r)
	if err != nil {
		return nil
	}

	raw := session.Flashes()
	if len(raw) > 0 {
		session.Save(r, w)
	}

	var flashes []FlashMessage
	for _, f := range raw {
		if msg, ok := f.(FlashMessage); ok {
			flashes = append(flashes, msg)
		}
	}
	return flashes
}
