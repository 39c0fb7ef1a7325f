package auth

import (
	"encoding/gob"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/sessions"
	"github.com/petermazzocco/dsgnr/models"
)

const SessionName = "dsgnr_session"

const (
	keyUserID   = "user_id"
	keyUsername = "username"
	keyRole     = "role"
)

// Flash is a one-shot notice shown on the next rendered page.
type Flash struct {
	Kind    string // success, info, warning, danger
	Message string
}

func init() {
	gob.Register(Flash{})
	gob.Register(models.Role(""))
	gob.Register([]interface{}{})
}

type StoreOptions struct {
	Backend string // "filesystem" or "cookie"
	Dir     string
	Secret  string
	MaxAge  time.Duration
	Secure  bool
}

// NewStore builds the gorilla session store. The filesystem store keeps
// session values on the server and only puts a signed id in the cookie.
// MaxAge bounds both the cookie and the signed timestamp, so an old cookie
// replayed after it expires decodes as anonymous.
func NewStore(o StoreOptions) (sessions.Store, error) {
	maxAge := int(o.MaxAge / time.Second)
	opts := &sessions.Options{
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   o.Secure,
		SameSite: http.SameSiteLaxMode,
	}

	switch o.Backend {
	case "cookie":
		store := sessions.NewCookieStore([]byte(o.Secret))
		store.Options = opts
		store.MaxAge(maxAge)
		return store, nil
	case "filesystem", "":
		if err := os.MkdirAll(o.Dir, 0o700); err != nil {
			return nil, fmt.Errorf("create session dir: %w", err)
		}
		store := sessions.NewFilesystemStore(o.Dir, []byte(o.Secret))
		store.MaxLength(0)
		store.Options = opts
		store.MaxAge(maxAge)
		return store, nil
	default:
		return nil, fmt.Errorf("unknown session store %q", o.Backend)
	}
}

// SessionManager maps the gorilla session to an Identity and carries flash
// notices.
type SessionManager struct {
	store  sessions.Store
	maxAge int
}

func NewSessionManager(store sessions.Store, maxAge time.Duration) *SessionManager {
	return &SessionManager{store: store, maxAge: int(maxAge / time.Second)}
}

func (m *SessionManager) Store() sessions.Store {
	return m.store
}

// session never fails: gorilla returns a fresh session for an undecodable
// cookie, and the decode error is deliberately ignored.
func (m *SessionManager) session(r *http.Request) *sessions.Session {
	s, _ := m.store.Get(r, SessionName)
	if s == nil {
		s = sessions.NewSession(m.store, SessionName)
		s.Options = &sessions.Options{Path: "/", MaxAge: m.maxAge, HttpOnly: true, SameSite: http.SameSiteLaxMode}
		s.IsNew = true
	}
	return s
}

// Current returns the identity stored in the request's session.
func (m *SessionManager) Current(r *http.Request) Identity {
	s := m.session(r)
	uid, ok := s.Values[keyUserID].(uint)
	if !ok || uid == 0 {
		return Identity{}
	}
	username, _ := s.Values[keyUsername].(string)
	role, _ := s.Values[keyRole].(models.Role)
	return Identity{UserID: uid, Username: username, Role: role}
}

// Establish discards any previous session and starts a new one bound to id.
func (m *SessionManager) Establish(w http.ResponseWriter, r *http.Request, id Identity) error {
	s := m.session(r)
	if err := m.expire(w, r, s); err != nil {
		return err
	}
	s.Values[keyUserID] = id.UserID
	s.Values[keyUsername] = id.Username
	s.Values[keyRole] = id.Role
	if err := s.Save(r, w); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// Clear ends the session. Flashes added afterwards go into a new, anonymous
// session.
func (m *SessionManager) Clear(w http.ResponseWriter, r *http.Request) error {
	return m.expire(w, r, m.session(r))
}

func (m *SessionManager) expire(w http.ResponseWriter, r *http.Request, s *sessions.Session) error {
	if !s.IsNew {
		s.Options.MaxAge = -1
		if err := s.Save(r, w); err != nil {
			return fmt.Errorf("expire session: %w", err)
		}
	}
	s.ID = ""
	s.Values = make(map[interface{}]interface{})
	s.Options.MaxAge = m.maxAge
	s.IsNew = true
	return nil
}

func (m *SessionManager) AddFlash(w http.ResponseWriter, r *http.Request, kind, msg string) error {
	s := m.session(r)
	s.AddFlash(Flash{Kind: kind, Message: msg})
	if err := s.Save(r, w); err != nil {
		return fmt.Errorf("save flash: %w", err)
	}
	return nil
}

// Flashes pops the pending notices. The notices are returned even when
// saving the emptied session fails.
func (m *SessionManager) Flashes(w http.ResponseWriter, r *http.Request) ([]Flash, error) {
	s := m.session(r)
	raw := s.Flashes()
	if len(raw) == 0 {
		return nil, nil
	}
	out := make([]Flash, 0, len(raw))
	for _, v := range raw {
		if f, ok := v.(Flash); ok {
			out = append(out, f)
		}
	}
	if err := s.Save(r, w); err != nil {
		return out, fmt.Errorf("save flashes: %w", err)
	}
	return out, nil
}
