package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/markbates/goth/gothic"
	"github.com/petermazzocco/dsgnr/internal/auth"
	"github.com/petermazzocco/dsgnr/internal/common"
)

func (h *Handler) RegisterForm(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, "register", "Create account", nil)
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	username := r.PostFormValue("username")
	password := r.PostFormValue("password")

	if _, err := h.users.Register(r.Context(), username, password); err != nil {
		switch {
		case errors.Is(err, common.ErrInvalidUsername):
			h.redirect(w, r, "/register", "danger", "Usernames cannot contain @ or : and can be at most "+strconv.Itoa(auth.MaxUsernameLength)+" characters.")
		case errors.Is(err, common.ErrInvalidInput):
			h.redirect(w, r, "/register", "danger", "Username and password are required.")
		case errors.Is(err, common.ErrDuplicateIdentity):
			h.redirect(w, r, "/register", "warning", "That username is already taken.")
		case errors.Is(err, common.ErrPasswordTooLong):
			h.redirect(w, r, "/register", "danger", "Passwords can be at most 72 bytes long.")
		default:
			h.log.Error(r.Context(), "register", "error", err)
			h.redirect(w, r, "/register", "danger", "Something went wrong. Please try again.")
		}
		return
	}
	h.redirect(w, r, "/login", "success", "Account created successfully! Please log in.")
}

func (h *Handler) LoginForm(w http.ResponseWriter, r *http.Request) {
	h.renderPage(w, r, "login", page{Title: "Log in", HideNav: true})
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	id, err := h.users.Login(r.Context(), r.PostFormValue("username"), r.PostFormValue("password"))
	if err != nil {
		if !errors.Is(err, common.ErrInvalidCredentials) {
			h.log.Error(r.Context(), "login", "error", err)
		}
		h.redirect(w, r, "/login", "danger", "Invalid username or password.")
		return
	}
	h.signIn(w, r, id)
}

func (h *Handler) signIn(w http.ResponseWriter, r *http.Request, id auth.Identity) {
	if err := h.sessions.Establish(w, r, id); err != nil {
		h.log.Error(r.Context(), "establish session", "user", id.Username, "error", err)
		h.redirect(w, r, "/login", "danger", "Something went wrong. Please try again.")
		return
	}
	h.log.Info(r.Context(), "user logged in", "user", id.Username, "role", id.Role)
	h.redirect(w, r, "/feed", "success", "Welcome back, "+id.Username+"!")
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Clear(w, r); err != nil {
		h.log.Error(r.Context(), "clear session", "error", err)
	}
	if h.opts.OAuth {
		_ = gothic.Logout(w, r)
	}
	h.redirect(w, r, "/login", "info", "You have been logged out.")
}

// BeginOAuth starts the provider's sign-in flow.
func (h *Handler) BeginOAuth(w http.ResponseWriter, r *http.Request) {
	r = gothic.GetContextWithProvider(r, chi.URLParam(r, "provider"))
	gothic.BeginAuthHandler(w, r)
}

// OAuthCallback signs in the account matching the provider's user,
// creating a member account on first use.
func (h *Handler) OAuthCallback(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")
	r = gothic.GetContextWithProvider(r, provider)

	gu, err := gothic.CompleteUserAuth(w, r)
	if err != nil {
		h.log.Warn(r.Context(), "oauth callback", "provider", provider, "error", err)
		h.redirect(w, r, "/login", "danger", "Sign-in with "+provider+" failed.")
		return
	}

	id, err := h.users.FindOrCreateExternal(r.Context(), gu.Provider, gu.UserID, auth.ExternalUsername(gu))
	if err != nil {
		h.log.Error(r.Context(), "find or create oauth user", "provider", provider, "error", err)
		h.redirect(w, r, "/login", "danger", "Sign-in with "+provider+" failed.")
		return
	}
	h.signIn(w, r, id)
}
