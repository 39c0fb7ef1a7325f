// Package handlers serves the site's HTML pages, form posts and uploaded
// images.
package handlers

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"time"

	"github.com/petermazzocco/dsgnr/internal/auth"
	"github.com/petermazzocco/dsgnr/internal/logging"
	"github.com/petermazzocco/dsgnr/internal/posts"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

const displayTimeLayout = "Jan 02, 2006 · 03:04 PM"

var pages = []string{"landing", "about", "register", "login", "feed", "leaderboard", "upload"}

type Options struct {
	Location           *time.Location
	PublicFeed         bool
	MaxUploadBytes     int64
	RateLimitPerMinute int
	OAuth              bool
}

type Handler struct {
	users    *auth.Service
	posts    *posts.Service
	sessions *auth.SessionManager
	log      logging.Logger
	opts     Options
	views    map[string]*template.Template
	static   fs.FS
}

func New(users *auth.Service, postSvc *posts.Service, sessions *auth.SessionManager, log logging.Logger, opts Options) (*Handler, error) {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 10 << 20
	}
	if opts.RateLimitPerMinute <= 0 {
		opts.RateLimitPerMinute = 20
	}

	h := &Handler{users: users, posts: postSvc, sessions: sessions, log: log, opts: opts, views: map[string]*template.Template{}}

	funcs := template.FuncMap{
		"when": func(t time.Time) string { return t.In(opts.Location).Format(displayTimeLayout) },
		"iso":  func(t time.Time) string { return t.UTC().Format(time.RFC3339) },
	}
	for _, name := range pages {
		t, err := template.New(name).Funcs(funcs).ParseFS(templateFS, "templates/layout.html", "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("parse %s template: %w", name, err)
		}
		h.views[name] = t
	}

	static, err := fs.Sub(staticFS, "static")
	if err != nil {
		return nil, err
	}
	h.static = static
	return h, nil
}

// page is the data every template receives.
type page struct {
	Title      string
	User       auth.Identity
	Flashes    []auth.Flash
	HideNav    bool
	PublicFeed bool
	OAuth      bool
	Year       int
	Data       any
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, name, title string, data any) {
	h.renderPage(w, r, name, page{Title: title, Data: data})
}

func (h *Handler) renderPage(w http.ResponseWriter, r *http.Request, name string, p page) {
	t, ok := h.views[name]
	if !ok {
		h.log.Error(r.Context(), "unknown template", "name", name)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	p.User = auth.IdentityFrom(r.Context())
	flashes, err := h.sessions.Flashes(w, r)
	if err != nil {
		h.log.Error(r.Context(), "pop flashes", "error", err)
	}
	p.Flashes = flashes
	p.PublicFeed = h.opts.PublicFeed
	p.OAuth = h.opts.OAuth
	p.Year = time.Now().In(h.opts.Location).Year()

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", p); err != nil {
		h.log.Error(r.Context(), "render template", "name", name, "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	buf.WriteTo(w)
}

// redirect leaves a flash notice for the next page and sends the browser
// to path.
func (h *Handler) redirect(w http.ResponseWriter, r *http.Request, path, kind, msg string) {
	if msg != "" {
		if err := h.sessions.AddFlash(w, r, kind, msg); err != nil {
			h.log.Error(r.Context(), "add flash", "error", err)
		}
	}
	http.Redirect(w, r, path, http.StatusSeeOther)
}

func (h *Handler) Landing(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, "landing", "Welcome", nil)
}

func (h *Handler) About(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, "about", "About", nil)
}
