package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
)

// Routes builds the site's router.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(h.sessions.Load)

	limit := httprate.Limit(
		h.opts.RateLimitPerMinute,
		1*time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByIP, httprate.KeyByEndpoint),
	)

	r.Get("/", h.Landing)
	r.Get("/about", h.About)
	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServerFS(h.static)))

	r.Get("/register", h.RegisterForm)
	r.With(limit).Post("/register", h.Register)
	r.Get("/login", h.LoginForm)
	r.With(limit).Post("/login", h.Login)
	r.Post("/logout", h.Logout)

	if h.opts.OAuth {
		r.Get("/auth/{provider}", h.BeginOAuth)
		r.Get("/auth/{provider}/callback", h.OAuthCallback)
	}

	// Pages whose visibility follows the feed setting.
	r.Group(func(r chi.Router) {
		if !h.opts.PublicFeed {
			r.Use(h.sessions.RequireUser)
		}
		r.Get("/feed", h.Feed)
		r.Get("/leaderboard", h.Leaderboard)
		r.Get("/uploads/{name}", h.ServeUpload)
	})

	r.Group(func(r chi.Router) {
		r.Use(h.sessions.RequireUser)
		r.Get("/upload", h.UploadForm)
		r.With(limit).Post("/upload", h.Upload)
		r.Post("/delete/{postID}", h.Delete)
		r.Post("/like/{postID}", h.Like)
	})

	return r
}
