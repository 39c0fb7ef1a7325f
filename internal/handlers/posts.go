package handlers

import (
	"errors"
	"io"
	"iter"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/petermazzocco/dsgnr/internal/auth"
	"github.com/petermazzocco/dsgnr/internal/common"
	"github.com/petermazzocco/dsgnr/internal/posts"
	"github.com/petermazzocco/dsgnr/internal/storage"
)

type postView struct {
	ID        uint
	Filename  string
	Caption   string
	Username  string
	CreatedAt time.Time
	LikeCount int64
	Liked     bool
}

func (h *Handler) Feed(w http.ResponseWriter, r *http.Request) {
	h.listPosts(w, r, "feed", "Feed", h.posts.Feed(r.Context()))
}

func (h *Handler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	h.listPosts(w, r, "leaderboard", "Leaderboard", h.posts.Leaderboard(r.Context()))
}

func (h *Handler) listPosts(w http.ResponseWriter, r *http.Request, name, title string, seq iter.Seq2[posts.FeedEntry, error]) {
	who := auth.IdentityFrom(r.Context())

	// Liked ids are loaded first: the sequence holds the connection while
	// it is ranged over.
	liked := map[uint]bool{}
	if who.Authenticated() {
		ids, err := h.posts.LikedPostIDs(r.Context(), who.UserID)
		if err != nil {
			h.log.Error(r.Context(), "load liked posts", "error", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		liked = ids
	}

	var views []postView
	for e, err := range seq {
		if err != nil {
			h.log.Error(r.Context(), "load "+name, "error", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		views = append(views, postView{
			ID:        e.ID,
			Filename:  e.Filename,
			Caption:   e.Caption,
			Username:  e.Username,
			CreatedAt: e.CreatedAt,
			LikeCount: e.LikeCount,
			Liked:     liked[e.ID],
		})
	}
	h.render(w, r, name, title, views)
}

func (h *Handler) UploadForm(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, "upload", "Share your art", map[string]any{
		"MaxSize":    sizeLabel(h.opts.MaxUploadBytes),
		"MaxCaption": posts.MaxCaptionLength,
	})
}

func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.opts.MaxUploadBytes)

	file, header, err := r.FormFile("image")
	if err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			h.redirect(w, r, "/upload", "danger", "That file is too large. The limit is "+sizeLabel(h.opts.MaxUploadBytes)+".")
		case errors.Is(err, http.ErrMissingFile):
			h.redirect(w, r, "/upload", "warning", "Please choose an image to upload.")
		default:
			h.log.Warn(r.Context(), "parse upload form", "error", err)
			h.redirect(w, r, "/upload", "danger", "The upload could not be read. Please try again.")
		}
		return
	}
	defer file.Close()

	_, err = h.posts.Upload(r.Context(), auth.IdentityFrom(r.Context()), posts.UploadInput{
		Filename: header.Filename,
		Body:     file,
		Caption:  r.FormValue("caption"),
	})
	if err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.Is(err, common.ErrUnauthorized):
			h.redirect(w, r, "/login", "warning", "Please log in to continue.")
		case errors.Is(err, common.ErrNoFile):
			h.redirect(w, r, "/upload", "warning", "Please choose an image to upload.")
		case errors.Is(err, common.ErrUnsupportedFormat):
			h.redirect(w, r, "/upload", "danger", "Unsupported file type. Please upload an image.")
		case errors.Is(err, common.ErrCaptionTooLong):
			h.redirect(w, r, "/upload", "warning", "Captions can be at most "+strconv.Itoa(posts.MaxCaptionLength)+" characters.")
		case errors.As(err, &tooLarge):
			h.redirect(w, r, "/upload", "danger", "That file is too large. The limit is "+sizeLabel(h.opts.MaxUploadBytes)+".")
		default:
			h.log.Error(r.Context(), "upload", "error", err)
			h.redirect(w, r, "/upload", "danger", "We couldn't save your upload. Please try again.")
		}
		return
	}
	h.redirect(w, r, "/feed", "success", "Your art has been shared!")
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := postID(r)
	if !ok {
		h.redirect(w, r, "/feed", "warning", "Post not found.")
		return
	}

	err := h.posts.Delete(r.Context(), auth.IdentityFrom(r.Context()), id)
	switch {
	case err == nil:
		h.redirect(w, r, "/feed", "info", "Post deleted.")
	case errors.Is(err, common.ErrNotFound):
		h.redirect(w, r, "/feed", "warning", "Post not found.")
	case errors.Is(err, common.ErrForbidden):
		h.redirect(w, r, "/feed", "danger", "You do not have permission to perform this action.")
	default:
		h.log.Error(r.Context(), "delete post", "post_id", id, "error", err)
		h.redirect(w, r, "/feed", "danger", "The post could not be deleted. Please try again.")
	}
}

func (h *Handler) Like(w http.ResponseWriter, r *http.Request) {
	id, ok := postID(r)
	if !ok {
		h.redirect(w, r, "/feed", "warning", "Post not found.")
		return
	}

	_, err := h.posts.ToggleLike(r.Context(), auth.IdentityFrom(r.Context()), id)
	switch {
	case err == nil:
		http.Redirect(w, r, backTo(r, "/feed"), http.StatusSeeOther)
	case errors.Is(err, common.ErrUnauthorized):
		h.redirect(w, r, "/login", "warning", "Please log in to continue.")
	case errors.Is(err, common.ErrNotFound):
		h.redirect(w, r, "/feed", "warning", "Post not found.")
	default:
		h.log.Error(r.Context(), "toggle like", "post_id", id, "error", err)
		h.redirect(w, r, backTo(r, "/feed"), "danger", "Something went wrong. Please try again.")
	}
}

// ServeUpload streams a stored image.
func (h *Handler) ServeUpload(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if !storage.ValidName(name) {
		http.NotFound(w, r)
		return
	}

	body, err := h.posts.Open(r.Context(), name)
	if err != nil {
		if !errors.Is(err, common.ErrNotFound) {
			h.log.Error(r.Context(), "open upload", "name", name, "error", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		http.NotFound(w, r)
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", posts.ContentType(name))
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Cache-Control", "private, max-age=86400")
	if _, err := io.Copy(w, body); err != nil {
		h.log.Warn(r.Context(), "stream upload", "name", name, "error", err)
	}
}

func sizeLabel(n int64) string {
	switch {
	case n >= 1<<20 && n%(1<<20) == 0:
		return strconv.FormatInt(n>>20, 10) + " MB"
	case n >= 1<<10 && n%(1<<10) == 0:
		return strconv.FormatInt(n>>10, 10) + " KB"
	default:
		return strconv.FormatInt(n, 10) + " bytes"
	}
}

func postID(r *http.Request) (uint, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, "postID"), 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

// backTo returns the same-site page the request came from, or fallback.
func backTo(r *http.Request, fallback string) string {
	ref, err := url.Parse(r.Referer())
	if err != nil || ref.Path == "" || (ref.Host != "" && ref.Host != r.Host) {
		return fallback
	}
	if ref.Path[0] != '/' || len(ref.Path) > 1 && ref.Path[1] == '/' {
		return fallback
	}
	return ref.RequestURI()
}
