// Package posts implements uploading, the feed, likes and admin moderation.
// Every operation takes the caller's auth.Identity explicitly.
package posts

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"path"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/petermazzocco/dsgnr/internal/auth"
	"github.com/petermazzocco/dsgnr/internal/common"
	"github.com/petermazzocco/dsgnr/internal/logging"
	"github.com/petermazzocco/dsgnr/internal/storage"
	"github.com/petermazzocco/dsgnr/models"
	"gorm.io/gorm"
)

const MaxCaptionLength = 2000

// allowed maps accepted file extensions to their canonical image type.
var allowed = map[string]string{
	"jpg":  "jpeg",
	"jpeg": "jpeg",
	"png":  "png",
	"gif":  "gif",
	"webp": "webp",
}

var contentTypes = map[string]string{
	"jpeg": "image/jpeg",
	"png":  "image/png",
	"gif":  "image/gif",
	"webp": "image/webp",
}

// ImageDetector names the image type found in data, e.g. "png".
type ImageDetector interface {
	Detect(data []byte) string
}

type Service struct {
	db       *gorm.DB
	store    storage.Store
	detector ImageDetector
	log      logging.Logger
}

// NewService wires the post operations. detector may be nil, in which case
// only the file extension is checked.
func NewService(db *gorm.DB, store storage.Store, detector ImageDetector, log logging.Logger) *Service {
	return &Service{db: db, store: store, detector: detector, log: log}
}

type UploadInput struct {
	Filename string // as sent by the client; only its extension is used
	Body     io.Reader
	Caption  string
}

// AllowedExtension reports whether filename ends in an accepted image
// extension and returns the normalised extension.
func AllowedExtension(filename string) (string, bool) {
	i := strings.LastIndexByte(filename, '.')
	if i < 0 || i == len(filename)-1 {
		return "", false
	}
	ext := strings.ToLower(filename[i+1:])
	if _, ok := allowed[ext]; !ok {
		return "", false
	}
	if ext == "jpeg" {
		ext = "jpg"
	}
	return ext, true
}

// ContentType returns the MIME type for a stored filename.
func ContentType(name string) string {
	ext, ok := AllowedExtension(path.Base(name))
	if !ok {
		return "application/octet-stream"
	}
	return contentTypes[allowed[ext]]
}

// Upload stores the image under a generated name and records the post. The
// file is written before the row; if the row cannot be written the file is
// removed again.
func (s *Service) Upload(ctx context.Context, who auth.Identity, in UploadInput) (*models.Post, error) {
	if !who.Authenticated() {
		return nil, common.ErrUnauthorized
	}
	if in.Body == nil || strings.TrimSpace(in.Filename) == "" {
		return nil, common.ErrNoFile
	}
	ext, ok := AllowedExtension(in.Filename)
	if !ok {
		return nil, common.ErrUnsupportedFormat
	}
	caption := strings.TrimSpace(in.Caption)
	if utf8.RuneCountInString(caption) > MaxCaptionLength {
		return nil, common.ErrCaptionTooLong
	}

	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if len(data) == 0 {
		return nil, common.ErrNoFile
	}
	if s.detector != nil {
		if got := s.detector.Detect(data); contentTypes[got] == "" {
			s.log.Info(ctx, "upload rejected by content check", "user", who.Username, "ext", ext, "detected", got)
			return nil, common.ErrUnsupportedFormat
		}
	}

	name := uuid.New().String() + "." + ext
	if err := s.store.Save(ctx, name, bytes.NewReader(data), contentTypes[allowed[ext]]); err != nil {
		s.log.Error(ctx, "failed to store image", "name", name, "error", err)
		return nil, fmt.Errorf("%w: save image: %v", common.ErrStorageFailure, err)
	}

	post := &models.Post{UserID: who.UserID, Filename: name, Caption: caption}
	if err := s.db.WithContext(ctx).Create(post).Error; err != nil {
		s.log.Error(ctx, "failed to record post", "name", name, "error", err)
		if rmErr := s.store.Remove(context.WithoutCancel(ctx), name); rmErr != nil {
			s.log.Warn(ctx, "orphaned image left in content store", "name", name, "error", rmErr)
		}
		return nil, fmt.Errorf("%w: create post: %v", common.ErrStorageFailure, err)
	}

	s.log.Info(ctx, "post uploaded", "post_id", post.ID, "user", who.Username, "name", name)
	return post, nil
}

// Get returns a post by id.
func (s *Service) Get(ctx context.Context, id uint) (*models.Post, error) {
	var post models.Post
	if err := s.db.WithContext(ctx).First(&post, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("%w: find post: %v", common.ErrStorageFailure, err)
	}
	return &post, nil
}

// Delete removes a post for an admin. The likes and the row go in one
// transaction; the image is removed afterwards and a failure there is only
// logged.
func (s *Service) Delete(ctx context.Context, who auth.Identity, id uint) error {
	post, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if !who.IsAdmin() {
		s.log.Warn(ctx, "delete refused", "post_id", id, "user", who.Username)
		return common.ErrForbidden
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("post_id = ?", post.ID).Delete(&models.Like{}).Error; err != nil {
			return err
		}
		res := tx.Delete(&models.Post{}, post.ID)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return common.ErrNotFound
		}
		return nil
	})
	if errors.Is(err, common.ErrNotFound) {
		return err
	}
	if err != nil {
		return fmt.Errorf("%w: delete post: %v", common.ErrStorageFailure, err)
	}

	if err := s.store.Remove(context.WithoutCancel(ctx), post.Filename); err != nil {
		s.log.Warn(ctx, "post deleted but image removal failed", "post_id", post.ID, "name", post.Filename, "error", err)
	}
	s.log.Info(ctx, "post deleted", "post_id", post.ID, "by", who.Username)
	return nil
}

// ToggleLike likes the post, or removes the like if it exists, and reports
// whether the post is now liked.
func (s *Service) ToggleLike(ctx context.Context, who auth.Identity, postID uint) (bool, error) {
	if !who.Authenticated() {
		return false, common.ErrUnauthorized
	}
	if _, err := s.Get(ctx, postID); err != nil {
		return false, err
	}

	liked := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("user_id = ? AND post_id = ?", who.UserID, postID).Delete(&models.Like{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected > 0 {
			return nil
		}
		liked = true
		return tx.Create(&models.Like{UserID: who.UserID, PostID: postID}).Error
	})
	if err != nil {
		return false, fmt.Errorf("%w: toggle like: %v", common.ErrStorageFailure, err)
	}
	return liked, nil
}

// Open returns the stored image for a post filename.
func (s *Service) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	return s.store.Open(ctx, name)
}

// FeedEntry is a post with its author and like count.
type FeedEntry struct {
	models.Post
	Username  string
	LikeCount int64
}

func (s *Service) entries(ctx context.Context, order string) iter.Seq2[FeedEntry, error] {
	return func(yield func(FeedEntry, error) bool) {
		rows, err := s.db.WithContext(ctx).
			Table("posts").
			Select("posts.id, posts.created_at, posts.user_id, posts.filename, posts.caption, users.username, " +
				"(SELECT COUNT(*) FROM likes WHERE likes.post_id = posts.id) AS like_count").
			Joins("JOIN users ON users.id = posts.user_id").
			Order(order).
			Rows()
		if err != nil {
			yield(FeedEntry{}, fmt.Errorf("%w: query feed: %v", common.ErrStorageFailure, err))
			return
		}
		defer rows.Close()

		for rows.Next() {
			var e FeedEntry
			if err := rows.Scan(&e.ID, &e.CreatedAt, &e.UserID, &e.Filename, &e.Caption, &e.Username, &e.LikeCount); err != nil {
				yield(FeedEntry{}, fmt.Errorf("%w: scan feed: %v", common.ErrStorageFailure, err))
				return
			}
			if !yield(e, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(FeedEntry{}, fmt.Errorf("%w: read feed: %v", common.ErrStorageFailure, err))
		}
	}
}

// Feed yields every post, newest first; posts created at the same instant
// come in reverse insertion order. Each range over the sequence runs a fresh
// query. The database connection is held while ranging, so callers must not
// issue other queries from inside the loop.
func (s *Service) Feed(ctx context.Context) iter.Seq2[FeedEntry, error] {
	return s.entries(ctx, "posts.created_at DESC, posts.id DESC")
}

// Leaderboard yields posts ranked by like count, then recency.
func (s *Service) Leaderboard(ctx context.Context) iter.Seq2[FeedEntry, error] {
	return s.entries(ctx, "like_count DESC, posts.created_at DESC, posts.id DESC")
}

// LikedPostIDs returns the ids of the posts userID has liked.
func (s *Service) LikedPostIDs(ctx context.Context, userID uint) (map[uint]bool, error) {
	var ids []uint
	if err := s.db.WithContext(ctx).Model(&models.Like{}).Where("user_id = ?", userID).Pluck("post_id", &ids).Error; err != nil {
		return nil, fmt.Errorf("%w: liked posts: %v", common.ErrStorageFailure, err)
	}
	out := make(map[uint]bool, len(ids))
	for _, id := range ids {
		out[id] = true
	}
	return out, nil
}

// Collect drains a feed sequence into a slice.
func Collect(seq iter.Seq2[FeedEntry, error]) ([]FeedEntry, error) {
	var out []FeedEntry
	for e, err := range seq {
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}
