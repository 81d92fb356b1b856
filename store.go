package otherwise

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	_ "modernc.org/sqlite"
)

var (
	// ErrNotFound is returned when a requested row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDuplicateSlug is returned when (content type, slug) is already taken.
	ErrDuplicateSlug = errors.New("slug already exists for this content type")
	// ErrDuplicateEmail is returned when a user with the email already exists.
	ErrDuplicateEmail = errors.New("email already registered")
)

// Store wraps a SQLite database behind gorm and provides post, image,
// user and session persistence.
type Store struct {
	db     *gorm.DB
	sqlDB  *sql.DB
	logger echo.Logger
}

// StoreOption configures a Store.
type StoreOption func(*storeOptions)

type storeOptions struct {
	logger    echo.Logger
	gormLevel gormlogger.LogLevel
}

// WithStoreLogger sets the logger used for degraded-path warnings.
func WithStoreLogger(l echo.Logger) StoreOption {
	return func(o *storeOptions) {
		o.logger = l
	}
}

// WithQueryLogLevel sets gorm's own log level.
func WithQueryLogLevel(level gormlogger.LogLevel) StoreOption {
	return func(o *storeOptions) {
		o.gormLevel = level
	}
}

// NewStore opens (or creates) the SQLite database at path, ensures the data
// directory exists, and migrates the schema.
func NewStore(path string, opts ...StoreOption) (*Store, error) {
	o := storeOptions{gormLevel: gormlogger.Warn}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = log.New("store")
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	// WAL lets readers proceed while the single writer commits; busy_timeout
	// makes writers wait instead of failing with SQLITE_BUSY.
	dsn := path + "?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(4)
	sqlDB.SetMaxIdleConns(4)

	db, err := gorm.Open(sqlite.New(sqlite.Config{Conn: sqlDB}), &gorm.Config{
		Logger: gormlogger.Default.LogMode(o.gormLevel),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("open gorm: %w", err)
	}
	s := &Store{db: db, sqlDB: sqlDB, logger: o.logger}
	if err := s.migrate(); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.sqlDB.Close()
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.sqlDB.PingContext(ctx)
}

func (s *Store) migrate() error {
	if err := s.db.AutoMigrate(&Post{}, &Image{}, &User{}, &Session{}); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func (s *Store) postScope(ctx context.Context, contentType ContentType, q PostQuery) *gorm.DB {
	tx := s.db.WithContext(ctx).Model(&Post{}).Where("content_type = ?", contentType)
	if q.Status == StatusPublished {
		tx = tx.Where("status = ?", StatusPublished)
	}
	if q.Featured != nil {
		tx = tx.Where("featured = ?", *q.Featured)
	}
	return tx
}

// ListPosts returns posts of one content type. Published listings are ordered
// by publish date, then authored date; others by authored date, newest first.
func (s *Store) ListPosts(ctx context.Context, contentType ContentType, q PostQuery) ([]Post, error) {
	tx := s.postScope(ctx, contentType, q)
	if q.Status == StatusPublished {
		tx = tx.Order("publish_date DESC").Order("date DESC")
	} else {
		tx = tx.Order("date DESC")
	}
	posts := []Post{}
	if err := tx.Find(&posts).Error; err != nil {
		return nil, fmt.Errorf("list %s posts: %w", contentType, err)
	}
	return posts, nil
}

// GetPostBySlug returns the post with slug in contentType.
func (s *Store) GetPostBySlug(ctx context.Context, slug string, contentType ContentType, q PostQuery) (Post, error) {
	var post Post
	err := s.postScope(ctx, contentType, q).Where("slug = ?", slug).Take(&post).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Post{}, ErrNotFound
	}
	if err != nil {
		return Post{}, fmt.Errorf("get post %s/%s: %w", contentType, slug, err)
	}
	return post, nil
}

// GetPostByID returns a post regardless of status (for admin).
func (s *Store) GetPostByID(ctx context.Context, id uint) (Post, error) {
	var post Post
	err := s.db.WithContext(ctx).Take(&post, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Post{}, ErrNotFound
	}
	if err != nil {
		return Post{}, fmt.Errorf("get post %d: %w", id, err)
	}
	return post, nil
}

// ListAllPosts returns every post of every type and status, newest first.
func (s *Store) ListAllPosts(ctx context.Context) ([]Post, error) {
	posts := []Post{}
	if err := s.db.WithContext(ctx).Order("date DESC").Order("id DESC").Find(&posts).Error; err != nil {
		return nil, fmt.Errorf("list all posts: %w", err)
	}
	return posts, nil
}

// ListPostSlugs returns the slug and type of matching posts. Failures are
// logged and yield an empty list so sitemap generation never fails.
func (s *Store) ListPostSlugs(ctx context.Context, q PostQuery) []PostSlug {
	tx := s.db.WithContext(ctx).Model(&Post{}).
		Select("slug", "content_type").
		Where("content_type IN ?", ContentTypes)
	if q.Status == StatusPublished {
		tx = tx.Where("status = ?", StatusPublished)
	}
	if q.Featured != nil {
		tx = tx.Where("featured = ?", *q.Featured)
	}
	slugs := []PostSlug{}
	if err := tx.Order("content_type").Order("date DESC").Scan(&slugs).Error; err != nil {
		s.logger.Warnf("list post slugs: %v", err)
		return []PostSlug{}
	}
	return slugs
}

// CreatePost inserts p and fills in its ID and timestamps.
func (s *Store) CreatePost(ctx context.Context, p *Post) error {
	err := s.db.WithContext(ctx).Create(p).Error
	if isUniqueViolation(err) {
		return ErrDuplicateSlug
	}
	if err != nil {
		return fmt.Errorf("create post: %w", err)
	}
	return nil
}

// UpdatePost applies column updates to the post with id. updated_at is always
// refreshed. Returns ErrNotFound when no row matched.
func (s *Store) UpdatePost(ctx context.Context, id uint, fields map[string]any) error {
	updates := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		updates[k] = v
	}
	updates["updated_at"] = s.db.NowFunc()
	res := s.db.WithContext(ctx).Model(&Post{}).Where("id = ?", id).Updates(updates)
	if isUniqueViolation(res.Error) {
		return ErrDuplicateSlug
	}
	if res.Error != nil {
		return fmt.Errorf("update post %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeletePost removes a post; its image links go with it.
func (s *Store) DeletePost(ctx context.Context, id uint) error {
	res := s.db.WithContext(ctx).Delete(&Post{}, id)
	if res.Error != nil {
		return fmt.Errorf("delete post %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// LinkImages records that postID references each object key. Existing links
// are left alone.
func (s *Store) LinkImages(ctx context.Context, postID uint, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	images := make([]Image, 0, len(keys))
	for _, k := range keys {
		images = append(images, Image{PostID: postID, ObjectKey: k})
	}
	err := s.db.WithContext(ctx).
		Omit(clause.Associations).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&images).Error
	if err != nil {
		return fmt.Errorf("link images for post %d: %w", postID, err)
	}
	return nil
}

// ListImageKeys returns the object keys linked to postID.
func (s *Store) ListImageKeys(ctx context.Context, postID uint) ([]string, error) {
	keys := []string{}
	err := s.db.WithContext(ctx).Model(&Image{}).
		Where("post_id = ?", postID).
		Order("object_key").
		Pluck("object_key", &keys).Error
	if err != nil {
		return nil, fmt.Errorf("list images for post %d: %w", postID, err)
	}
	return keys, nil
}

// IsPublicObject reports whether a published post references key, either as
// an inline image or as its featured image.
func (s *Store) IsPublicObject(ctx context.Context, key string) (bool, error) {
	var found int64
	err := s.db.WithContext(ctx).Raw(`
SELECT EXISTS (
    SELECT 1 FROM images JOIN posts ON posts.id = images.post_id
    WHERE images.object_key = ? AND posts.status = ?
) OR EXISTS (
    SELECT 1 FROM posts WHERE posts.image = ? AND posts.status = ?
)`, key, StatusPublished, mediaPathPrefix+key, StatusPublished).Scan(&found).Error
	if err != nil {
		return false, fmt.Errorf("check public object %q: %w", key, err)
	}
	return found == 1, nil
}
