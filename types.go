package otherwise

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// ContentType distinguishes blog entries from portfolio projects.
type ContentType string

const (
	ContentTypeBlog    ContentType = "blog"
	ContentTypeProject ContentType = "project"
)

// ContentTypes lists every content type in display order.
var ContentTypes = []ContentType{ContentTypeBlog, ContentTypeProject}

// Valid reports whether t is a known content type.
func (t ContentType) Valid() bool {
	return t == ContentTypeBlog || t == ContentTypeProject
}

// Status is the publication state of a post.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusPublished Status = "published"
)

// TagList is stored as a comma-joined string and exposed as a JSON array.
type TagList []string

// Value implements driver.Valuer.
func (l TagList) Value() (driver.Value, error) {
	return strings.Join(l, ","), nil
}

// Scan implements sql.Scanner.
func (l *TagList) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*l = nil
	case string:
		*l = ParseTags(v)
	case []byte:
		*l = ParseTags(string(v))
	default:
		return fmt.Errorf("tags: unsupported type %T", src)
	}
	return nil
}

// GormDataType tells gorm to use a TEXT column.
func (TagList) GormDataType() string {
	return "text"
}

// MarshalJSON encodes a nil list as [] rather than null.
func (l TagList) MarshalJSON() ([]byte, error) {
	if l == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]string(l))
}

// Post is a blog entry or project.
type Post struct {
	ID          uint        `gorm:"primaryKey" json:"id"`
	Slug        string      `gorm:"not null;uniqueIndex:content_type_slug_idx,priority:2" json:"slug"`
	Title       string      `gorm:"not null" json:"title"`
	Description string      `json:"description"`
	Content     string      `gorm:"type:text;not null" json:"content"`
	ContentType ContentType `gorm:"not null;uniqueIndex:content_type_slug_idx,priority:1" json:"contentType"`
	Author      string      `json:"author"`
	Date        string      `gorm:"not null" json:"date"`
	Tags        TagList     `json:"tags"`
	Image       string      `json:"image"`
	Featured    bool        `gorm:"not null" json:"featured"`
	Status      Status      `gorm:"not null;index:posts_status_idx" json:"status"`
	PublishDate *string     `json:"publishDate"`
	CreatedAt   time.Time   `json:"createdAt"`
	UpdatedAt   time.Time   `json:"updatedAt"`
}

// URL is the site-relative path of the post's detail page.
func (p Post) URL() string {
	return "/posts/" + string(p.ContentType) + "/" + p.Slug
}

// DisplayDate is the publish date when set, otherwise the authored date.
func (p Post) DisplayDate() string {
	if p.PublishDate != nil && *p.PublishDate != "" {
		return *p.PublishDate
	}
	return p.Date
}

// Published reports whether the post is publicly visible.
func (p Post) Published() bool {
	return p.Status == StatusPublished
}

// Image links a post to a media object it references.
type Image struct {
	ID        uint   `gorm:"primaryKey" json:"id"`
	PostID    uint   `gorm:"not null;uniqueIndex:post_image_object_key_idx,priority:1" json:"postId"`
	Post      Post   `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	ObjectKey string `gorm:"not null;uniqueIndex:post_image_object_key_idx,priority:2;index:post_images_object_key_idx" json:"objectKey"`
}

// PostSlug identifies a post for sitemap generation.
type PostSlug struct {
	Slug        string      `json:"slug"`
	ContentType ContentType `json:"contentType"`
}

// PostQuery narrows listing queries.
type PostQuery struct {
	Status   Status // StatusPublished filters; empty means any status
	Featured *bool
}

// User is an admin account. Accounts are provisioned from the CLI.
type User struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Email        string    `gorm:"not null;uniqueIndex" json:"email"`
	Name         string    `json:"name"`
	PasswordHash string    `gorm:"not null" json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Session is a signed-in admin session. Only the token hash is stored.
type Session struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"not null;index" json:"userId"`
	User      User      `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	TokenHash string    `gorm:"not null;uniqueIndex" json:"-"`
	ExpiresAt time.Time `gorm:"not null;index" json:"expiresAt"`
	IPAddress string    `json:"ipAddress"`
	UserAgent string    `json:"userAgent"`
	CreatedAt time.Time `json:"createdAt"`
}

// PageMeta carries per-page OpenGraph and SEO metadata into the <head> template.
type PageMeta struct {
	Title       string
	Description string
	URL         string // canonical + og:url
	OGType      string // "website" or "article"
}

// Page is embedded in every page's view data.
type Page struct {
	Site    SiteConfig
	Meta    PageMeta
	CSRF    string
	Session *Session
}

// HomePage is the marketing landing page.
type HomePage struct {
	Page
	Featured      []Post
	FeaturedError string
}

// PostsPage lists published posts.
type PostsPage struct {
	Page
	Posts []Post
	Type  ContentType // empty lists every type
	Tag   string
	Tags  []string
	Error string
}

// PostPage renders a single published post.
type PostPage struct {
	Page
	Post    Post
	Related []Post
}

// LoginPage is the admin sign-in form.
type LoginPage struct {
	Page
	Email string
	Error string
	Next  string
}

// ContentPage is the admin content table.
type ContentPage struct {
	Page
	Posts   []Post
	Message string
}

// EditorPage is the admin post editor.
type EditorPage struct {
	Page
	Form   PostForm
	IsNew  bool
	Issues map[string][]string
	Error  string
}

// LegalPage renders the privacy policy or the terms of service.
type LegalPage struct {
	Page
	Kind string // "privacy" or "terms"
}

// PostForm mirrors the editor's form fields.
type PostForm struct {
	ID          uint
	Title       string
	Slug        string
	ContentType string
	Date        string
	Description string
	Author      string
	Tags        string
	Image       string
	Featured    bool
	Status      string
	PublishDate string
	Content     string
}
