package otherwise

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	gormlogger "gorm.io/gorm/logger"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "data", "test.db"), WithQueryLogLevel(gormlogger.Silent))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func strPtr(s string) *string { return &s }

func newPost(slug string, ct ContentType, status Status, date string) Post {
	p := Post{
		Slug:        slug,
		Title:       "Title " + slug,
		Content:     "# " + slug,
		ContentType: ct,
		Date:        date,
		Status:      status,
	}
	if status == StatusPublished {
		p.PublishDate = strPtr(date)
	}
	return p
}

func TestNewStore(t *testing.T) {
	s := setupTestStore(t)
	if s.db == nil {
		t.Fatal("db should not be nil")
	}
	if err := s.Ping(context.Background()); err != nil {
		t.Fatalf("Ping failed: %v", err)
	}
}

func TestCreateAndGetPost(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	post := newPost("test-post", ContentTypeBlog, StatusPublished, "2024-01-15")
	post.Tags = TagList{"go", "testing"}
	post.Description = "A test post summary"
	if err := s.CreatePost(ctx, &post); err != nil {
		t.Fatalf("CreatePost failed: %v", err)
	}
	if post.ID == 0 {
		t.Fatal("CreatePost should assign an ID")
	}
	if post.CreatedAt.IsZero() || post.UpdatedAt.IsZero() {
		t.Error("CreatePost should set timestamps")
	}

	got, err := s.GetPostBySlug(ctx, "test-post", ContentTypeBlog, PostQuery{})
	if err != nil {
		t.Fatalf("GetPostBySlug failed: %v", err)
	}
	if got.Title != post.Title {
		t.Errorf("Title = %q, want %q", got.Title, post.Title)
	}
	if got.Description != post.Description {
		t.Errorf("Description = %q, want %q", got.Description, post.Description)
	}
	if diff := cmp.Diff([]string{"go", "testing"}, []string(got.Tags)); diff != "" {
		t.Errorf("Tags mismatch (-want +got):\n%s", diff)
	}
	if got.PublishDate == nil || *got.PublishDate != "2024-01-15" {
		t.Errorf("PublishDate = %v, want 2024-01-15", got.PublishDate)
	}

	byID, err := s.GetPostByID(ctx, post.ID)
	if err != nil {
		t.Fatalf("GetPostByID failed: %v", err)
	}
	if byID.Slug != "test-post" {
		t.Errorf("Slug = %q, want test-post", byID.Slug)
	}

	if _, err := s.GetPostBySlug(ctx, "test-post", ContentTypeProject, PostQuery{}); !errors.Is(err, ErrNotFound) {
		t.Errorf("slug lookup in other type: err = %v, want ErrNotFound", err)
	}
}

func TestGetPostBySlugHidesDrafts(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	draft := newPost("draft", ContentTypeBlog, StatusDraft, "2024-01-15")
	if err := s.CreatePost(ctx, &draft); err != nil {
		t.Fatalf("CreatePost failed: %v", err)
	}
	if _, err := s.GetPostBySlug(ctx, "draft", ContentTypeBlog, PostQuery{Status: StatusPublished}); !errors.Is(err, ErrNotFound) {
		t.Errorf("published lookup of draft: err = %v, want ErrNotFound", err)
	}
	if _, err := s.GetPostBySlug(ctx, "draft", ContentTypeBlog, PostQuery{}); err != nil {
		t.Errorf("any-status lookup of draft: %v", err)
	}
}

func TestDuplicateSlugRejected(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	first := newPost("same", ContentTypeBlog, StatusDraft, "2024-01-01")
	if err := s.CreatePost(ctx, &first); err != nil {
		t.Fatalf("CreatePost failed: %v", err)
	}
	dup := newPost("same", ContentTypeBlog, StatusDraft, "2024-01-02")
	if err := s.CreatePost(ctx, &dup); !errors.Is(err, ErrDuplicateSlug) {
		t.Fatalf("duplicate CreatePost: err = %v, want ErrDuplicateSlug", err)
	}

	// The same slug is fine under another content type.
	other := newPost("same", ContentTypeProject, StatusDraft, "2024-01-02")
	if err := s.CreatePost(ctx, &other); err != nil {
		t.Fatalf("CreatePost in other type failed: %v", err)
	}

	second := newPost("second", ContentTypeBlog, StatusDraft, "2024-01-03")
	if err := s.CreatePost(ctx, &second); err != nil {
		t.Fatalf("CreatePost failed: %v", err)
	}
	if err := s.UpdatePost(ctx, second.ID, map[string]any{"slug": "same"}); !errors.Is(err, ErrDuplicateSlug) {
		t.Errorf("UpdatePost to taken slug: err = %v, want ErrDuplicateSlug", err)
	}
}

func TestListPostsPublishedOrder(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	posts := []Post{
		newPost("old", ContentTypeBlog, StatusPublished, "2023-05-01"),
		newPost("new", ContentTypeBlog, StatusPublished, "2024-05-01"),
		newPost("draft", ContentTypeBlog, StatusDraft, "2025-01-01"),
		newPost("project", ContentTypeProject, StatusPublished, "2024-06-01"),
	}
	for i := range posts {
		if err := s.CreatePost(ctx, &posts[i]); err != nil {
			t.Fatalf("CreatePost(%s) failed: %v", posts[i].Slug, err)
		}
	}

	published, err := s.ListPosts(ctx, ContentTypeBlog, PostQuery{Status: StatusPublished})
	if err != nil {
		t.Fatalf("ListPosts failed: %v", err)
	}
	var slugs []string
	for _, p := range published {
		slugs = append(slugs, p.Slug)
	}
	if diff := cmp.Diff([]string{"new", "old"}, slugs); diff != "" {
		t.Errorf("published slugs mismatch (-want +got):\n%s", diff)
	}

	all, err := s.ListPosts(ctx, ContentTypeBlog, PostQuery{})
	if err != nil {
		t.Fatalf("ListPosts failed: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("ListPosts(any status) returned %d posts, want 3", len(all))
	}
	if all[0].Slug != "draft" {
		t.Errorf("first post = %q, want draft (newest date)", all[0].Slug)
	}

	featured := true
	none, err := s.ListPosts(ctx, ContentTypeBlog, PostQuery{Status: StatusPublished, Featured: &featured})
	if err != nil {
		t.Fatalf("ListPosts failed: %v", err)
	}
	if none == nil || len(none) != 0 {
		t.Errorf("featured listing = %v, want empty non-nil slice", none)
	}
}

func TestListAllPostsAndSlugs(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	for _, p := range []Post{
		newPost("a", ContentTypeBlog, StatusPublished, "2024-01-01"),
		newPost("b", ContentTypeBlog, StatusDraft, "2024-02-01"),
		newPost("c", ContentTypeProject, StatusPublished, "2024-03-01"),
	} {
		if err := s.CreatePost(ctx, &p); err != nil {
			t.Fatalf("CreatePost failed: %v", err)
		}
	}

	all, err := s.ListAllPosts(ctx)
	if err != nil {
		t.Fatalf("ListAllPosts failed: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("ListAllPosts returned %d posts, want 3", len(all))
	}

	slugs := s.ListPostSlugs(ctx, PostQuery{Status: StatusPublished})
	want := []PostSlug{
		{Slug: "a", ContentType: ContentTypeBlog},
		{Slug: "c", ContentType: ContentTypeProject},
	}
	if diff := cmp.Diff(want, slugs); diff != "" {
		t.Errorf("ListPostSlugs mismatch (-want +got):\n%s", diff)
	}
}

func TestUpdatePost(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	post := newPost("edit-me", ContentTypeBlog, StatusDraft, "2024-01-01")
	if err := s.CreatePost(ctx, &post); err != nil {
		t.Fatalf("CreatePost failed: %v", err)
	}
	before := post.UpdatedAt
	time.Sleep(5 * time.Millisecond)

	err := s.UpdatePost(ctx, post.ID, map[string]any{
		"title": "Edited",
		"tags":  TagList{"one", "two"},
	})
	if err != nil {
		t.Fatalf("UpdatePost failed: %v", err)
	}
	got, err := s.GetPostByID(ctx, post.ID)
	if err != nil {
		t.Fatalf("GetPostByID failed: %v", err)
	}
	if got.Title != "Edited" {
		t.Errorf("Title = %q, want Edited", got.Title)
	}
	if diff := cmp.Diff([]string{"one", "two"}, []string(got.Tags)); diff != "" {
		t.Errorf("Tags mismatch (-want +got):\n%s", diff)
	}
	if !got.UpdatedAt.After(before) {
		t.Errorf("UpdatedAt = %v, want after %v", got.UpdatedAt, before)
	}

	if err := s.UpdatePost(ctx, 9999, map[string]any{"title": "x"}); !errors.Is(err, ErrNotFound) {
		t.Errorf("UpdatePost(missing): err = %v, want ErrNotFound", err)
	}
}

func TestDeletePost(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	post := newPost("doomed", ContentTypeBlog, StatusPublished, "2024-01-01")
	if err := s.CreatePost(ctx, &post); err != nil {
		t.Fatalf("CreatePost failed: %v", err)
	}
	if err := s.LinkImages(ctx, post.ID, []string{"a.png"}); err != nil {
		t.Fatalf("LinkImages failed: %v", err)
	}
	if err := s.DeletePost(ctx, post.ID); err != nil {
		t.Fatalf("DeletePost failed: %v", err)
	}
	if _, err := s.GetPostBySlug(ctx, "doomed", ContentTypeBlog, PostQuery{}); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetPostBySlug after delete: err = %v, want ErrNotFound", err)
	}
	keys, err := s.ListImageKeys(ctx, post.ID)
	if err != nil {
		t.Fatalf("ListImageKeys failed: %v", err)
	}
	if len(keys) != 0 {
		t.Errorf("image links survived delete: %v", keys)
	}
	if err := s.DeletePost(ctx, post.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second DeletePost: err = %v, want ErrNotFound", err)
	}
}

func TestTagsRoundTrip(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	tests := []struct {
		name string
		in   TagList
		want []string
	}{
		{"nil", nil, nil},
		{"single", TagList{"go"}, []string{"go"}},
		{"several", TagList{"design", "ai", "strategy"}, []string{"design", "ai", "strategy"}},
	}
	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newPost("tags-"+tt.name, ContentTypeBlog, StatusDraft, "2024-01-01")
			p.Tags = tt.in
			if err := s.CreatePost(ctx, &p); err != nil {
				t.Fatalf("CreatePost #%d failed: %v", i, err)
			}
			got, err := s.GetPostByID(ctx, p.ID)
			if err != nil {
				t.Fatalf("GetPostByID failed: %v", err)
			}
			if diff := cmp.Diff(tt.want, []string(got.Tags)); diff != "" {
				t.Errorf("Tags mismatch (-want +got):\n%s", diff)
			}
			if JoinTags(got.Tags) != JoinTags(tt.want) {
				t.Errorf("editor text = %q, want %q", JoinTags(got.Tags), JoinTags(tt.want))
			}
		})
	}
}

func TestIsPublicObject(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	draft := newPost("draft", ContentTypeBlog, StatusDraft, "2024-01-01")
	draft.Image = "/api/media/cover.jpg"
	if err := s.CreatePost(ctx, &draft); err != nil {
		t.Fatalf("CreatePost failed: %v", err)
	}
	if err := s.LinkImages(ctx, draft.ID, []string{"inline.png", "cover.jpg"}); err != nil {
		t.Fatalf("LinkImages failed: %v", err)
	}
	// Linking again is a no-op.
	if err := s.LinkImages(ctx, draft.ID, []string{"inline.png"}); err != nil {
		t.Fatalf("LinkImages (repeat) failed: %v", err)
	}
	keys, err := s.ListImageKeys(ctx, draft.ID)
	if err != nil {
		t.Fatalf("ListImageKeys failed: %v", err)
	}
	if diff := cmp.Diff([]string{"cover.jpg", "inline.png"}, keys); diff != "" {
		t.Errorf("image keys mismatch (-want +got):\n%s", diff)
	}

	for _, key := range []string{"inline.png", "cover.jpg", "unknown.gif"} {
		ok, err := s.IsPublicObject(ctx, key)
		if err != nil {
			t.Fatalf("IsPublicObject(%s) failed: %v", key, err)
		}
		if ok {
			t.Errorf("IsPublicObject(%s) = true while the post is a draft", key)
		}
	}

	if err := s.UpdatePost(ctx, draft.ID, map[string]any{"status": StatusPublished}); err != nil {
		t.Fatalf("UpdatePost failed: %v", err)
	}
	for key, want := range map[string]bool{"inline.png": true, "cover.jpg": true, "unknown.gif": false} {
		ok, err := s.IsPublicObject(ctx, key)
		if err != nil {
			t.Fatalf("IsPublicObject(%s) failed: %v", key, err)
		}
		if ok != want {
			t.Errorf("IsPublicObject(%s) = %v, want %v", key, ok, want)
		}
	}
}

func TestUsersAndSessions(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	u, err := s.CreateUser(ctx, "  Admin@Example.com ", "Admin", "hash")
	if err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	if u.Email != "admin@example.com" {
		t.Errorf("Email = %q, want normalized admin@example.com", u.Email)
	}
	if _, err := s.CreateUser(ctx, "ADMIN@example.com", "Other", "hash"); !errors.Is(err, ErrDuplicateEmail) {
		t.Errorf("duplicate CreateUser: err = %v, want ErrDuplicateEmail", err)
	}
	if _, err := s.GetUserByEmail(ctx, "admin@EXAMPLE.com"); err != nil {
		t.Errorf("GetUserByEmail failed: %v", err)
	}
	if _, err := s.GetUserByEmail(ctx, "nobody@example.com"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetUserByEmail(unknown): err = %v, want ErrNotFound", err)
	}

	now := time.Now().UTC()
	live := &Session{UserID: u.ID, TokenHash: "live", ExpiresAt: now.Add(time.Hour)}
	expired := &Session{UserID: u.ID, TokenHash: "expired", ExpiresAt: now.Add(-time.Hour)}
	for _, sess := range []*Session{live, expired} {
		if err := s.CreateSession(ctx, sess); err != nil {
			t.Fatalf("CreateSession failed: %v", err)
		}
	}

	got, err := s.GetSessionByTokenHash(ctx, "live", now)
	if err != nil {
		t.Fatalf("GetSessionByTokenHash failed: %v", err)
	}
	if got.User.Email != "admin@example.com" {
		t.Errorf("session user = %q, want admin@example.com", got.User.Email)
	}
	if _, err := s.GetSessionByTokenHash(ctx, "expired", now); !errors.Is(err, ErrNotFound) {
		t.Errorf("expired session: err = %v, want ErrNotFound", err)
	}

	n, err := s.DeleteExpiredSessions(ctx, now)
	if err != nil {
		t.Fatalf("DeleteExpiredSessions failed: %v", err)
	}
	if n != 1 {
		t.Errorf("DeleteExpiredSessions removed %d, want 1", n)
	}

	if err := s.DeleteSessionByTokenHash(ctx, "live"); err != nil {
		t.Fatalf("DeleteSessionByTokenHash failed: %v", err)
	}
	if _, err := s.GetSessionByTokenHash(ctx, "live", now); !errors.Is(err, ErrNotFound) {
		t.Errorf("deleted session: err = %v, want ErrNotFound", err)
	}

	users, err := s.ListUsers(ctx)
	if err != nil {
		t.Fatalf("ListUsers failed: %v", err)
	}
	if len(users) != 1 {
		t.Fatalf("ListUsers returned %d users, want 1", len(users))
	}
	if err := s.DeleteUser(ctx, "admin@example.com"); err != nil {
		t.Fatalf("DeleteUser failed: %v", err)
	}
	if err := s.DeleteUser(ctx, "admin@example.com"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second DeleteUser: err = %v, want ErrNotFound", err)
	}
}
