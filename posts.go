package otherwise

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/otherwisedev/otherwise/markdown"
)

const (
	dateLayout      = "2006-01-02"
	msgPostNotFound = "Post not found."
)

// MutationResult is the outcome of a post mutation. Failures carry either a
// general Error or per-field Issues keyed by JSON field name.
type MutationResult struct {
	Success bool                `json:"success"`
	ID      uint                `json:"id,omitempty"`
	Error   string              `json:"error,omitempty"`
	Issues  map[string][]string `json:"issues,omitempty"`
}

func failed(msg string) MutationResult {
	return MutationResult{Error: msg}
}

func invalid(issues map[string][]string) MutationResult {
	return MutationResult{Error: "Please fix the highlighted fields.", Issues: issues}
}

// PostInput is the payload for creating a post.
type PostInput struct {
	Title       string   `json:"title" validate:"required"`
	Slug        string   `json:"slug" validate:"omitempty,slug"`
	ContentType string   `json:"contentType" validate:"required,oneof=blog project"`
	Content     string   `json:"content" validate:"required"`
	Date        string   `json:"date" validate:"required,datetime=2006-01-02"`
	Description string   `json:"description"`
	Author      string   `json:"author"`
	Tags        []string `json:"tags" validate:"omitempty,dive,required"`
	Image       string   `json:"image" validate:"omitempty,mediapath"`
	Featured    bool     `json:"featured"`
	Status      string   `json:"status" validate:"omitempty,oneof=draft published"`
	PublishDate string   `json:"publishDate" validate:"omitempty,datetime=2006-01-02"`
}

// PostPatch is a partial update; nil fields are left unchanged.
type PostPatch struct {
	Title       *string   `json:"title" validate:"omitnil,min=1"`
	Slug        *string   `json:"slug" validate:"omitnil,slug"`
	ContentType *string   `json:"contentType" validate:"omitnil,oneof=blog project"`
	Content     *string   `json:"content" validate:"omitnil,min=1"`
	Date        *string   `json:"date" validate:"omitnil,datetime=2006-01-02"`
	Description *string   `json:"description"`
	Author      *string   `json:"author"`
	Tags        *[]string `json:"tags" validate:"omitnil,dive,required"`
	Image       *string   `json:"image" validate:"omitnil,mediapath"`
	Featured    *bool     `json:"featured"`
	Status      *string   `json:"status" validate:"omitnil,oneof=draft published"`
	PublishDate *string   `json:"publishDate" validate:"omitnil,datetime=2006-01-02"`
}

func today() string {
	return time.Now().UTC().Format(dateLayout)
}

func trimPtr(p *string) *string {
	if p == nil {
		return nil
	}
	s := strings.TrimSpace(*p)
	return &s
}

func normalizeTags(tags []string) TagList {
	return TagList(FilterEmpty(tags))
}

// CreatePost validates in and inserts a new post. Status defaults to draft;
// a published post gets today's publish date unless one is supplied.
func (a *App) CreatePost(ctx context.Context, in PostInput) MutationResult {
	in.Title = strings.TrimSpace(in.Title)
	in.Slug = strings.TrimSpace(in.Slug)
	in.Date = strings.TrimSpace(in.Date)
	in.Image = strings.TrimSpace(in.Image)
	in.PublishDate = strings.TrimSpace(in.PublishDate)
	for i := range in.Tags {
		in.Tags[i] = strings.TrimSpace(in.Tags[i])
	}
	if err := a.validate.Struct(in); err != nil {
		return invalid(validationIssues(err))
	}

	slug := in.Slug
	if slug == "" {
		slug = SlugifyOrFallback(in.Title, time.Now())
	}
	status := Status(in.Status)
	if status == "" {
		status = StatusDraft
	}
	post := Post{
		Slug:        slug,
		Title:       in.Title,
		Description: strings.TrimSpace(in.Description),
		Content:     in.Content,
		ContentType: ContentType(in.ContentType),
		Author:      strings.TrimSpace(in.Author),
		Date:        in.Date,
		Tags:        normalizeTags(in.Tags),
		Image:       in.Image,
		Featured:    in.Featured,
		Status:      status,
	}
	if status == StatusPublished {
		pd := in.PublishDate
		if pd == "" {
			pd = today()
		}
		post.PublishDate = &pd
	}

	if err := a.Store.CreatePost(ctx, &post); err != nil {
		if errors.Is(err, ErrDuplicateSlug) {
			return invalid(map[string][]string{"slug": {duplicateSlugMessage(post.ContentType)}})
		}
		a.Echo.Logger.Errorf("create post: %v", err)
		return failed("Failed to save post.")
	}
	a.linkPostImages(ctx, post.ID, post.Content, post.Image)
	a.invalidateListings(ctx)
	return MutationResult{Success: true, ID: post.ID}
}

// UpdatePost applies patch to the post with id. Moving to published keeps an
// existing publish date (or sets today's); moving to draft clears it. An
// empty Image clears the featured image.
func (a *App) UpdatePost(ctx context.Context, id uint, patch PostPatch) MutationResult {
	patch.Title = trimPtr(patch.Title)
	patch.Slug = trimPtr(patch.Slug)
	patch.Date = trimPtr(patch.Date)
	patch.Image = trimPtr(patch.Image)
	patch.PublishDate = trimPtr(patch.PublishDate)
	// An empty publish date means "not supplied".
	if patch.PublishDate != nil && *patch.PublishDate == "" {
		patch.PublishDate = nil
	}
	if patch.Tags != nil {
		tags := make([]string, len(*patch.Tags))
		for i, t := range *patch.Tags {
			tags[i] = strings.TrimSpace(t)
		}
		patch.Tags = &tags
	}
	if err := a.validate.Struct(patch); err != nil {
		return invalid(validationIssues(err))
	}

	fields := map[string]any{}
	if patch.Title != nil {
		fields["title"] = *patch.Title
	}
	if patch.Slug != nil {
		fields["slug"] = *patch.Slug
	}
	if patch.ContentType != nil {
		fields["content_type"] = ContentType(*patch.ContentType)
	}
	if patch.Content != nil {
		fields["content"] = *patch.Content
	}
	if patch.Date != nil {
		fields["date"] = *patch.Date
	}
	if patch.Description != nil {
		fields["description"] = strings.TrimSpace(*patch.Description)
	}
	if patch.Author != nil {
		fields["author"] = strings.TrimSpace(*patch.Author)
	}
	if patch.Tags != nil {
		fields["tags"] = normalizeTags(*patch.Tags)
	}
	if patch.Image != nil {
		fields["image"] = *patch.Image
	}
	if patch.Featured != nil {
		fields["featured"] = *patch.Featured
	}
	if patch.Status != nil {
		switch Status(*patch.Status) {
		case StatusPublished:
			fields["status"] = StatusPublished
			if patch.PublishDate != nil {
				fields["publish_date"] = *patch.PublishDate
			} else {
				fields["publish_date"] = gorm.Expr("COALESCE(publish_date, ?)", today())
			}
		case StatusDraft:
			fields["status"] = StatusDraft
			fields["publish_date"] = nil
		}
	} else if patch.PublishDate != nil {
		// Drafts never carry a publish date.
		fields["publish_date"] = gorm.Expr("CASE WHEN status = ? THEN ? ELSE NULL END", StatusPublished, *patch.PublishDate)
	}

	if err := a.Store.UpdatePost(ctx, id, fields); err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			return failed(msgPostNotFound)
		case errors.Is(err, ErrDuplicateSlug):
			ct := ContentType("")
			if patch.ContentType != nil {
				ct = ContentType(*patch.ContentType)
			}
			return invalid(map[string][]string{"slug": {duplicateSlugMessage(ct)}})
		}
		a.Echo.Logger.Errorf("update post %d: %v", id, err)
		return failed("Failed to update post.")
	}

	if patch.Content != nil || patch.Image != nil {
		if post, err := a.Store.GetPostByID(ctx, id); err == nil {
			a.linkPostImages(ctx, id, post.Content, post.Image)
		}
	}
	a.invalidateListings(ctx)
	return MutationResult{Success: true, ID: id}
}

// SetPostStatus publishes or archives a post.
func (a *App) SetPostStatus(ctx context.Context, id uint, status Status) MutationResult {
	s := string(status)
	return a.UpdatePost(ctx, id, PostPatch{Status: &s})
}

// SetPostFeatured flags or unflags a post as featured.
func (a *App) SetPostFeatured(ctx context.Context, id uint, featured bool) MutationResult {
	return a.UpdatePost(ctx, id, PostPatch{Featured: &featured})
}

// DeletePost removes the post with id.
func (a *App) DeletePost(ctx context.Context, id uint) MutationResult {
	if err := a.Store.DeletePost(ctx, id); err != nil {
		if errors.Is(err, ErrNotFound) {
			return failed(msgPostNotFound)
		}
		a.Echo.Logger.Errorf("delete post %d: %v", id, err)
		return failed("Failed to delete post.")
	}
	a.invalidateListings(ctx)
	return MutationResult{Success: true, ID: id}
}

func duplicateSlugMessage(ct ContentType) string {
	if ct == "" {
		return "This slug is already used by another post of the same type."
	}
	return fmt.Sprintf("This slug is already used by another %s post.", ct)
}

// linkPostImages records the media objects a post references so the media
// proxy can serve them publicly once the post is published.
func (a *App) linkPostImages(ctx context.Context, postID uint, content, image string) {
	keys := markdown.MediaKeys(content)
	if key, ok := markdown.MediaKey(image); ok && !containsString(keys, key) {
		keys = append(keys, key)
	}
	if err := a.Store.LinkImages(ctx, postID, keys); err != nil {
		a.Echo.Logger.Warnf("link images: %v", err)
	}
}
