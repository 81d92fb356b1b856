package otherwise

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
)

func contentRedirect(c echo.Context, msg string) error {
	target := "/content"
	if msg != "" {
		target += "?msg=" + url.QueryEscape(msg)
	}
	return c.Redirect(http.StatusSeeOther, target)
}

func postID(c echo.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

func (a *App) handleContent(c echo.Context) error {
	posts, err := a.Store.ListAllPosts(c.Request().Context())
	if err != nil {
		return err
	}
	return Render(c, a.Views.Content(ContentPage{
		Page:    a.page(c, "Content"),
		Posts:   posts,
		Message: c.QueryParam("msg"),
	}))
}

func (a *App) handleToggleFeatured(c echo.Context) error {
	id, ok := postID(c)
	if !ok {
		return echo.ErrNotFound
	}
	ctx := c.Request().Context()
	post, err := a.Store.GetPostByID(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return contentRedirect(c, msgPostNotFound)
	}
	if err != nil {
		return err
	}
	res := a.SetPostFeatured(ctx, id, !post.Featured)
	if !res.Success {
		return contentRedirect(c, res.Error)
	}
	if post.Featured {
		return contentRedirect(c, "Removed from featured.")
	}
	return contentRedirect(c, "Marked as featured.")
}

func (a *App) handleSetStatus(c echo.Context) error {
	id, ok := postID(c)
	if !ok {
		return echo.ErrNotFound
	}
	status := Status(c.FormValue("status"))
	if status != StatusDraft && status != StatusPublished {
		return contentRedirect(c, "Unknown status.")
	}
	res := a.SetPostStatus(c.Request().Context(), id, status)
	if !res.Success {
		return contentRedirect(c, res.Error)
	}
	if status == StatusPublished {
		return contentRedirect(c, "Post published.")
	}
	return contentRedirect(c, "Post moved to drafts.")
}

func (a *App) handleDelete(c echo.Context) error {
	id, ok := postID(c)
	if !ok {
		return echo.ErrNotFound
	}
	if !strings.EqualFold(strings.TrimSpace(c.FormValue("confirm")), "delete") {
		return contentRedirect(c, "Type \"delete\" to confirm.")
	}
	res := a.DeletePost(c.Request().Context(), id)
	if !res.Success {
		return contentRedirect(c, res.Error)
	}
	return contentRedirect(c, "Post deleted.")
}

func formFromPost(p Post) PostForm {
	f := PostForm{
		ID:          p.ID,
		Title:       p.Title,
		Slug:        p.Slug,
		ContentType: string(p.ContentType),
		Date:        p.Date,
		Description: p.Description,
		Author:      p.Author,
		Tags:        JoinTags(p.Tags),
		Image:       p.Image,
		Featured:    p.Featured,
		Status:      string(p.Status),
		Content:     p.Content,
	}
	if p.PublishDate != nil {
		f.PublishDate = *p.PublishDate
	}
	return f
}

func readPostForm(c echo.Context) PostForm {
	return PostForm{
		Title:       c.FormValue("title"),
		Slug:        c.FormValue("slug"),
		ContentType: c.FormValue("contentType"),
		Date:        c.FormValue("date"),
		Description: c.FormValue("description"),
		Author:      c.FormValue("author"),
		Tags:        c.FormValue("tags"),
		Image:       c.FormValue("image"),
		Featured:    c.FormValue("featured") != "",
		Status:      c.FormValue("status"),
		PublishDate: c.FormValue("publishDate"),
		Content:     c.FormValue("content"),
	}
}

func (f PostForm) input() PostInput {
	return PostInput{
		Title:       f.Title,
		Slug:        f.Slug,
		ContentType: f.ContentType,
		Content:     f.Content,
		Date:        f.Date,
		Description: f.Description,
		Author:      f.Author,
		Tags:        ParseTags(f.Tags),
		Image:       f.Image,
		Featured:    f.Featured,
		Status:      f.Status,
		PublishDate: f.PublishDate,
	}
}

func (f PostForm) patch() PostPatch {
	tags := ParseTags(f.Tags)
	if tags == nil {
		tags = []string{}
	}
	p := PostPatch{
		Title:       &f.Title,
		ContentType: &f.ContentType,
		Content:     &f.Content,
		Date:        &f.Date,
		Description: &f.Description,
		Author:      &f.Author,
		Tags:        &tags,
		Image:       &f.Image,
		Featured:    &f.Featured,
	}
	// A blank slug keeps the current one.
	if strings.TrimSpace(f.Slug) != "" {
		p.Slug = &f.Slug
	}
	if f.Status != "" {
		p.Status = &f.Status
	}
	if f.PublishDate != "" {
		p.PublishDate = &f.PublishDate
	}
	return p
}

func (a *App) renderEditor(c echo.Context, code int, data EditorPage) error {
	title := "Edit post"
	if data.IsNew {
		title = "New post"
	}
	data.Page = a.page(c, title)
	return RenderStatus(c, code, a.Views.Editor(data))
}

func (a *App) handleNewPostForm(c echo.Context) error {
	return a.renderEditor(c, http.StatusOK, EditorPage{
		IsNew: true,
		Form: PostForm{
			ContentType: string(ContentTypeBlog),
			Date:        today(),
			Status:      string(StatusDraft),
		},
	})
}

func (a *App) handleEditPostForm(c echo.Context) error {
	id, ok := postID(c)
	if !ok {
		return echo.ErrNotFound
	}
	post, err := a.Store.GetPostByID(c.Request().Context(), id)
	if errors.Is(err, ErrNotFound) {
		return echo.ErrNotFound
	}
	if err != nil {
		return err
	}
	return a.renderEditor(c, http.StatusOK, EditorPage{Form: formFromPost(post)})
}

func (a *App) handleCreatePost(c echo.Context) error {
	form := readPostForm(c)
	res := a.CreatePost(c.Request().Context(), form.input())
	if !res.Success {
		return a.renderEditor(c, http.StatusUnprocessableEntity, EditorPage{
			IsNew: true, Form: form, Issues: res.Issues, Error: res.Error,
		})
	}
	return contentRedirect(c, "Post created.")
}

func (a *App) handleUpdatePost(c echo.Context) error {
	id, ok := postID(c)
	if !ok {
		return echo.ErrNotFound
	}
	form := readPostForm(c)
	form.ID = id
	res := a.UpdatePost(c.Request().Context(), id, form.patch())
	if !res.Success {
		if len(res.Issues) == 0 && res.Error == msgPostNotFound {
			return echo.ErrNotFound
		}
		return a.renderEditor(c, http.StatusUnprocessableEntity, EditorPage{
			Form: form, Issues: res.Issues, Error: res.Error,
		})
	}
	return contentRedirect(c, "Post saved.")
}
