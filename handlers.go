package otherwise

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/cenkalti/backoff/v5"
	"github.com/labstack/echo/v4"
)

const (
	featuredAttempts = 3
	relatedLimit     = 3
)

// page builds the common view data for a request.
func (a *App) page(c echo.Context, title string) Page {
	desc := a.Config.Description
	return Page{
		Site: a.Config,
		Meta: PageMeta{
			Title:       title,
			Description: desc,
			URL:         BuildURL(a.Config.URL, c.Request().URL.Path),
			OGType:      "website",
		},
		CSRF:    CsrfToken(c),
		Session: a.currentSession(c),
	}
}

// loadFeaturedProjects fetches featured published projects, retrying a fixed
// number of times with a fixed delay.
func (a *App) loadFeaturedProjects(ctx context.Context) ([]Post, error) {
	featured := true
	return backoff.Retry(ctx, func() ([]Post, error) {
		return a.listPublished(ctx, ContentTypeProject, &featured)
	},
		backoff.WithBackOff(backoff.NewConstantBackOff(a.retryDelay)),
		backoff.WithMaxTries(featuredAttempts),
	)
}

func (a *App) handleHome(c echo.Context) error {
	data := HomePage{Page: a.page(c, a.Config.Name)}
	posts, err := a.loadFeaturedProjects(c.Request().Context())
	if err != nil {
		c.Logger().Warnf("featured projects: %v", err)
		data.FeaturedError = "Unable to load projects at this time."
	}
	data.Featured = posts
	return Render(c, a.Views.Home(data))
}

func (a *App) handlePosts(c echo.Context) error {
	ct := ContentType(c.QueryParam("type"))
	if !ct.Valid() {
		ct = ""
	}
	tag := strings.TrimSpace(c.QueryParam("tag"))

	title := "Posts"
	switch ct {
	case ContentTypeBlog:
		title = "Blog"
	case ContentTypeProject:
		title = "Projects"
	}
	data := PostsPage{Page: a.page(c, title), Type: ct, Tag: tag}

	ctx := c.Request().Context()
	var posts []Post
	var err error
	if ct == "" {
		posts, err = a.listAllPublished(ctx)
	} else {
		posts, err = a.listPublished(ctx, ct, nil)
	}
	if err != nil {
		c.Logger().Warnf("list posts: %v", err)
		data.Error = "Unable to load posts at this time."
		return Render(c, a.Views.Posts(data))
	}
	data.Tags = FilterTags(posts)
	data.Posts = FilterByTag(posts, tag)
	return Render(c, a.Views.Posts(data))
}

func (a *App) handlePost(c echo.Context) error {
	ct := ContentType(c.Param("type"))
	if !ct.Valid() {
		return RenderStatus(c, http.StatusNotFound, a.Views.NotFound())
	}
	ctx := c.Request().Context()
	post, err := a.Store.GetPostBySlug(ctx, c.Param("slug"), ct, PostQuery{Status: StatusPublished})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return RenderStatus(c, http.StatusNotFound, a.Views.NotFound())
		}
		return err
	}
	data := PostPage{Page: a.page(c, post.Title), Post: post}
	data.Meta.OGType = "article"
	if post.Description != "" {
		data.Meta.Description = post.Description
	}
	if siblings, err := a.listPublished(ctx, ct, nil); err == nil {
		data.Related = FilterRelatedPosts(post, siblings, relatedLimit)
	} else {
		c.Logger().Warnf("related posts: %v", err)
	}
	return Render(c, a.Views.Post(data))
}

func handleBlogRedirect(c echo.Context) error {
	return c.Redirect(http.StatusMovedPermanently, "/posts?type=blog")
}

func handleProjectsRedirect(c echo.Context) error {
	return c.Redirect(http.StatusMovedPermanently, "/posts?type=project")
}

func (a *App) handleLegal(kind, title string) echo.HandlerFunc {
	return func(c echo.Context) error {
		return Render(c, a.Views.Legal(LegalPage{Page: a.page(c, title), Kind: kind}))
	}
}

func (a *App) handleSitemap(c echo.Context) error {
	slugs := a.Store.ListPostSlugs(c.Request().Context(), PostQuery{Status: StatusPublished})
	return a.renderSitemap(c, slugs)
}

func (a *App) handleFeed(c echo.Context) error {
	posts, err := a.listAllPublished(c.Request().Context())
	if err != nil {
		return err
	}
	return a.renderRSS(c, posts)
}

func (a *App) handleRobots(c echo.Context) error {
	body := "User-agent: *\nAllow: /\nDisallow: /content\nDisallow: /publish\nDisallow: /login\nDisallow: /api/\n\nSitemap: " +
		BuildURL(a.Config.URL, "sitemap.xml") + "\n"
	return c.String(http.StatusOK, body)
}

func (a *App) handleHealth(c echo.Context) error {
	if err := a.Store.Ping(c.Request().Context()); err != nil {
		c.Logger().Errorf("health: %v", err)
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (a *App) httpErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	code := http.StatusInternalServerError
	var he *echo.HTTPError
	if errors.As(err, &he) {
		code = he.Code
	}
	if code >= 500 {
		c.Logger().Errorf("server error: %v", err)
	}
	if strings.HasPrefix(c.Request().URL.Path, "/api/") {
		msg := http.StatusText(code)
		if he != nil && code < 500 {
			if s, ok := he.Message.(string); ok {
				msg = s
			}
		}
		_ = c.JSON(code, map[string]string{"error": msg})
		return
	}
	switch {
	case code == http.StatusNotFound:
		_ = RenderStatus(c, http.StatusNotFound, a.Views.NotFound())
	case code >= 500:
		_ = RenderStatus(c, code, a.Views.ServerError())
	default:
		a.Echo.DefaultHTTPErrorHandler(err, c)
	}
}
