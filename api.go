package otherwise

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/otherwisedev/otherwise/mailer"
)

const slowRequestThreshold = time.Second

type postsQuery struct {
	contentType ContentType
	status      string // "published" or "all"
	featured    *bool
}

// parsePostsQuery validates /api/posts parameters. It returns a message for
// the 400 response when they are invalid.
func parsePostsQuery(v url.Values) (postsQuery, string) {
	var q postsQuery
	ct := ContentType(v.Get("type"))
	if ct == "" {
		return q, "Missing required parameter: type"
	}
	if !ct.Valid() {
		return q, "Invalid type parameter. Must be 'blog' or 'project'"
	}
	q.contentType = ct
	switch s := v.Get("status"); s {
	case "", "published", "all":
		q.status = s
	default:
		return q, "Invalid status parameter. Must be 'published' or 'all'"
	}
	switch f := v.Get("featured"); f {
	case "":
	case "true", "false":
		b := f == "true"
		q.featured = &b
	default:
		return q, "Invalid featured parameter. Must be 'true' or 'false'"
	}
	return q, ""
}

// postsETag summarises a listing so unchanged results can be answered 304.
func postsETag(q postsQuery, posts []Post) string {
	var last time.Time
	for _, p := range posts {
		if p.UpdatedAt.After(last) {
			last = p.UpdatedAt
		}
	}
	var featured any
	if q.featured != nil {
		featured = *q.featured
	}
	data, _ := json.Marshal(map[string]any{
		"type":         q.contentType,
		"status":       q.status,
		"featured":     featured,
		"count":        len(posts),
		"lastModified": last.UTC().Format(time.RFC3339Nano),
	})
	return `"` + base64.StdEncoding.EncodeToString(data) + `"`
}

// handleAPIPosts serves GET /api/posts?type=&status=&featured=. Anonymous
// callers get published posts; status=all needs a session.
func (a *App) handleAPIPosts(c echo.Context) error {
	start := time.Now()
	h := c.Response().Header()

	q, msg := parsePostsQuery(c.QueryParams())
	if msg != "" {
		h.Set("Cache-Control", "no-cache")
		return c.JSON(http.StatusBadRequest, map[string]string{"error": msg})
	}
	admin := a.IsAdmin(c)
	if q.status == "" {
		q.status = "published"
		if admin {
			q.status = "all"
		}
	}
	if q.status == "all" && !admin {
		h.Set("Cache-Control", "no-cache")
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
	}

	ctx := c.Request().Context()
	var posts []Post
	var err error
	if q.status == "published" {
		posts, err = a.listPublished(ctx, q.contentType, q.featured)
	} else {
		posts, err = a.Store.ListPosts(ctx, q.contentType, PostQuery{Featured: q.featured})
	}
	if err != nil {
		errorID := uuid.NewString()
		c.Logger().Errorf("api posts [%s]: %v", errorID, err)
		h.Set("Cache-Control", "no-cache")
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error":   "Failed to fetch posts from database",
			"errorId": errorID,
		})
	}
	if posts == nil {
		posts = []Post{}
	}

	etag := postsETag(q, posts)
	h.Set("ETag", etag)
	if q.status == "published" {
		h.Set("Cache-Control", "public, max-age=300")
		h.Set("CDN-Cache-Control", "max-age=300")
	} else {
		h.Set("Cache-Control", "private, no-store")
	}
	if c.Request().Header.Get("If-None-Match") == etag {
		return c.NoContent(http.StatusNotModified)
	}
	if d := time.Since(start); d > slowRequestThreshold {
		c.Logger().Warnf("slow api posts request: %s took %s", c.Request().URL.RequestURI(), d)
	}
	return c.JSON(http.StatusOK, posts)
}

// ContactRequest is the contact form payload.
type ContactRequest struct {
	Name    string `json:"name" form:"name" validate:"required"`
	Email   string `json:"email" form:"email" validate:"required,email"`
	Company string `json:"company" form:"company"`
	Message string `json:"message" form:"message" validate:"required,max=5000"`
}

// handleContact serves POST /api/contact.
func (a *App) handleContact(c echo.Context) error {
	var req ContactRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.TrimSpace(req.Email)
	req.Company = strings.TrimSpace(req.Company)
	req.Message = strings.TrimSpace(req.Message)
	if req.Name == "" || req.Email == "" || req.Message == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Missing required fields"})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": firstIssue(validationIssues(err), "email", "message"),
		})
	}
	if !a.contactLimiter.Allow(c.RealIP()) {
		return c.JSON(http.StatusTooManyRequests, map[string]string{"error": "Too many messages. Try again later."})
	}

	msg, err := mailer.ContactEmail(a.Config.ContactFrom, a.Config.ContactTo, mailer.Contact{
		Name:    req.Name,
		Email:   req.Email,
		Company: req.Company,
		Message: req.Message,
	})
	if err != nil {
		return err
	}
	id, err := a.Mailer.Send(c.Request().Context(), msg)
	if err != nil {
		a.metrics.contactMessages.WithLabelValues("failed").Inc()
		c.Logger().Errorf("contact mail: %v", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to send email"})
	}
	a.metrics.contactMessages.WithLabelValues("sent").Inc()
	return c.JSON(http.StatusOK, map[string]any{"success": true, "id": id})
}
