package otherwise

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"gocloud.dev/blob"
	"gocloud.dev/blob/fileblob"
	"gocloud.dev/gcerrors"

	_ "gocloud.dev/blob/memblob"
	_ "gocloud.dev/blob/s3blob"
)

const (
	publicMediaCache = "public, max-age=3600, stale-while-revalidate=604800"
	adminMediaCache  = "private, no-store, must-revalidate"
)

var (
	errInvalidObjectKey = errors.New("Invalid object key")
	errMissingObjectKey = errors.New("Missing object key")
)

// OpenBucket opens the media bucket. A location containing "://" is treated
// as a gocloud blob URL (s3://, mem://, file://); anything else is a local
// directory, created if needed.
func OpenBucket(ctx context.Context, location string) (*blob.Bucket, error) {
	if strings.Contains(location, "://") {
		b, err := blob.OpenBucket(ctx, location)
		if err != nil {
			return nil, fmt.Errorf("open bucket %s: %w", location, err)
		}
		return b, nil
	}
	if err := os.MkdirAll(location, 0o755); err != nil {
		return nil, err
	}
	b, err := fileblob.OpenBucket(location, nil)
	if err != nil {
		return nil, fmt.Errorf("open media dir %s: %w", location, err)
	}
	return b, nil
}

// objectKeyFromPath decodes each segment of the wildcard path and rejects
// traversal attempts.
func objectKeyFromPath(raw string) (string, error) {
	segments := strings.Split(raw, "/")
	decoded := make([]string, 0, len(segments))
	for _, seg := range segments {
		d, err := url.PathUnescape(seg)
		if err != nil {
			return "", errInvalidObjectKey
		}
		if strings.Contains(d, "..") || strings.Contains(d, `\`) {
			return "", errInvalidObjectKey
		}
		decoded = append(decoded, d)
	}
	key := strings.Join(decoded, "/")
	if strings.Trim(key, "/") == "" {
		return "", errMissingObjectKey
	}
	return key, nil
}

// handleMedia streams an object from the media bucket. Signed-in users can
// read anything; anonymous readers only objects referenced by published posts.
func (a *App) handleMedia(c echo.Context) error {
	// The wildcard param is already unescaped; decode the escaped path once.
	key, err := objectKeyFromPath(strings.TrimPrefix(c.Request().URL.EscapedPath(), mediaPathPrefix))
	if err != nil {
		return c.String(http.StatusBadRequest, err.Error())
	}
	if a.Bucket == nil {
		c.Logger().Error("media bucket is not configured")
		return c.String(http.StatusInternalServerError, "Server configuration error")
	}

	ctx := c.Request().Context()
	admin := a.IsAdmin(c)
	if !admin {
		public, err := a.Store.IsPublicObject(ctx, key)
		if err != nil {
			c.Logger().Errorf("media access check for %q: %v", key, err)
		}
		if !public {
			a.metrics.mediaRequests.WithLabelValues("denied").Inc()
			return c.String(http.StatusForbidden, "Forbidden")
		}
	}
	policy := publicMediaCache
	access := "public"
	if admin {
		policy = adminMediaCache
		access = "admin"
	}
	a.metrics.mediaRequests.WithLabelValues(access).Inc()

	attrs, err := a.Bucket.Attributes(ctx, key)
	if err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound {
			return c.String(http.StatusNotFound, "Object Not Found")
		}
		c.Logger().Errorf("media attributes for %q: %v", key, err)
		return c.String(http.StatusInternalServerError, "Error fetching file")
	}

	h := c.Response().Header()
	h.Set("Cache-Control", policy)
	if attrs.ETag != "" {
		h.Set("ETag", attrs.ETag)
		if inm := c.Request().Header.Get("If-None-Match"); inm != "" && inm == attrs.ETag {
			return c.NoContent(http.StatusNotModified)
		}
	}
	contentType := attrs.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	if c.Request().Method == http.MethodHead {
		h.Set(echo.HeaderContentType, contentType)
		h.Set(echo.HeaderContentLength, strconv.FormatInt(attrs.Size, 10))
		return c.NoContent(http.StatusOK)
	}

	r, err := a.Bucket.NewReader(ctx, key, nil)
	if err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound {
			return c.String(http.StatusNotFound, "Object Not Found")
		}
		c.Logger().Errorf("media read for %q: %v", key, err)
		return c.String(http.StatusInternalServerError, "Error fetching file")
	}
	defer r.Close()
	h.Set(echo.HeaderContentLength, strconv.FormatInt(attrs.Size, 10))
	return c.Stream(http.StatusOK, contentType, r)
}
