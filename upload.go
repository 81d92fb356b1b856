package otherwise

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"gocloud.dev/blob"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

const jpegQuality = 85

var allowedImageExts = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".webp": true,
}

type uploadResponse struct {
	Success  bool   `json:"success"`
	ImageURL string `json:"imageUrl,omitempty"`
	Error    string `json:"error,omitempty"`
}

func uploadError(c echo.Context, code int, msg string) error {
	return c.JSON(code, uploadResponse{Error: msg})
}

// processImage downscales JPEG and PNG images wider than maxWidth and
// re-encodes them as JPEG. Other images, and images already narrow enough,
// are returned unchanged with ok=false.
func processImage(data []byte, maxWidth int) ([]byte, bool, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, false, fmt.Errorf("decode image: %w", err)
	}
	if (format != "jpeg" && format != "png") || cfg.Width <= maxWidth {
		return data, false, nil
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, false, fmt.Errorf("decode image: %w", err)
	}

	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	newH := h * maxWidth / w
	if newH < 1 {
		newH = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, maxWidth, newH))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, false, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), true, nil
}

// handleImageUpload stores an uploaded image in the media bucket and returns
// its proxy URL for use in markdown.
func (a *App) handleImageUpload(c echo.Context) error {
	if !a.IsAdmin(c) {
		return uploadError(c, http.StatusUnauthorized, "Unauthorized")
	}
	if a.Bucket == nil {
		c.Logger().Error("media bucket is not configured")
		return uploadError(c, http.StatusInternalServerError, "Server configuration error")
	}

	file, err := c.FormFile("file")
	if err != nil {
		return uploadError(c, http.StatusBadRequest, "No file provided")
	}
	if file.Size > a.Config.MaxUploadBytes {
		a.metrics.uploads.WithLabelValues("rejected").Inc()
		return uploadError(c, http.StatusBadRequest, fmt.Sprintf("File too large (max %d MB)", a.Config.MaxUploadBytes>>20))
	}
	declared := file.Header.Get(echo.HeaderContentType)
	if declared != "" && !strings.HasPrefix(declared, "image/") {
		a.metrics.uploads.WithLabelValues("rejected").Inc()
		return uploadError(c, http.StatusBadRequest, "File must be an image")
	}
	ext := strings.ToLower(filepath.Ext(file.Filename))
	if !allowedImageExts[ext] {
		a.metrics.uploads.WithLabelValues("rejected").Inc()
		return uploadError(c, http.StatusBadRequest, "Unsupported image type")
	}

	src, err := file.Open()
	if err != nil {
		return err
	}
	defer src.Close()
	data, err := io.ReadAll(io.LimitReader(src, a.Config.MaxUploadBytes+1))
	if err != nil {
		return err
	}
	if int64(len(data)) > a.Config.MaxUploadBytes {
		a.metrics.uploads.WithLabelValues("rejected").Inc()
		return uploadError(c, http.StatusBadRequest, fmt.Sprintf("File too large (max %d MB)", a.Config.MaxUploadBytes>>20))
	}
	contentType := http.DetectContentType(data)
	if !strings.HasPrefix(contentType, "image/") {
		a.metrics.uploads.WithLabelValues("rejected").Inc()
		return uploadError(c, http.StatusBadRequest, "File must be an image")
	}

	resized, ok, err := processImage(data, a.Config.MaxImageWidth)
	if err != nil {
		a.metrics.uploads.WithLabelValues("rejected").Inc()
		c.Logger().Warnf("upload %s: %v", file.Filename, err)
		return uploadError(c, http.StatusBadRequest, "Unsupported image type")
	}
	if ok {
		data, contentType, ext = resized, "image/jpeg", ".jpg"
	}

	key := uuid.NewString() + ext
	err = a.Bucket.WriteAll(c.Request().Context(), key, data, &blob.WriterOptions{ContentType: contentType})
	if err != nil {
		a.metrics.uploads.WithLabelValues("failed").Inc()
		c.Logger().Errorf("upload %s: %v", key, err)
		return uploadError(c, http.StatusInternalServerError, "Failed to upload image")
	}
	a.metrics.uploads.WithLabelValues("ok").Inc()
	return c.JSON(http.StatusOK, uploadResponse{Success: true, ImageURL: mediaPathPrefix + key})
}
