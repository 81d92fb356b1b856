// Package markdown renders GitHub-flavored Markdown to HTML as a templ
// component and finds the media objects a document references.
package markdown

import (
	"bytes"
	"context"
	"io"
	"net/url"
	"strings"

	"github.com/a-h/templ"
	"github.com/yuin/goldmark"
	highlighting "github.com/yuin/goldmark-highlighting/v2"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
)

// MediaPrefix is the path under which uploaded media is served.
const MediaPrefix = "/api/media/"

// Raw HTML in documents is not rendered; goldmark omits it unless
// html.WithUnsafe is set.
var md = goldmark.New(
	goldmark.WithExtensions(
		extension.GFM,
		highlighting.NewHighlighting(
			highlighting.WithStyle("github"),
		),
	),
	goldmark.WithParserOptions(
		parser.WithAutoHeadingID(),
	),
)

// Markdown returns a templ.Component that renders content as HTML.
func Markdown(content string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		var buf bytes.Buffer
		if err := RenderMarkdown(&buf, content); err != nil {
			return err
		}
		_, err := w.Write(buf.Bytes())
		return err
	})
}

// RenderMarkdown writes the HTML representation of content to buf.
func RenderMarkdown(buf *bytes.Buffer, content string) error {
	return md.Convert([]byte(content), buf)
}

// HTML renders content and returns the HTML as a string.
func HTML(content string) (string, error) {
	var buf bytes.Buffer
	if err := RenderMarkdown(&buf, content); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// MediaKey extracts the object key from a /api/media/<key> path.
func MediaKey(path string) (string, bool) {
	path = strings.TrimSpace(path)
	if !strings.HasPrefix(path, MediaPrefix) {
		return "", false
	}
	key := strings.TrimPrefix(path, MediaPrefix)
	if i := strings.IndexAny(key, "?#"); i >= 0 {
		key = key[:i]
	}
	if unescaped, err := url.PathUnescape(key); err == nil {
		key = unescaped
	}
	if key == "" {
		return "", false
	}
	return key, true
}

// MediaKeys returns the distinct object keys of images in content that point
// at the media proxy, in document order.
func MediaKeys(content string) []string {
	src := []byte(content)
	doc := md.Parser().Parse(text.NewReader(src))
	seen := make(map[string]struct{})
	keys := []string{}
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		img, ok := n.(*ast.Image)
		if !ok {
			return ast.WalkContinue, nil
		}
		key, ok := MediaKey(string(img.Destination))
		if !ok {
			return ast.WalkContinue, nil
		}
		if _, dup := seen[key]; !dup {
			seen[key] = struct{}{}
			keys = append(keys, key)
		}
		return ast.WalkContinue, nil
	})
	return keys
}
