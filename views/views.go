// Package views holds the site's page templates. Pages are html/template
// files embedded in the binary and exposed as templ components through
// otherwise.ViewFuncs.
package views

import (
	"context"
	"embed"
	"html/template"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/a-h/templ"

	"github.com/otherwisedev/otherwise"
	"github.com/otherwisedev/otherwise/markdown"
)

//go:embed templates/*.html
var templateFS embed.FS

var funcs = template.FuncMap{
	"markdown":   renderMarkdown,
	"joinTags":   otherwise.JoinTags,
	"siteJSONLD": func(cfg otherwise.SiteConfig) template.JS { return template.JS(otherwise.WebsiteJsonLD(cfg)) },
	"postJSONLD": func(p otherwise.Post, cfg otherwise.SiteConfig) template.JS {
		return template.JS(otherwise.PostingJsonLD(p, cfg))
	},
	"postsURL": PostsURL,
	"issue":    Issue,
	"year":     func() int { return time.Now().Year() },
}

// PostsURL builds a /posts link filtered by type and tag.
func PostsURL(contentType otherwise.ContentType, tag string) string {
	v := url.Values{}
	if contentType != "" {
		v.Set("type", string(contentType))
	}
	if tag != "" {
		v.Set("tag", tag)
	}
	if len(v) == 0 {
		return "/posts"
	}
	return "/posts?" + v.Encode()
}

// Issue joins the validation messages for one form field.
func Issue(issues map[string][]string, field string) string {
	return strings.Join(issues[field], " ")
}

func renderMarkdown(content string) template.HTML {
	out, err := markdown.HTML(content)
	if err != nil {
		return template.HTML("<p>" + template.HTMLEscapeString(content) + "</p>")
	}
	return template.HTML(out)
}

func parsePage(name string) *template.Template {
	return template.Must(template.New(name).Funcs(funcs).ParseFS(templateFS,
		"templates/layout.html",
		"templates/"+name+".html",
	))
}

func component(t *template.Template, data any) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		return t.ExecuteTemplate(w, "layout", data)
	})
}

// New returns the site's views. cfg is used by pages rendered without
// request data (not found, server error).
func New(cfg otherwise.SiteConfig) otherwise.ViewFuncs {
	var (
		home     = parsePage("home")
		posts    = parsePage("posts")
		post     = parsePage("post")
		login    = parsePage("login")
		content  = parsePage("content")
		editor   = parsePage("editor")
		legal    = parsePage("legal")
		notFound = parsePage("notfound")
		errPage  = parsePage("error")
	)
	bare := func(title string) otherwise.Page {
		return otherwise.Page{
			Site: cfg,
			Meta: otherwise.PageMeta{Title: title, Description: cfg.Description, OGType: "website"},
		}
	}
	return otherwise.ViewFuncs{
		Home:        func(d otherwise.HomePage) templ.Component { return component(home, d) },
		Posts:       func(d otherwise.PostsPage) templ.Component { return component(posts, d) },
		Post:        func(d otherwise.PostPage) templ.Component { return component(post, d) },
		Login:       func(d otherwise.LoginPage) templ.Component { return component(login, d) },
		Content:     func(d otherwise.ContentPage) templ.Component { return component(content, d) },
		Editor:      func(d otherwise.EditorPage) templ.Component { return component(editor, d) },
		Legal:       func(d otherwise.LegalPage) templ.Component { return component(legal, d) },
		NotFound:    func() templ.Component { return component(notFound, bare("Page not found")) },
		ServerError: func() templ.Component { return component(errPage, bare("Something went wrong")) },
	}
}
