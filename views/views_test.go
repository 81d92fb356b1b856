package views_test

import (
	"context"
	"strings"
	"testing"

	"github.com/a-h/templ"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/otherwisedev/otherwise"
	"github.com/otherwisedev/otherwise/views"
)

var site = otherwise.SiteConfig{
	Name:        "Otherwise",
	URL:         "https://otherwise.dev",
	Description: "Fractional product leadership.",
	Author:      "Otherwise",
}

func page(title string) otherwise.Page {
	return otherwise.Page{
		Site: site,
		Meta: otherwise.PageMeta{Title: title, Description: site.Description, URL: "https://otherwise.dev/x", OGType: "website"},
		CSRF: "tok<en>",
	}
}

func render(t *testing.T, c templ.Component) string {
	t.Helper()
	var b strings.Builder
	require.NoError(t, c.Render(context.Background(), &b))
	return b.String()
}

func TestPostsURL(t *testing.T) {
	assert.Equal(t, "/posts", views.PostsURL("", ""))
	assert.Equal(t, "/posts?type=blog", views.PostsURL(otherwise.ContentTypeBlog, ""))
	assert.Equal(t, "/posts?tag=ai+%26+ml&type=project", views.PostsURL(otherwise.ContentTypeProject, "ai & ml"))
}

func TestIssue(t *testing.T) {
	issues := map[string][]string{"slug": {"Taken.", "Too short."}}
	assert.Equal(t, "Taken. Too short.", views.Issue(issues, "slug"))
	assert.Equal(t, "", views.Issue(issues, "title"))
	assert.Equal(t, "", views.Issue(nil, "title"))
}

func TestHome(t *testing.T) {
	v := views.New(site)
	out := render(t, v.Home(otherwise.HomePage{
		Page: page("Otherwise"),
		Featured: []otherwise.Post{
			{Title: "Digital Twin", Slug: "digital-twin", ContentType: otherwise.ContentTypeProject, Description: "Live plant model"},
		},
	}))

	assert.Contains(t, out, "<title>Otherwise</title>")
	assert.Contains(t, out, "Fractional Product Leadership")
	assert.Contains(t, out, "Discovery Sprint")
	assert.Contains(t, out, `id="contact-form"`)
	assert.Contains(t, out, `href="/posts/project/digital-twin"`)
	assert.Contains(t, out, `application/ld+json`)
	assert.Contains(t, out, `"@type":"WebSite"`)
	assert.Contains(t, out, `content="tok&lt;en&gt;"`)
	assert.NotContains(t, out, "Sign out")

	out = render(t, v.Home(otherwise.HomePage{Page: page("Otherwise"), FeaturedError: "Unable to load projects at this time."}))
	assert.Contains(t, out, "Unable to load projects at this time.")
}

func TestPostsPage(t *testing.T) {
	v := views.New(site)
	out := render(t, v.Posts(otherwise.PostsPage{
		Page: page("Blog"),
		Type: otherwise.ContentTypeBlog,
		Tag:  "go",
		Tags: []string{"go", "web"},
		Posts: []otherwise.Post{
			{Title: "Hello <World>", Slug: "hello", ContentType: otherwise.ContentTypeBlog, Date: "2024-01-01", Tags: otherwise.TagList{"go"}},
		},
	}))

	assert.Contains(t, out, "<title>Blog | Otherwise</title>")
	assert.Contains(t, out, "Hello &lt;World&gt;")
	assert.Contains(t, out, `href="/posts/blog/hello"`)
	assert.Contains(t, out, `class="tag active" href="/posts?type=blog"`)
	assert.Contains(t, out, `href="/posts?tag=web&amp;type=blog"`)

	out = render(t, v.Posts(otherwise.PostsPage{Page: page("Posts"), Error: "Unable to load posts at this time."}))
	assert.Contains(t, out, "Unable to load posts at this time.")
}

func TestPostPage(t *testing.T) {
	v := views.New(site)
	publish := "2024-02-02"
	out := render(t, v.Post(otherwise.PostPage{
		Page: page("Hello"),
		Post: otherwise.Post{
			Title:       "Hello",
			Slug:        "hello",
			ContentType: otherwise.ContentTypeBlog,
			Date:        "2024-01-01",
			PublishDate: &publish,
			Content:     "## Section\n\n<script>alert(1)</script>\n\n| a | b |\n|---|---|\n| 1 | 2 |",
			Tags:        otherwise.TagList{"go"},
		},
		Related: []otherwise.Post{{Title: "Sibling", Slug: "sibling", ContentType: otherwise.ContentTypeBlog}},
	}))

	assert.Contains(t, out, `<h2 id="section">Section</h2>`)
	assert.Contains(t, out, "<table>")
	assert.NotContains(t, out, "<script>alert(1)</script>")
	assert.Contains(t, out, "2024-02-02")
	assert.Contains(t, out, `"@type":"BlogPosting"`)
	assert.Contains(t, out, `href="/posts/blog/sibling"`)
}

func TestAdminPages(t *testing.T) {
	v := views.New(site)
	signedIn := page("Content")
	signedIn.Session = &otherwise.Session{ID: 1}

	out := render(t, v.Content(otherwise.ContentPage{
		Page:    signedIn,
		Message: "Post saved.",
		Posts: []otherwise.Post{
			{ID: 7, Title: "Draft one", Slug: "draft-one", ContentType: otherwise.ContentTypeBlog, Status: otherwise.StatusDraft},
		},
	}))
	assert.Contains(t, out, "Sign out")
	assert.Contains(t, out, "Post saved.")
	assert.Contains(t, out, `action="/content/7/delete" data-confirm-delete`)
	assert.Contains(t, out, `value="published"`)

	out = render(t, v.Editor(otherwise.EditorPage{
		Page:   signedIn,
		IsNew:  true,
		Form:   otherwise.PostForm{Title: "New", ContentType: "project", Tags: "a, b"},
		Issues: map[string][]string{"slug": {"Slug must be lowercase letters and numbers separated by hyphens."}},
		Error:  "Please fix the highlighted fields.",
	}))
	assert.Contains(t, out, `action="/publish/new"`)
	assert.Contains(t, out, `<option value="project" selected>`)
	assert.Contains(t, out, `value="a, b"`)
	assert.Contains(t, out, "Slug must be lowercase")
	assert.Contains(t, out, `id="image-upload"`)

	out = render(t, v.Login(otherwise.LoginPage{Page: page("Sign in"), Email: "a@b.c", Next: "/content", Error: "Invalid email or password."}))
	assert.Contains(t, out, `value="a@b.c"`)
	assert.Contains(t, out, "Invalid email or password.")
}

func TestStaticPages(t *testing.T) {
	v := views.New(site)
	assert.Contains(t, render(t, v.Legal(otherwise.LegalPage{Page: page("Privacy Policy"), Kind: "privacy"})), "Privacy Policy")
	assert.Contains(t, render(t, v.Legal(otherwise.LegalPage{Page: page("Terms of Service"), Kind: "terms"})), "Terms of Service")
	assert.Contains(t, render(t, v.NotFound()), "Page not found")
	assert.Contains(t, render(t, v.ServerError()), "Something went wrong")
}
