package otherwise

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/a-h/templ"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
	"gocloud.dev/blob/memblob"
	gormlogger "gorm.io/gorm/logger"

	"github.com/otherwisedev/otherwise/mailer"
)

const (
	testCSRFToken = "test-csrf-token"
	testEmail     = "admin@example.com"
	testPassword  = "correct horse battery"
)

func textComponent(s string) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		_, err := io.WriteString(w, s)
		return err
	})
}

func titles(posts []Post) string {
	names := make([]string, len(posts))
	for i, p := range posts {
		names[i] = p.Title
	}
	return strings.Join(names, ",")
}

// stubViews renders a one-line summary of the view data so handler tests can
// assert on what the handler prepared.
func stubViews() ViewFuncs {
	return ViewFuncs{
		Home: func(d HomePage) templ.Component {
			return textComponent(fmt.Sprintf("home featured=[%s] error=%q", titles(d.Featured), d.FeaturedError))
		},
		Posts: func(d PostsPage) templ.Component {
			return textComponent(fmt.Sprintf("posts type=%s tag=%s posts=[%s] tags=[%s] error=%q",
				d.Type, d.Tag, titles(d.Posts), strings.Join(d.Tags, ","), d.Error))
		},
		Post: func(d PostPage) templ.Component {
			return textComponent(fmt.Sprintf("post %s related=[%s] og=%s", d.Post.Title, titles(d.Related), d.Meta.OGType))
		},
		Login: func(d LoginPage) templ.Component {
			return textComponent(fmt.Sprintf("login email=%s next=%s error=%q", d.Email, d.Next, d.Error))
		},
		Content: func(d ContentPage) templ.Component {
			return textComponent(fmt.Sprintf("content posts=[%s] msg=%q", titles(d.Posts), d.Message))
		},
		Editor: func(d EditorPage) templ.Component {
			return textComponent(fmt.Sprintf("editor new=%t title=%s issues=%v error=%q", d.IsNew, d.Form.Title, d.Issues, d.Error))
		},
		Legal: func(d LegalPage) templ.Component {
			return textComponent("legal " + d.Kind)
		},
		NotFound:    func() templ.Component { return textComponent("not found") },
		ServerError: func() templ.Component { return textComponent("server error") },
	}
}

// recordingSender keeps every message instead of sending it.
type recordingSender struct {
	mu   sync.Mutex
	sent []mailer.Message
	err  error
}

func (r *recordingSender) Send(_ context.Context, m mailer.Message) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return "", r.err
	}
	r.sent = append(r.sent, m)
	return fmt.Sprintf("msg-%d", len(r.sent)), nil
}

func (r *recordingSender) messages() []mailer.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]mailer.Message(nil), r.sent...)
}

func testConfig() SiteConfig {
	return SiteConfig{
		Name:        "Otherwise",
		URL:         "https://otherwise.test",
		Description: "Fractional product leadership.",
		AuthSecret:  "test-secret-that-is-long-enough-for-prod",
		ContactTo:   []string{"hello@otherwise.test"},
		LogLevel:    "off",
	}
}

// newTestApp builds an initialized App over a temp-dir database, an
// in-memory bucket and a recording mailer.
func newTestApp(t *testing.T, opts ...Option) *App {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "test.db"), WithQueryLogLevel(gormlogger.Silent))
	require.NoError(t, err)
	bucket := memblob.OpenBucket(nil)

	base := []Option{
		WithStore(store),
		WithBucket(bucket),
		WithCache(NewMemoryCache(time.Minute)),
		WithMailer(&recordingSender{}),
		WithRetryDelay(time.Millisecond),
	}
	a := New(testConfig(), stubViews(), append(base, opts...)...)
	require.NoError(t, a.Init(context.Background()))
	t.Cleanup(func() {
		a.Close()
		bucket.Close()
		store.Close()
	})
	return a
}

func serve(a *App, req *http.Request, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	for _, c := range cookies {
		if c != nil {
			req.AddCookie(c)
		}
	}
	rec := httptest.NewRecorder()
	a.Echo.ServeHTTP(rec, req)
	return rec
}

// formRequest builds a form POST carrying a matching CSRF cookie and field.
func formRequest(target string, form url.Values) *http.Request {
	if form == nil {
		form = url.Values{}
	}
	form.Set("_csrf", testCSRFToken)
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	req.AddCookie(&http.Cookie{Name: "_csrf", Value: testCSRFToken})
	return req
}

func jsonRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return req
}

func responseCookie(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// signIn provisions the test admin and returns its session cookie.
func signIn(t *testing.T, a *App) *http.Cookie {
	t.Helper()
	hash, err := HashPassword(testPassword)
	require.NoError(t, err)
	_, err = a.Store.CreateUser(context.Background(), testEmail, "Admin", hash)
	require.NoError(t, err)

	rec := serve(a, jsonRequest(http.MethodPost, "/api/auth/sign-in/email",
		fmt.Sprintf(`{"email":%q,"password":%q}`, testEmail, testPassword)))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	cookie := responseCookie(rec, sessionName)
	require.NotNil(t, cookie, "session cookie not set")
	return cookie
}

// mustCreatePost creates a post through the mutation service.
func mustCreatePost(t *testing.T, a *App, in PostInput) Post {
	t.Helper()
	res := a.CreatePost(context.Background(), in)
	require.True(t, res.Success, "create %q: %s %v", in.Title, res.Error, res.Issues)
	post, err := a.Store.GetPostByID(context.Background(), res.ID)
	require.NoError(t, err)
	return post
}

func publishedInput(title string, ct ContentType, publishDate string, tags ...string) PostInput {
	return PostInput{
		Title:       title,
		ContentType: string(ct),
		Content:     "Body of " + title,
		Date:        "2024-01-01",
		Tags:        tags,
		Status:      string(StatusPublished),
		PublishDate: publishDate,
	}
}
