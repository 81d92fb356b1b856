package otherwise

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/sessions"
	"github.com/labstack/echo-contrib/session"
	"github.com/labstack/echo/v4"
	"golang.org/x/crypto/bcrypt"
)

const (
	sessionName       = "otherwise_session"
	sessionTokenKey   = "token"
	sessionContextKey = "otherwise.session"
	minPasswordLength = 8
)

var (
	// ErrInvalidCredentials is returned for an unknown email or wrong password.
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrTooManyAttempts is returned when the login limiter trips.
	ErrTooManyAttempts = errors.New("too many login attempts")
)

var dummyPasswordHash = sync.OnceValue(func() []byte {
	h, _ := bcrypt.GenerateFromPassword([]byte("otherwise-dummy-password"), bcrypt.DefaultCost)
	return h
})

// HashPassword returns the bcrypt hash of password.
func HashPassword(password string) (string, error) {
	if len(password) < minPasswordLength {
		return "", fmt.Errorf("password must be at least %d characters", minPasswordLength)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func newSessionToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func hashSessionToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func (a *App) newSessionStore() *sessions.CookieStore {
	hashKey := sha256.Sum256([]byte("otherwise-session-auth:" + a.Config.AuthSecret))
	blockKey := sha256.Sum256([]byte("otherwise-session-enc:" + a.Config.AuthSecret))
	store := sessions.NewCookieStore(hashKey[:], blockKey[:])
	store.Options = &sessions.Options{
		Path:     "/",
		HttpOnly: true,
		MaxAge:   int(a.Config.SessionTTL / time.Second),
		SameSite: http.SameSiteLaxMode,
		Secure:   a.Config.CookieSecure,
	}
	return store
}

// GetSession returns the signed-in session for the request, or nil when the
// request carries no valid session. The lookup is cached per request.
func (a *App) GetSession(c echo.Context) (*Session, error) {
	if v := c.Get(sessionContextKey); v != nil {
		s, _ := v.(*Session)
		return s, nil
	}
	var found *Session
	if cookie, err := session.Get(sessionName, c); err == nil {
		if token, _ := cookie.Values[sessionTokenKey].(string); token != "" {
			s, err := a.Store.GetSessionByTokenHash(c.Request().Context(), hashSessionToken(token), time.Now())
			switch {
			case err == nil:
				found = &s
			case !errors.Is(err, ErrNotFound):
				return nil, err
			}
		}
	}
	c.Set(sessionContextKey, found)
	return found, nil
}

// currentSession is GetSession for callers that treat lookup failures as
// signed out.
func (a *App) currentSession(c echo.Context) *Session {
	s, err := a.GetSession(c)
	if err != nil {
		c.Logger().Errorf("session lookup: %v", err)
		return nil
	}
	return s
}

// IsAdmin reports whether the request has a signed-in session. Every account
// is an administrator.
func (a *App) IsAdmin(c echo.Context) bool {
	return a.currentSession(c) != nil
}

// Authenticate checks email and password and returns the user.
func (a *App) Authenticate(ctx context.Context, email, password string) (User, error) {
	u, err := a.Store.GetUserByEmail(ctx, email)
	if errors.Is(err, ErrNotFound) {
		// Unknown emails cost one bcrypt comparison, same as a wrong password.
		_ = bcrypt.CompareHashAndPassword(dummyPasswordHash(), []byte(password))
		return User{}, ErrInvalidCredentials
	}
	if err != nil {
		return User{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return User{}, ErrInvalidCredentials
	}
	return u, nil
}

// signIn authenticates and starts a session, writing the session cookie.
func (a *App) signIn(c echo.Context, email, password string) (*Session, error) {
	ip := c.RealIP()
	if !a.loginLimiter.Check(ip) {
		a.metrics.logins.WithLabelValues("limited").Inc()
		return nil, ErrTooManyAttempts
	}
	ctx := c.Request().Context()
	u, err := a.Authenticate(ctx, email, password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			a.loginLimiter.Record(ip)
			a.metrics.logins.WithLabelValues("failed").Inc()
		}
		return nil, err
	}
	a.loginLimiter.Reset(ip)

	token, err := newSessionToken()
	if err != nil {
		return nil, fmt.Errorf("generate session token: %w", err)
	}
	s := &Session{
		UserID:    u.ID,
		TokenHash: hashSessionToken(token),
		ExpiresAt: time.Now().UTC().Add(a.Config.SessionTTL),
		IPAddress: ip,
		UserAgent: c.Request().UserAgent(),
	}
	if err := a.Store.CreateSession(ctx, s); err != nil {
		return nil, err
	}
	s.User = u

	cookie, _ := session.Get(sessionName, c)
	cookie.Values[sessionTokenKey] = token
	if err := cookie.Save(c.Request(), c.Response()); err != nil {
		return nil, fmt.Errorf("save session cookie: %w", err)
	}
	c.Set(sessionContextKey, s)
	a.metrics.logins.WithLabelValues("ok").Inc()
	return s, nil
}

// signOut deletes the session row and expires the cookie.
func (a *App) signOut(c echo.Context) error {
	cookie, _ := session.Get(sessionName, c)
	if token, _ := cookie.Values[sessionTokenKey].(string); token != "" {
		if err := a.Store.DeleteSessionByTokenHash(c.Request().Context(), hashSessionToken(token)); err != nil {
			return err
		}
	}
	delete(cookie.Values, sessionTokenKey)
	cookie.Options.MaxAge = -1
	c.Set(sessionContextKey, (*Session)(nil))
	return cookie.Save(c.Request(), c.Response())
}

// requireAdmin guards admin pages: anonymous requests are sent to /login.
func (a *App) requireAdmin(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if !a.IsAdmin(c) {
			return c.Redirect(http.StatusSeeOther, "/login?next="+url.QueryEscape(c.Request().URL.RequestURI()))
		}
		return next(c)
	}
}

type credentials struct {
	Email    string `json:"email" form:"email"`
	Password string `json:"password" form:"password"`
}

type sessionResponse struct {
	User    User    `json:"user"`
	Session Session `json:"session"`
}

// handleAuthAPI serves /api/auth/* for the admin UI's JSON clients.
func (a *App) handleAuthAPI(c echo.Context) error {
	action := strings.Trim(c.Param("*"), "/")
	method := c.Request().Method
	switch {
	case action == "sign-in/email" && method == http.MethodPost:
		var creds credentials
		if err := c.Bind(&creds); err != nil || creds.Email == "" || creds.Password == "" {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "Email and password are required"})
		}
		s, err := a.signIn(c, creds.Email, creds.Password)
		switch {
		case errors.Is(err, ErrTooManyAttempts):
			return c.JSON(http.StatusTooManyRequests, map[string]string{"error": "Too many login attempts. Try again later."})
		case errors.Is(err, ErrInvalidCredentials):
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Invalid email or password"})
		case err != nil:
			return err
		}
		return c.JSON(http.StatusOK, sessionResponse{User: s.User, Session: *s})
	case action == "sign-out" && method == http.MethodPost:
		if err := a.signOut(c); err != nil {
			return err
		}
		return c.JSON(http.StatusOK, map[string]bool{"success": true})
	case action == "get-session" && method == http.MethodGet:
		s, err := a.GetSession(c)
		if err != nil {
			return err
		}
		if s == nil {
			return c.JSON(http.StatusOK, nil)
		}
		return c.JSON(http.StatusOK, sessionResponse{User: s.User, Session: *s})
	}
	return echo.ErrNotFound
}

func safeNext(next string) string {
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		return "/content"
	}
	return next
}

func (a *App) handleLoginPage(c echo.Context) error {
	if a.IsAdmin(c) {
		return c.Redirect(http.StatusSeeOther, safeNext(c.QueryParam("next")))
	}
	return Render(c, a.Views.Login(LoginPage{
		Page: a.page(c, "Sign in"),
		Next: c.QueryParam("next"),
	}))
}

func (a *App) handleLogin(c echo.Context) error {
	email := strings.TrimSpace(c.FormValue("email"))
	next := c.FormValue("next")
	_, err := a.signIn(c, email, c.FormValue("password"))
	if err == nil {
		return c.Redirect(http.StatusSeeOther, safeNext(next))
	}
	data := LoginPage{Page: a.page(c, "Sign in"), Email: email, Next: next}
	switch {
	case errors.Is(err, ErrTooManyAttempts):
		data.Error = "Too many login attempts. Try again later."
		return RenderStatus(c, http.StatusTooManyRequests, a.Views.Login(data))
	case errors.Is(err, ErrInvalidCredentials):
		data.Error = "Invalid email or password."
		return RenderStatus(c, http.StatusUnauthorized, a.Views.Login(data))
	}
	return err
}

func (a *App) handleLogout(c echo.Context) error {
	if err := a.signOut(c); err != nil {
		return err
	}
	return c.Redirect(http.StatusSeeOther, "/")
}
