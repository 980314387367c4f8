package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"authgate/internal/auth"
	"authgate/internal/oauth"
	"authgate/internal/password"
	"authgate/internal/ratelimit"
	"authgate/internal/seed"
	"authgate/internal/session"
	"authgate/internal/token"
	"authgate/internal/twofactor"
	"authgate/internal/user"
)

type RouterSuite struct {
	suite.Suite
	server *httptest.Server
	users  *user.InMemoryStore
}

func (s *RouterSuite) SetupTest() {
	logger := slog.New(slog.DiscardHandler)

	s.users = user.NewInMemoryStore()
	sessionStore := session.NewInMemoryStore()
	clients := NewTestClientStore(s.T())
	codes := oauth.NewInMemoryAuthCodeStore()
	accessTokens := oauth.NewInMemoryAccessTokenStore()
	refreshTokens := oauth.NewInMemoryRefreshTokenStore()

	codec, err := token.NewCodec("router-test-secret", "http://authgate.test")
	s.Require().NoError(err)

	policy := password.NewPolicy(s.users, password.NewInMemoryHistoryStore(), password.NewCorpusChecker(), logger, nil)
	twoFactor := twofactor.NewService(s.users, "authgate", false, logger, nil)
	sessions := session.NewManager(sessionStore, logger, nil)
	engine := oauth.NewEngine(clients, codes, accessTokens, refreshTokens, codec, logger, nil)
	authService := auth.NewService(s.users, policy, twoFactor, sessions, &auth.LogSender{Logger: logger}, logger, nil)

	handler := NewHandler(authService, s.users, sessions, policy, twoFactor, engine, logger, false)
	limiter := ratelimit.NewLimiter(ratelimit.NewInMemoryCounterStore(), false, logger, nil)

	s.server = httptest.NewServer(NewRouter(handler, sessions, limiter))
	s.T().Cleanup(s.server.Close)
}

// NewTestClientStore seeds the development client into a fresh store.
func NewTestClientStore(t *testing.T) *oauth.InMemoryClientStore {
	t.Helper()
	clients := oauth.NewInMemoryClientStore()
	if err := seed.DevClient(context.Background(), clients, slog.New(slog.DiscardHandler)); err != nil {
		t.Fatalf("seed client: %v", err)
	}
	return clients
}

func TestRouterSuite(t *testing.T) {
	suite.Run(t, new(RouterSuite))
}

const testPassword = "S3cure&Pass"

func (s *RouterSuite) postJSON(path string, body map[string]any, cookie *http.Cookie) *http.Response {
	payload, err := json.Marshal(body)
	s.Require().NoError(err)
	req, err := http.NewRequest(http.MethodPost, s.server.URL+path, strings.NewReader(string(payload)))
	s.Require().NoError(err)
	req.Header.Set("Content-Type", "application/json")
	if cookie != nil {
		req.AddCookie(cookie)
	}
	resp, err := s.server.Client().Do(req)
	s.Require().NoError(err)
	return resp
}

func (s *RouterSuite) postForm(path string, form url.Values) *http.Response {
	resp, err := s.server.Client().PostForm(s.server.URL+path, form)
	s.Require().NoError(err)
	return resp
}

func (s *RouterSuite) decode(resp *http.Response) map[string]any {
	defer resp.Body.Close()
	var body map[string]any
	s.Require().NoError(json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func (s *RouterSuite) sessionCookie(resp *http.Response) *http.Cookie {
	for _, cookie := range resp.Cookies() {
		if cookie.Name == "session_id" {
			return cookie
		}
	}
	return nil
}

// registerAndLogin creates an account and returns its session cookie.
func (s *RouterSuite) registerAndLogin(email string) *http.Cookie {
	resp := s.postJSON("/auth/register", map[string]any{
		"email":                 email,
		"password":              testPassword,
		"password_confirmation": testPassword,
	}, nil)
	s.Require().Equal(http.StatusCreated, resp.StatusCode)
	cookie := s.sessionCookie(resp)
	s.Require().NotNil(cookie)
	resp.Body.Close()
	return cookie
}

func (s *RouterSuite) TestSecurityHeaders() {
	resp, err := s.server.Client().Get(s.server.URL + "/healthz")
	s.Require().NoError(err)
	defer resp.Body.Close()

	s.Equal("nosniff", resp.Header.Get("X-Content-Type-Options"))
	s.Equal("DENY", resp.Header.Get("X-Frame-Options"))
	s.NotEmpty(resp.Header.Get("Strict-Transport-Security"))
	s.NotEmpty(resp.Header.Get("Content-Security-Policy"))
}

func (s *RouterSuite) TestRegisterAndLogin() {
	s.Run("register sets a session cookie", func() {
		cookie := s.registerAndLogin("reg@example.com")
		s.Equal(int(24*time.Hour.Seconds()), cookie.MaxAge)
	})

	s.Run("login with remember extends the cookie", func() {
		s.registerAndLogin("remember@example.com")
		resp := s.postJSON("/auth/login", map[string]any{
			"email":       "remember@example.com",
			"password":    testPassword,
			"remember_me": true,
		}, nil)
		s.Require().Equal(http.StatusOK, resp.StatusCode)
		cookie := s.sessionCookie(resp)
		s.Require().NotNil(cookie)
		s.Equal(int(30*24*time.Hour.Seconds()), cookie.MaxAge)

		body := s.decode(resp)
		s.Equal("Logged in successfully", body["message"])
		s.NotEmpty(body["session_id"])
	})

	s.Run("bad credentials", func() {
		resp := s.postJSON("/auth/login", map[string]any{
			"email":    "remember@example.com",
			"password": "Wr0ng&Pass!",
		}, nil)
		s.Equal(http.StatusUnauthorized, resp.StatusCode)
		s.Equal("Invalid credentials", s.decode(resp)["message"])
	})
}

func (s *RouterSuite) TestSessionRoutes() {
	cookie := s.registerAndLogin("sessions@example.com")

	s.Run("profile includes password status", func() {
		req, _ := http.NewRequest(http.MethodGet, s.server.URL+"/users/me", nil)
		req.AddCookie(cookie)
		resp, err := s.server.Client().Do(req)
		s.Require().NoError(err)
		s.Require().Equal(http.StatusOK, resp.StatusCode)

		body := s.decode(resp)
		status := body["password_status"].(map[string]any)
		s.Equal("valid", status["status"])
	})

	s.Run("listing flags the current device", func() {
		req, _ := http.NewRequest(http.MethodGet, s.server.URL+"/users/me/sessions", nil)
		req.AddCookie(cookie)
		resp, err := s.server.Client().Do(req)
		s.Require().NoError(err)

		body := s.decode(resp)
		sessions := body["sessions"].([]any)
		s.Require().Len(sessions, 1)
		s.True(sessions[0].(map[string]any)["is_current_device"].(bool))
	})

	s.Run("terminating own session is rejected", func() {
		req, _ := http.NewRequest(http.MethodDelete, s.server.URL+"/users/me/sessions/"+cookie.Value, nil)
		req.AddCookie(cookie)
		resp, err := s.server.Client().Do(req)
		s.Require().NoError(err)
		s.Equal(http.StatusBadRequest, resp.StatusCode)
		s.Equal("Cannot terminate current session", s.decode(resp)["message"])
	})

	s.Run("logout clears the cookie and invalidates the session", func() {
		resp := s.postJSON("/auth/logout", nil, cookie)
		s.Require().Equal(http.StatusOK, resp.StatusCode)
		cleared := s.sessionCookie(resp)
		s.Require().NotNil(cleared)
		s.Less(cleared.MaxAge, 0)
		resp.Body.Close()

		req, _ := http.NewRequest(http.MethodGet, s.server.URL+"/users/me", nil)
		req.AddCookie(cookie)
		again, err := s.server.Client().Do(req)
		s.Require().NoError(err)
		s.Equal(http.StatusUnauthorized, again.StatusCode)
		again.Body.Close()
	})
}

func (s *RouterSuite) TestOAuthTokenEndpoint() {
	s.Run("client_credentials with a disallowed scope issues nothing", func() {
		resp := s.postForm("/oauth/token", url.Values{
			"grant_type":    {"client_credentials"},
			"client_id":     {"test-client"},
			"client_secret": {"client-secret"},
			"scope":         {"profile"},
		})
		s.Equal(http.StatusBadRequest, resp.StatusCode)
		body := s.decode(resp)
		s.Equal("invalid_scope", body["error"])
		s.Nil(body["access_token"])
	})

	s.Run("client_credentials happy path", func() {
		resp := s.postForm("/oauth/token", url.Values{
			"grant_type":    {"client_credentials"},
			"client_id":     {"test-client"},
			"client_secret": {"client-secret"},
			"scope":         {"api.read"},
		})
		s.Require().Equal(http.StatusOK, resp.StatusCode)
		body := s.decode(resp)
		s.Equal("Bearer", body["token_type"])
		s.Equal(float64(3600), body["expires_in"])
		s.NotEmpty(body["access_token"])
		s.Nil(body["refresh_token"])
	})

	s.Run("wrong client secret", func() {
		resp := s.postForm("/oauth/token", url.Values{
			"grant_type":    {"client_credentials"},
			"client_id":     {"test-client"},
			"client_secret": {"nope"},
		})
		s.Equal(http.StatusUnauthorized, resp.StatusCode)
		s.Equal("invalid_client", s.decode(resp)["error"])
	})
}

func (s *RouterSuite) TestAuthorizationCodeChain() {
	cookie := s.registerAndLogin("chain@example.com")

	// Consent step: browser is redirected back with a code.
	req, _ := http.NewRequest(http.MethodPost,
		s.server.URL+"/oauth/authorize?client_id=test-client&redirect_uri="+url.QueryEscape("http://localhost:3000/callback")+"&response_type=code&scope=profile&state=xyz123", nil)
	req.AddCookie(cookie)
	client := s.server.Client()
	client.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}
	resp, err := client.Do(req)
	s.Require().NoError(err)
	s.Require().Equal(http.StatusFound, resp.StatusCode)
	resp.Body.Close()

	redirect, err := url.Parse(resp.Header.Get("Location"))
	s.Require().NoError(err)
	s.Equal("xyz123", redirect.Query().Get("state"))
	code := redirect.Query().Get("code")
	s.Require().NotEmpty(code)

	// Exchange the code.
	tokenResp := s.postForm("/oauth/token", url.Values{
		"grant_type":    {"authorization_code"},
		"client_id":     {"test-client"},
		"client_secret": {"client-secret"},
		"code":          {code},
		"redirect_uri":  {"http://localhost:3000/callback"},
	})
	s.Require().Equal(http.StatusOK, tokenResp.StatusCode)
	issued := s.decode(tokenResp)
	s.Equal("Bearer", issued["token_type"])
	s.Equal(float64(3600), issued["expires_in"])
	firstRefresh := issued["refresh_token"].(string)
	s.NotEmpty(firstRefresh)

	// A second exchange of the same code must fail.
	replay := s.postForm("/oauth/token", url.Values{
		"grant_type":    {"authorization_code"},
		"client_id":     {"test-client"},
		"client_secret": {"client-secret"},
		"code":          {code},
		"redirect_uri":  {"http://localhost:3000/callback"},
	})
	s.Equal(http.StatusBadRequest, replay.StatusCode)
	s.Equal("invalid_grant", s.decode(replay)["error"])

	// The issued token works against the protected resource.
	infoReq, _ := http.NewRequest(http.MethodGet, s.server.URL+"/oauth/userinfo", nil)
	infoReq.Header.Set("Authorization", "Bearer "+issued["access_token"].(string))
	infoResp, err := client.Do(infoReq)
	s.Require().NoError(err)
	s.Require().Equal(http.StatusOK, infoResp.StatusCode)
	info := s.decode(infoResp)
	s.Equal("chain@example.com", info["email"])
	s.Equal("profile", info["scope"])

	// Rotate the refresh token.
	refreshResp := s.postForm("/oauth/token", url.Values{
		"grant_type":    {"refresh_token"},
		"client_id":     {"test-client"},
		"client_secret": {"client-secret"},
		"refresh_token": {firstRefresh},
	})
	s.Require().Equal(http.StatusOK, refreshResp.StatusCode)
	rotated := s.decode(refreshResp)
	s.NotEqual(firstRefresh, rotated["refresh_token"], "rotation must produce a fresh refresh token")

	// The consumed refresh token is dead.
	dead := s.postForm("/oauth/token", url.Values{
		"grant_type":    {"refresh_token"},
		"client_id":     {"test-client"},
		"client_secret": {"client-secret"},
		"refresh_token": {firstRefresh},
	})
	s.Equal(http.StatusBadRequest, dead.StatusCode)
	s.Equal("invalid_grant", s.decode(dead)["error"])
}

func (s *RouterSuite) TestAuthorizeInfo() {
	cookie := s.registerAndLogin("authz@example.com")

	req, _ := http.NewRequest(http.MethodGet,
		s.server.URL+"/oauth/authorize?client_id=test-client&redirect_uri="+url.QueryEscape("http://localhost:3000/callback")+"&response_type=code", nil)
	req.AddCookie(cookie)
	resp, err := s.server.Client().Do(req)
	s.Require().NoError(err)
	s.Require().Equal(http.StatusOK, resp.StatusCode)

	body := s.decode(resp)
	client := body["client"].(map[string]any)
	s.Equal("Test Client", client["name"])
	s.NotEmpty(body["scopes"])
}

func (s *RouterSuite) TestUserinfoRejections() {
	s.Run("no token", func() {
		resp, err := s.server.Client().Get(s.server.URL + "/oauth/userinfo")
		s.Require().NoError(err)
		s.Equal(http.StatusUnauthorized, resp.StatusCode)
		s.Equal("invalid_token", s.decode(resp)["error"])
	})

	s.Run("client-credentials token lacks the profile scope", func() {
		tokenResp := s.postForm("/oauth/token", url.Values{
			"grant_type":    {"client_credentials"},
			"client_id":     {"test-client"},
			"client_secret": {"client-secret"},
			"scope":         {"api.read"},
		})
		s.Require().Equal(http.StatusOK, tokenResp.StatusCode)
		access := s.decode(tokenResp)["access_token"].(string)

		req, _ := http.NewRequest(http.MethodGet, s.server.URL+"/oauth/userinfo", nil)
		req.Header.Set("Authorization", "Bearer "+access)
		resp, err := s.server.Client().Do(req)
		s.Require().NoError(err)
		s.Equal(http.StatusForbidden, resp.StatusCode)
		s.Equal("insufficient_scope", s.decode(resp)["error"])
	})
}

func (s *RouterSuite) TestRateLimitHeaders() {
	resp := s.postJSON("/auth/login", map[string]any{
		"email":    "nobody@example.com",
		"password": "Wr0ng&Pass!",
	}, nil)
	defer resp.Body.Close()
	s.Equal("5", resp.Header.Get("X-RateLimit-Limit"))
	s.Equal("4", resp.Header.Get("X-RateLimit-Remaining"))
}
