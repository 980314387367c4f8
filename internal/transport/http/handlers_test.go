package http

import (
	"log/slog"
	"net/http"
	"testing"

	"github.com/stretchr/testify/suite"

	"authgate/internal/auth"
	"authgate/internal/oauth"
	"authgate/internal/password"
	"authgate/internal/session"
	"authgate/internal/token"
	"authgate/internal/twofactor"
	"authgate/internal/user"
	"authgate/pkg/testutil"
)

// HandlerSuite exercises individual handlers without the full middleware
// chain; context values are stamped directly.
type HandlerSuite struct {
	suite.Suite
	handler  *Handler
	users    *user.InMemoryStore
	sessions *session.Manager
}

func (s *HandlerSuite) SetupTest() {
	logger := slog.New(slog.DiscardHandler)

	s.users = user.NewInMemoryStore()
	policy := password.NewPolicy(s.users, password.NewInMemoryHistoryStore(), password.NewCorpusChecker(), logger, nil)
	twoFactor := twofactor.NewService(s.users, "authgate", false, logger, nil)
	s.sessions = session.NewManager(session.NewInMemoryStore(), logger, nil)

	codec, err := token.NewCodec("handler-test-secret", "http://authgate.test")
	s.Require().NoError(err)
	engine := oauth.NewEngine(
		oauth.NewInMemoryClientStore(),
		oauth.NewInMemoryAuthCodeStore(),
		oauth.NewInMemoryAccessTokenStore(),
		oauth.NewInMemoryRefreshTokenStore(),
		codec, logger, nil,
	)
	authService := auth.NewService(s.users, policy, twoFactor, s.sessions, &auth.LogSender{Logger: logger}, logger, nil)

	s.handler = NewHandler(authService, s.users, s.sessions, policy, twoFactor, engine, logger, false)
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) register(email string) (string, string) {
	req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/auth/register", map[string]any{
		"email":                 email,
		"password":              "S3cure&Pass",
		"password_confirmation": "S3cure&Pass",
	})
	rr := testutil.DoRequest(http.HandlerFunc(s.handler.register), req)
	testutil.AssertStatus(s.T(), rr, http.StatusCreated)

	resp := testutil.UnmarshalResponse[struct {
		SessionID string `json:"session_id"`
	}](s.T(), rr)

	u, err := s.users.FindByEmail(req.Context(), email)
	s.Require().NoError(err)
	return u.ID, resp.SessionID
}

func (s *HandlerSuite) TestRegisterValidation() {
	s.Run("missing fields", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/auth/register", map[string]any{
			"email": "a@example.com",
		})
		rr := testutil.DoRequest(http.HandlerFunc(s.handler.register), req)
		testutil.AssertStatus(s.T(), rr, http.StatusBadRequest)
	})

	s.Run("confirmation mismatch", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/auth/register", map[string]any{
			"email":                 "a@example.com",
			"password":              "S3cure&Pass",
			"password_confirmation": "Different1!",
		})
		rr := testutil.DoRequest(http.HandlerFunc(s.handler.register), req)
		testutil.AssertStatus(s.T(), rr, http.StatusBadRequest)
		testutil.AssertJSONContains(s.T(), rr, "message", "The password confirmation does not match")
	})

	s.Run("malformed body", func() {
		req := testutil.NewRequest(s.T(), http.MethodPost, "/auth/register")
		rr := testutil.DoRequest(http.HandlerFunc(s.handler.register), req)
		testutil.AssertStatus(s.T(), rr, http.StatusBadRequest)
	})
}

func (s *HandlerSuite) TestMeRequiresAuthentication() {
	req := testutil.NewRequest(s.T(), http.MethodGet, "/users/me")
	rr := testutil.DoRequest(http.HandlerFunc(s.handler.me), req)
	testutil.AssertStatus(s.T(), rr, http.StatusUnauthorized)
	testutil.AssertJSONContains(s.T(), rr, "message", "Unauthenticated")
}

func (s *HandlerSuite) TestMeProfileShape() {
	userID, sessionID := s.register("me@example.com")

	req := testutil.Authenticated(testutil.NewRequest(s.T(), http.MethodGet, "/users/me"), userID, sessionID)
	rr := testutil.DoRequest(http.HandlerFunc(s.handler.me), req)
	testutil.AssertStatus(s.T(), rr, http.StatusOK)

	resp := testutil.UnmarshalResponse[struct {
		User struct {
			Email            string `json:"email"`
			Role             string `json:"role"`
			TwoFactorEnabled bool   `json:"two_factor_enabled"`
		} `json:"user"`
		PasswordStatus struct {
			State string `json:"status"`
		} `json:"password_status"`
	}](s.T(), rr)

	s.Equal("me@example.com", resp.User.Email)
	s.Equal("user", resp.User.Role)
	s.False(resp.User.TwoFactorEnabled)
	s.Equal("valid", resp.PasswordStatus.State)
}

func (s *HandlerSuite) TestUpdateProfileEmail() {
	userID, sessionID := s.register("old@example.com")

	s.Run("rejects invalid email", func() {
		req := testutil.Authenticated(
			testutil.NewJSONRequest(s.T(), http.MethodPut, "/users/me", map[string]any{"email": "not-an-email"}),
			userID, sessionID)
		rr := testutil.DoRequest(http.HandlerFunc(s.handler.updateMe), req)
		testutil.AssertStatus(s.T(), rr, http.StatusBadRequest)
	})

	s.Run("normalizes and saves", func() {
		req := testutil.Authenticated(
			testutil.NewJSONRequest(s.T(), http.MethodPut, "/users/me", map[string]any{"email": "  NEW@Example.COM "}),
			userID, sessionID)
		rr := testutil.DoRequest(http.HandlerFunc(s.handler.updateMe), req)
		testutil.AssertStatus(s.T(), rr, http.StatusOK)

		u, err := s.users.FindByID(req.Context(), userID)
		s.Require().NoError(err)
		s.Equal("new@example.com", u.Email)
	})
}

func (s *HandlerSuite) TestTokenEndpointRejectsMissingGrant() {
	req := testutil.NewRequest(s.T(), http.MethodPost, "/oauth/token")
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := testutil.DoRequest(http.HandlerFunc(s.handler.token), req)
	testutil.AssertStatus(s.T(), rr, http.StatusBadRequest)
	testutil.AssertJSONContains(s.T(), rr, "error", "invalid_request")
}

func (s *HandlerSuite) TestChangePasswordConfirmationMismatch() {
	userID, sessionID := s.register("chg@example.com")

	req := testutil.Authenticated(
		testutil.NewJSONRequest(s.T(), http.MethodPut, "/users/me/password", map[string]any{
			"current_password":      "S3cure&Pass",
			"password":              "N3w&Secret1",
			"password_confirmation": "N3w&Secret2",
		}),
		userID, sessionID)
	rr := testutil.DoRequest(http.HandlerFunc(s.handler.changePassword), req)
	testutil.AssertStatus(s.T(), rr, http.StatusBadRequest)
	testutil.AssertJSONContains(s.T(), rr, "message", "The password confirmation does not match")
}
