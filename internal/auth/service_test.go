package auth

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/suite"

	"authgate/internal/password"
	"authgate/internal/session"
	"authgate/internal/twofactor"
	"authgate/internal/user"
	dErrors "authgate/pkg/domainerrors"
	"authgate/pkg/requestcontext"
)

type ServiceSuite struct {
	suite.Suite
	users    *user.InMemoryStore
	sessions *session.InMemoryStore
	policy   *password.Policy
	service  *Service
	now      time.Time
}

func (s *ServiceSuite) SetupTest() {
	logger := slog.New(slog.DiscardHandler)
	s.users = user.NewInMemoryStore()
	s.sessions = session.NewInMemoryStore()
	s.policy = password.NewPolicy(s.users, password.NewInMemoryHistoryStore(), password.NewCorpusChecker(), logger, nil)
	twoFactor := twofactor.NewService(s.users, "authgate", false, logger, nil)
	manager := session.NewManager(s.sessions, logger, nil)
	s.service = NewService(s.users, s.policy, twoFactor, manager, &LogSender{Logger: logger}, logger, nil)
	s.now = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) ctx() context.Context {
	ctx := requestcontext.WithClientMetadata(context.Background(), "10.0.0.1", "test-agent")
	return requestcontext.WithTime(ctx, s.now)
}

const goodPassword = "S3cure&Pass"

func (s *ServiceSuite) register(email string) *user.User {
	u, sess, err := s.service.Register(s.ctx(), email, goodPassword)
	s.Require().NoError(err)
	s.Require().NotNil(sess)
	return u
}

func (s *ServiceSuite) TestRegister() {
	s.Run("creates the user and a session", func() {
		u, sess, err := s.service.Register(s.ctx(), "New@Example.com", goodPassword)
		s.Require().NoError(err)
		s.Equal("new@example.com", u.Email, "email is normalized")
		s.Require().NotNil(u.PasswordChangedAt)
		s.Equal(s.now, *u.PasswordChangedAt)
		s.Equal(u.ID, sess.UserID)
	})

	s.Run("rejects a policy-violating password", func() {
		_, _, err := s.service.Register(s.ctx(), "weak@example.com", "short")
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("rejects a duplicate email", func() {
		s.register("dupe@example.com")
		_, _, err := s.service.Register(s.ctx(), "dupe@example.com", goodPassword)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
		s.Equal("The email has already been taken", dErrors.MessageOf(err))
	})

	s.Run("the initial password is recorded in history", func() {
		u := s.register("history@example.com")
		err := s.service.ChangePassword(s.ctx(), u, goodPassword, goodPassword)
		s.Require().Error(err)
		s.Equal("Password was used before", dErrors.MessageOf(err))
	})
}

func (s *ServiceSuite) TestLogin() {
	s.Run("unknown email and wrong password are indistinguishable", func() {
		s.register("real@example.com")

		_, errUnknown := s.service.Login(s.ctx(), "ghost@example.com", goodPassword, "", false)
		_, errWrong := s.service.Login(s.ctx(), "real@example.com", "Wr0ng&Pass!", "", false)

		s.True(dErrors.HasCode(errUnknown, dErrors.CodeInvalidCredentials))
		s.True(dErrors.HasCode(errWrong, dErrors.CodeInvalidCredentials))
		s.Equal(dErrors.MessageOf(errUnknown), dErrors.MessageOf(errWrong))
	})

	s.Run("successful login returns a session and password status", func() {
		s.register("happy@example.com")
		result, err := s.service.Login(s.ctx(), "happy@example.com", goodPassword, "", true)
		s.Require().NoError(err)
		s.False(result.Requires2FA)
		s.Require().NotNil(result.Session)
		s.True(result.Session.Remember)
		s.Equal(password.StateValid, result.PasswordStatus.State)
	})

	s.Run("five failures lock the account even for the correct password", func() {
		s.register("locked@example.com")

		for range password.MaxFailedAttempts {
			_, err := s.service.Login(s.ctx(), "locked@example.com", "Wr0ng&Pass!", "", false)
			s.True(dErrors.HasCode(err, dErrors.CodeInvalidCredentials))
		}

		_, err := s.service.Login(s.ctx(), "locked@example.com", goodPassword, "", false)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeAccountLocked))
	})

	s.Run("successful login resets the failure counter", func() {
		s.register("counter@example.com")

		for range password.MaxFailedAttempts - 1 {
			_, _ = s.service.Login(s.ctx(), "counter@example.com", "Wr0ng&Pass!", "", false)
		}
		_, err := s.service.Login(s.ctx(), "counter@example.com", goodPassword, "", false)
		s.Require().NoError(err)

		u, err := s.users.FindByEmail(context.Background(), "counter@example.com")
		s.Require().NoError(err)
		s.Zero(u.FailedLoginAttempts)
	})

	s.Run("expired password blocks login after credential check", func() {
		u := s.register("stale@example.com")
		changed := s.now.AddDate(0, 0, -(password.ExpiryDays + 1))
		u.PasswordChangedAt = &changed
		s.Require().NoError(s.users.Update(context.Background(), u))

		_, err := s.service.Login(s.ctx(), "stale@example.com", goodPassword, "", false)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodePasswordExpired))
	})
}

func (s *ServiceSuite) TestLoginWithTwoFactor() {
	u := s.register("2fa@example.com")
	twoFactor := twofactor.NewService(s.users, "authgate", false, slog.New(slog.DiscardHandler), nil)
	info, err := twoFactor.Enable(s.ctx(), u)
	s.Require().NoError(err)
	code, err := totp.GenerateCode(info.Secret, s.now)
	s.Require().NoError(err)
	s.Require().NoError(twoFactor.Verify(s.ctx(), u, code))

	s.Run("missing code does not create a session", func() {
		result, err := s.service.Login(s.ctx(), "2fa@example.com", goodPassword, "", false)
		s.Require().NoError(err)
		s.True(result.Requires2FA)
		s.Equal("2FA code required", result.Message)
		s.Nil(result.Session)
	})

	s.Run("wrong code does not create a session", func() {
		result, err := s.service.Login(s.ctx(), "2fa@example.com", goodPassword, "000000", false)
		s.Require().NoError(err)
		s.True(result.Requires2FA)
		s.Equal("Invalid 2FA code", result.Message)
		s.Nil(result.Session)
	})

	s.Run("wrong code leaves the lockout state untouched", func() {
		u, err := s.users.FindByEmail(context.Background(), "2fa@example.com")
		s.Require().NoError(err)
		u.FailedLoginAttempts = password.MaxFailedAttempts - 1
		s.Require().NoError(s.users.Update(context.Background(), u))

		result, err := s.service.Login(s.ctx(), "2fa@example.com", goodPassword, "000000", false)
		s.Require().NoError(err)
		s.True(result.Requires2FA)

		u, err = s.users.FindByEmail(context.Background(), "2fa@example.com")
		s.Require().NoError(err)
		s.Equal(password.MaxFailedAttempts-1, u.FailedLoginAttempts)
		s.Nil(u.LastLoginAt)
	})

	s.Run("valid code completes the login", func() {
		code, err := totp.GenerateCode(info.Secret, s.now)
		s.Require().NoError(err)
		result, err := s.service.Login(s.ctx(), "2fa@example.com", goodPassword, code, false)
		s.Require().NoError(err)
		s.False(result.Requires2FA)
		s.NotNil(result.Session)

		u, err := s.users.FindByEmail(context.Background(), "2fa@example.com")
		s.Require().NoError(err)
		s.Zero(u.FailedLoginAttempts)
		s.NotNil(u.LastLoginAt)
	})

	s.Run("recovery code completes the login once", func() {
		recovery := info.RecoveryCodes[0]
		result, err := s.service.Login(s.ctx(), "2fa@example.com", goodPassword, recovery, false)
		s.Require().NoError(err)
		s.False(result.Requires2FA)

		result, err = s.service.Login(s.ctx(), "2fa@example.com", goodPassword, recovery, false)
		s.Require().NoError(err)
		s.True(result.Requires2FA)
	})
}

func (s *ServiceSuite) TestChangePassword() {
	s.Run("wrong current password", func() {
		u := s.register("change@example.com")
		err := s.service.ChangePassword(s.ctx(), u, "Wr0ng&Pass!", "N3w&Secret!")
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidCredentials))
		s.Equal("Current password is incorrect", dErrors.MessageOf(err))
	})

	s.Run("successful change updates the hash and timestamp", func() {
		u := s.register("rotate@example.com")
		later := requestcontext.WithTime(s.ctx(), s.now.Add(time.Hour))
		s.Require().NoError(s.service.ChangePassword(later, u, goodPassword, "N3w&Secret!"))

		stored, err := s.users.FindByID(context.Background(), u.ID)
		s.Require().NoError(err)
		s.True(password.Verify(stored.PasswordHash, "N3w&Secret!"))
		s.Equal(s.now.Add(time.Hour), *stored.PasswordChangedAt)
	})

	s.Run("expired password must go through reset", func() {
		u := s.register("expired@example.com")
		changed := s.now.AddDate(0, 0, -100)
		u.PasswordChangedAt = &changed
		s.Require().NoError(s.users.Update(context.Background(), u))

		err := s.service.ChangePassword(s.ctx(), u, goodPassword, "N3w&Secret!")
		s.True(dErrors.HasCode(err, dErrors.CodePasswordExpired))

		s.Require().NoError(s.service.ResetPassword(s.ctx(), u, goodPassword, "N3w&Secret!"))
	})
}

func (s *ServiceSuite) TestForgotPassword() {
	s.register("exists@example.com")
	s.Require().NoError(s.service.ForgotPassword(s.ctx(), "exists@example.com"))
	s.Require().NoError(s.service.ForgotPassword(s.ctx(), "ghost@example.com"), "unknown emails must look identical")
}
