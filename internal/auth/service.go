// Package auth orchestrates credential login, registration, and password
// changes across the password policy, two-factor, and session subsystems.
package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"authgate/internal/password"
	"authgate/internal/platform/metrics"
	"authgate/internal/session"
	"authgate/internal/twofactor"
	"authgate/internal/user"
	dErrors "authgate/pkg/domainerrors"
	"authgate/pkg/requestcontext"
	"authgate/pkg/sentinel"
)

// ResetLinkSender delivers password-reset links. Delivery is an external
// concern; the service only decides when to trigger it.
type ResetLinkSender interface {
	SendResetLink(ctx context.Context, email string) error
}

// LogSender logs reset requests instead of delivering mail. Development
// stand-in for a real mailer.
type LogSender struct {
	Logger *slog.Logger
}

func (s *LogSender) SendResetLink(ctx context.Context, email string) error {
	s.Logger.InfoContext(ctx, "password reset link requested", "email", email)
	return nil
}

// LoginResult is the outcome of a login attempt that was not rejected
// outright. Requires2FA marks a half-finished login: credentials were valid
// but the second factor is missing or wrong, and no session exists yet.
type LoginResult struct {
	Requires2FA    bool
	Message        string
	Session        *session.Session
	PasswordStatus password.Status
}

// Service wires the login orchestration.
type Service struct {
	users     user.Store
	policy    *password.Policy
	twoFactor *twofactor.Service
	sessions  *session.Manager
	sender    ResetLinkSender
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

// NewService constructs the auth service.
func NewService(
	users user.Store,
	policy *password.Policy,
	twoFactor *twofactor.Service,
	sessions *session.Manager,
	sender ResetLinkSender,
	logger *slog.Logger,
	m *metrics.Metrics,
) *Service {
	return &Service{
		users:     users,
		policy:    policy,
		twoFactor: twoFactor,
		sessions:  sessions,
		sender:    sender,
		logger:    logger,
		metrics:   m,
	}
}

// Login authenticates credentials and establishes a session. The lockout
// gate runs before any credential comparison so a locked account cannot be
// probed with password guesses. Unknown email and wrong password are
// indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, email, pass, twoFactorCode string, remember bool) (*LoginResult, error) {
	u, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			s.countLogin("invalid_credentials")
			return nil, dErrors.New(dErrors.CodeInvalidCredentials, "Invalid credentials")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load user")
	}

	if s.policy.IsAccountLocked(u) {
		s.countLogin("locked")
		return nil, dErrors.New(dErrors.CodeAccountLocked, "Account is locked due to too many failed attempts")
	}

	if !password.Verify(u.PasswordHash, pass) {
		if _, err := s.policy.HandleFailedLogin(ctx, u); err != nil {
			return nil, err
		}
		s.countLogin("invalid_credentials")
		return nil, dErrors.New(dErrors.CodeInvalidCredentials, "Invalid credentials")
	}

	status := s.policy.CheckStatus(ctx, u)
	if status.Expired {
		s.countLogin("password_expired")
		return nil, dErrors.New(dErrors.CodePasswordExpired, "Password change required")
	}

	if u.TwoFactorActive() {
		if twoFactorCode == "" {
			s.countLogin("2fa_required")
			return &LoginResult{Requires2FA: true, Message: "2FA code required"}, nil
		}
		ok, err := s.twoFactor.VerifyLogin(ctx, u, twoFactorCode)
		if err != nil {
			return nil, err
		}
		if !ok {
			s.countLogin("2fa_failed")
			return &LoginResult{Requires2FA: true, Message: "Invalid 2FA code"}, nil
		}
	}

	// The counter only resets once every factor has passed; a correct
	// password alone must not clear the lockout state.
	if err := s.policy.ResetFailedAttempts(ctx, u); err != nil {
		return nil, err
	}

	sess, err := s.sessions.Create(ctx, u.ID, remember)
	if err != nil {
		return nil, err
	}

	s.countLogin("success")
	s.logger.InfoContext(ctx, "user logged in",
		"user_id", u.ID,
		"ip", requestcontext.ClientIP(ctx),
		"remember", remember,
	)
	return &LoginResult{
		Message:        "Logged in successfully",
		Session:        sess,
		PasswordStatus: status,
	}, nil
}

// Register creates an account and logs it straight in. The password runs
// through the full policy and seeds the history so it cannot be reused on
// the first change.
func (s *Service) Register(ctx context.Context, email, pass string) (*user.User, *session.Session, error) {
	violations, err := s.policy.Validate(ctx, pass)
	if err != nil {
		return nil, nil, err
	}
	if len(violations) > 0 {
		return nil, nil, dErrors.New(dErrors.CodeValidation, strings.Join(violations, ". "))
	}

	hash, err := password.Hash(pass)
	if err != nil {
		return nil, nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to hash password")
	}

	now := requestcontext.Now(ctx)
	u := &user.User{
		ID:                uuid.NewString(),
		Email:             strings.ToLower(strings.TrimSpace(email)),
		PasswordHash:      hash,
		Role:              user.RoleUser,
		PasswordChangedAt: &now,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.users.Create(ctx, u); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, nil, dErrors.New(dErrors.CodeValidation, "The email has already been taken")
		}
		return nil, nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create user")
	}

	if err := s.policy.RecordPassword(ctx, u.ID, hash); err != nil {
		return nil, nil, err
	}

	sess, err := s.sessions.Create(ctx, u.ID, false)
	if err != nil {
		return nil, nil, err
	}

	s.logger.InfoContext(ctx, "user registered", "user_id", u.ID)
	return u, sess, nil
}

// Logout deletes the caller's session.
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	return s.sessions.Logout(ctx, sessionID)
}

// ChangePassword rotates the password of an authenticated user. The expiry
// gate runs first so an expired password goes through ResetPassword, which
// also clears the lockout state.
func (s *Service) ChangePassword(ctx context.Context, u *user.User, currentPass, newPass string) error {
	if s.policy.CheckStatus(ctx, u).Expired {
		return dErrors.New(dErrors.CodePasswordExpired, "Password has expired")
	}
	return s.rotatePassword(ctx, u, currentPass, newPass)
}

// ResetPassword rotates an expired or forgotten password and clears the
// failed-attempt counter.
func (s *Service) ResetPassword(ctx context.Context, u *user.User, currentPass, newPass string) error {
	if err := s.rotatePassword(ctx, u, currentPass, newPass); err != nil {
		return err
	}
	return s.policy.ResetFailedAttempts(ctx, u)
}

// ForgotPassword triggers reset-link delivery. The outcome is identical
// whether or not the email exists; enumeration through this endpoint must
// be impossible.
func (s *Service) ForgotPassword(ctx context.Context, email string) error {
	if _, err := s.users.FindByEmail(ctx, email); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load user")
	}
	if err := s.sender.SendResetLink(ctx, email); err != nil {
		// Delivery failures stay invisible to the caller for the same
		// enumeration reason; they surface in the logs.
		s.logger.ErrorContext(ctx, "failed to send reset link", "error", err)
	}
	return nil
}

func (s *Service) rotatePassword(ctx context.Context, u *user.User, currentPass, newPass string) error {
	if !password.Verify(u.PasswordHash, currentPass) {
		return dErrors.New(dErrors.CodeInvalidCredentials, "Current password is incorrect")
	}

	violations, err := s.policy.Validate(ctx, newPass)
	if err != nil {
		return err
	}
	if len(violations) > 0 {
		return dErrors.New(dErrors.CodeValidation, strings.Join(violations, ". "))
	}

	used, err := s.policy.WasUsedBefore(ctx, u.ID, newPass)
	if err != nil {
		return err
	}
	if used {
		return dErrors.New(dErrors.CodeValidation, "Password was used before")
	}

	hash, err := password.Hash(newPass)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to hash password")
	}

	now := requestcontext.Now(ctx)
	u.PasswordHash = hash
	u.PasswordChangedAt = &now
	u.UpdatedAt = now
	if err := s.users.Update(ctx, u); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update password")
	}
	if err := s.policy.RecordPassword(ctx, u.ID, hash); err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "password changed", "user_id", u.ID)
	return nil
}

func (s *Service) countLogin(outcome string) {
	if s.metrics != nil {
		s.metrics.LoginAttempts.WithLabelValues(outcome).Inc()
	}
}
