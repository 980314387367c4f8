// Package twofactor implements TOTP-based two-factor authentication:
// enrollment, confirmation, login-time verification, recovery codes, and
// teardown.
package twofactor

import (
	"context"
	"log/slog"
	"slices"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"

	"authgate/internal/password"
	"authgate/internal/platform/metrics"
	"authgate/internal/user"
	dErrors "authgate/pkg/domainerrors"
	"authgate/pkg/random"
	"authgate/pkg/requestcontext"
)

const (
	recoveryCodeCount = 8
	recoveryCodeBytes = 10
)

// SetupInfo is handed to the user exactly once at enrollment. The otpauth URL
// is what an authenticator app consumes; rendering it as a QR image is the
// client's concern.
type SetupInfo struct {
	Secret        string   `json:"secret"`
	OTPAuthURL    string   `json:"otpauth_url"`
	RecoveryCodes []string `json:"recovery_codes"`
}

// Service owns the 2FA lifecycle for users.
type Service struct {
	users       user.Store
	issuer      string
	adminBypass bool
	logger      *slog.Logger
	metrics     *metrics.Metrics
}

// NewService constructs the 2FA service. adminBypass lets admin accounts skip
// code verification; it exists for break-glass operations and is off by
// default.
func NewService(users user.Store, issuer string, adminBypass bool, logger *slog.Logger, m *metrics.Metrics) *Service {
	return &Service{users: users, issuer: issuer, adminBypass: adminBypass, logger: logger, metrics: m}
}

// Enable provisions a fresh TOTP secret and recovery codes. The secret stays
// unconfirmed until Verify succeeds with a valid code, so an interrupted
// enrollment never locks the user out.
func (s *Service) Enable(ctx context.Context, u *user.User) (*SetupInfo, error) {
	if u.TwoFactorActive() {
		return nil, dErrors.New(dErrors.CodeInvalidOperation, "2FA is already enabled")
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.issuer,
		AccountName: u.Email,
	})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate 2FA secret")
	}
	codes, err := generateRecoveryCodes()
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate recovery codes")
	}

	u.TwoFactorSecret = key.Secret()
	u.TwoFactorEnabled = true
	u.TwoFactorConfirmedAt = nil
	u.RecoveryCodes = codes
	u.UpdatedAt = requestcontext.Now(ctx)
	if err := s.users.Update(ctx, u); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to store 2FA secret")
	}

	s.logger.InfoContext(ctx, "2fa enrollment started", "user_id", u.ID)
	return &SetupInfo{
		Secret:        key.Secret(),
		OTPAuthURL:    key.URL(),
		RecoveryCodes: codes,
	}, nil
}

// Verify confirms enrollment with a code from the authenticator app. From
// this point on 2FA gates the user's logins.
func (s *Service) Verify(ctx context.Context, u *user.User, code string) error {
	if u.TwoFactorSecret == "" {
		return dErrors.New(dErrors.CodeInvalidOperation, "2FA is not enabled")
	}
	if !s.bypass(u) && !s.validateCode(ctx, u.TwoFactorSecret, code) {
		s.countFailure()
		return dErrors.New(dErrors.CodeBadRequest, "Invalid verification code")
	}

	now := requestcontext.Now(ctx)
	u.TwoFactorConfirmedAt = &now
	u.TwoFactorEnabled = true
	u.UpdatedAt = now
	if err := s.users.Update(ctx, u); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to confirm 2FA")
	}
	s.logger.InfoContext(ctx, "2fa confirmed", "user_id", u.ID)
	return nil
}

// Disable tears down 2FA. It demands both the account password and a current
// code so a hijacked session alone cannot weaken the account.
func (s *Service) Disable(ctx context.Context, u *user.User, currentPassword, code string) error {
	if !u.TwoFactorActive() {
		return dErrors.New(dErrors.CodeInvalidOperation, "2FA is not enabled")
	}
	if !password.Verify(u.PasswordHash, currentPassword) {
		return dErrors.New(dErrors.CodeInvalidCredentials, "Invalid password")
	}
	if !s.bypass(u) && !s.validateCode(ctx, u.TwoFactorSecret, code) {
		s.countFailure()
		return dErrors.New(dErrors.CodeInvalidCredentials, "Invalid 2FA code")
	}

	u.TwoFactorSecret = ""
	u.TwoFactorEnabled = false
	u.TwoFactorConfirmedAt = nil
	u.RecoveryCodes = nil
	u.UpdatedAt = requestcontext.Now(ctx)
	if err := s.users.Update(ctx, u); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to disable 2FA")
	}
	s.logger.WarnContext(ctx, "2fa disabled",
		"user_id", u.ID,
		"ip", requestcontext.ClientIP(ctx),
	)
	return nil
}

// VerifyLogin checks a login-time second factor: a TOTP code first, then a
// recovery code. A matched recovery code is consumed permanently.
func (s *Service) VerifyLogin(ctx context.Context, u *user.User, code string) (bool, error) {
	if s.bypass(u) {
		return true, nil
	}
	if s.validateCode(ctx, u.TwoFactorSecret, code) {
		return true, nil
	}
	consumed, err := s.consumeRecoveryCode(ctx, u, code)
	if err != nil {
		return false, err
	}
	if !consumed {
		s.countFailure()
	}
	return consumed, nil
}

// RecoveryCodes returns the user's remaining recovery codes.
func (s *Service) RecoveryCodes(u *user.User) ([]string, error) {
	if !u.TwoFactorActive() {
		return nil, dErrors.New(dErrors.CodeInvalidOperation, "2FA is not enabled")
	}
	if len(u.RecoveryCodes) == 0 {
		return nil, dErrors.New(dErrors.CodeNotFound, "No backup codes available")
	}
	return u.RecoveryCodes, nil
}

// RegenerateRecoveryCodes replaces the remaining recovery codes with a fresh
// set, invalidating all outstanding ones.
func (s *Service) RegenerateRecoveryCodes(ctx context.Context, u *user.User) ([]string, error) {
	if !u.TwoFactorActive() {
		return nil, dErrors.New(dErrors.CodeInvalidOperation, "2FA is not enabled")
	}
	codes, err := generateRecoveryCodes()
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate recovery codes")
	}
	u.RecoveryCodes = codes
	u.UpdatedAt = requestcontext.Now(ctx)
	if err := s.users.Update(ctx, u); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to store recovery codes")
	}
	return codes, nil
}

func (s *Service) consumeRecoveryCode(ctx context.Context, u *user.User, code string) (bool, error) {
	idx := slices.Index(u.RecoveryCodes, code)
	if idx < 0 {
		return false, nil
	}
	u.RecoveryCodes = slices.Delete(slices.Clone(u.RecoveryCodes), idx, idx+1)
	u.UpdatedAt = requestcontext.Now(ctx)
	if err := s.users.Update(ctx, u); err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to consume recovery code")
	}
	s.logger.InfoContext(ctx, "recovery code consumed",
		"user_id", u.ID,
		"remaining", len(u.RecoveryCodes),
	)
	return true, nil
}

func (s *Service) validateCode(ctx context.Context, secret, code string) bool {
	ok, err := totp.ValidateCustom(code, secret, requestcontext.Now(ctx), totp.ValidateOpts{
		Period:    30,
		Skew:      1,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	return err == nil && ok
}

func (s *Service) bypass(u *user.User) bool {
	return s.adminBypass && u.IsAdmin()
}

func (s *Service) countFailure() {
	if s.metrics != nil {
		s.metrics.TwoFactorFailures.Inc()
	}
}

func generateRecoveryCodes() ([]string, error) {
	codes := make([]string, 0, recoveryCodeCount)
	for range recoveryCodeCount {
		code, err := random.Hex(recoveryCodeBytes)
		if err != nil {
			return nil, err
		}
		codes = append(codes, code)
	}
	return codes, nil
}
