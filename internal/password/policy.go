package password

import (
	"context"
	"fmt"
	"log/slog"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"authgate/internal/platform/metrics"
	"authgate/internal/user"
	dErrors "authgate/pkg/domainerrors"
	"authgate/pkg/requestcontext"
)

// Policy evaluates passwords against the policy and owns the lockout and
// history state transitions.
type Policy struct {
	users   user.Store
	history HistoryStore
	breach  BreachChecker
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewPolicy constructs the password policy engine.
func NewPolicy(users user.Store, history HistoryStore, breach BreachChecker, logger *slog.Logger, m *metrics.Metrics) *Policy {
	return &Policy{users: users, history: history, breach: breach, logger: logger, metrics: m}
}

// Hash produces the stored form of a password.
func Hash(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hashed), nil
}

// Verify reports whether password matches the stored hash.
func Verify(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// Validate checks a candidate password's shape and breach status and returns
// every violated rule. An empty slice means the password is acceptable.
func (p *Policy) Validate(ctx context.Context, password string) ([]string, error) {
	var violations []string
	if len(password) < MinLength {
		violations = append(violations, fmt.Sprintf("Password must be at least %d characters", MinLength))
	}

	var hasUpper, hasLower, hasDigit, hasSymbol bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		default:
			hasSymbol = true
		}
	}
	if !hasUpper || !hasLower {
		violations = append(violations, "Password must contain both uppercase and lowercase letters")
	}
	if !hasDigit {
		violations = append(violations, "Password must contain at least one number")
	}
	if !hasSymbol {
		violations = append(violations, "Password must contain at least one symbol")
	}

	// Only well-formed passwords are worth the breach lookup.
	if len(violations) == 0 {
		compromised, err := p.breach.IsCompromised(ctx, password)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to check password against breach data")
		}
		if compromised {
			violations = append(violations, "Password has appeared in a data breach and cannot be used")
		}
	}

	if len(violations) > 0 && p.metrics != nil {
		p.metrics.PasswordRejections.WithLabelValues("policy").Inc()
	}
	return violations, nil
}

// WasUsedBefore reports whether the candidate matches any of the user's most
// recent retained password hashes. Comparison is hash-verify only.
func (p *Policy) WasUsedBefore(ctx context.Context, userID, candidate string) (bool, error) {
	entries, err := p.history.ListRecent(ctx, userID, HistoryCount)
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load password history")
	}
	for _, entry := range entries {
		if Verify(entry.Hash, candidate) {
			if p.metrics != nil {
				p.metrics.PasswordRejections.WithLabelValues("reuse").Inc()
			}
			return true, nil
		}
	}
	return false, nil
}

// RecordPassword appends the new hash to the user's history and prunes it to
// the retention window.
func (p *Policy) RecordPassword(ctx context.Context, userID, hash string) error {
	entry := &HistoryEntry{
		ID:        uuid.NewString(),
		UserID:    userID,
		Hash:      hash,
		CreatedAt: requestcontext.Now(ctx),
	}
	if err := p.history.Record(ctx, entry); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record password history")
	}
	if err := p.history.TrimToRecent(ctx, userID, HistoryCount); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to prune password history")
	}
	return nil
}

// CheckStatus classifies the user's password age. A user with no recorded
// password change is treated as expired so legacy accounts are forced through
// a change on first login.
func (p *Policy) CheckStatus(ctx context.Context, u *user.User) Status {
	if u.PasswordChangedAt == nil {
		return Status{Expired: true, DaysLeft: 0, State: StateExpired}
	}
	now := requestcontext.Now(ctx)
	expiry := u.PasswordChangedAt.AddDate(0, 0, ExpiryDays)
	daysLeft := int(expiry.Sub(now).Hours() / 24)

	switch {
	case daysLeft <= 0:
		return Status{Expired: true, DaysLeft: -daysLeft, State: StateExpired}
	case daysLeft <= ExpiryWarningDays:
		return Status{Expired: false, DaysLeft: daysLeft, State: StateWarning}
	default:
		return Status{Expired: false, DaysLeft: daysLeft, State: StateValid}
	}
}

// IsAccountLocked reports whether the user has exhausted the failed-attempt
// budget. Checked before any credential comparison.
func (p *Policy) IsAccountLocked(u *user.User) bool {
	return u.FailedLoginAttempts >= MaxFailedAttempts
}

// HandleFailedLogin counts a failed attempt atomically and reports whether
// the account just reached the lockout threshold.
func (p *Policy) HandleFailedLogin(ctx context.Context, u *user.User) (bool, error) {
	attempts, err := p.users.IncrementFailedLogins(ctx, u.ID)
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to count login attempt")
	}
	u.FailedLoginAttempts = attempts
	locked := attempts >= MaxFailedAttempts
	if locked {
		if p.metrics != nil {
			p.metrics.AccountLockouts.Inc()
		}
		p.logger.WarnContext(ctx, "account locked after repeated failed logins",
			"user_id", u.ID,
			"attempts", attempts,
		)
	}
	return locked, nil
}

// ResetFailedAttempts clears the failure counter and stamps the login time
// after a fully successful authentication.
func (p *Policy) ResetFailedAttempts(ctx context.Context, u *user.User) error {
	now := requestcontext.Now(ctx)
	u.FailedLoginAttempts = 0
	u.LastLoginAt = &now
	u.UpdatedAt = now
	if err := p.users.Update(ctx, u); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to reset login attempts")
	}
	return nil
}
