package password

import "context"

// BreachChecker reports whether a password is known to be compromised.
type BreachChecker interface {
	IsCompromised(ctx context.Context, password string) (bool, error)
}

// CorpusChecker checks candidates against a fixed corpus of widely breached
// passwords. A stand-in for a live breach API with the same interface.
type CorpusChecker struct {
	corpus map[string]struct{}
}

// NewCorpusChecker builds a checker over the built-in corpus plus any extra
// entries.
func NewCorpusChecker(extra ...string) *CorpusChecker {
	corpus := make(map[string]struct{}, len(breachedPasswords)+len(extra))
	for _, candidate := range breachedPasswords {
		corpus[candidate] = struct{}{}
	}
	for _, candidate := range extra {
		corpus[candidate] = struct{}{}
	}
	return &CorpusChecker{corpus: corpus}
}

func (c *CorpusChecker) IsCompromised(_ context.Context, password string) (bool, error) {
	_, ok := c.corpus[password]
	return ok, nil
}

// breachedPasswords holds the most common entries from published breach
// dumps that also satisfy the shape rules, since only those reach the check.
var breachedPasswords = []string{
	"Password1!",
	"Password123!",
	"Passw0rd!",
	"P@ssw0rd",
	"P@ssword1",
	"Welcome1!",
	"Welcome123!",
	"Qwerty123!",
	"Admin123!",
	"Letmein1!",
	"Summer2024!",
	"Winter2024!",
	"Changeme1!",
	"Iloveyou1!",
	"Monkey123!",
}
