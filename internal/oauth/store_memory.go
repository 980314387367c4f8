package oauth

import (
	"context"
	"sync"
	"time"

	"authgate/pkg/sentinel"
)

// InMemoryClientStore keeps clients in a map. Used by tests and single-node
// development runs.
type InMemoryClientStore struct {
	mu      sync.RWMutex
	clients map[string]*Client
}

func NewInMemoryClientStore() *InMemoryClientStore {
	return &InMemoryClientStore{clients: make(map[string]*Client)}
}

func (s *InMemoryClientStore) Create(_ context.Context, client *Client) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.clients[client.ClientID]; ok {
		return sentinel.ErrConflict
	}
	s.clients[client.ClientID] = cloneClient(client)
	return nil
}

func (s *InMemoryClientStore) FindByClientID(_ context.Context, clientID string) (*Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	client, ok := s.clients[clientID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return cloneClient(client), nil
}

func (s *InMemoryClientStore) FindByClientIDAndRedirect(ctx context.Context, clientID, redirectURI string) (*Client, error) {
	client, err := s.FindByClientID(ctx, clientID)
	if err != nil {
		return nil, err
	}
	if client.RedirectURI != redirectURI {
		return nil, sentinel.ErrNotFound
	}
	return client, nil
}

func cloneClient(client *Client) *Client {
	clone := *client
	clone.GrantTypes = append([]string(nil), client.GrantTypes...)
	clone.Scopes = append([]Scope(nil), client.Scopes...)
	return &clone
}

// InMemoryAuthCodeStore keeps authorization codes in a map guarded by a
// single mutex so Consume is check-and-burn atomic.
type InMemoryAuthCodeStore struct {
	mu    sync.Mutex
	codes map[string]*AuthorizationCode
}

func NewInMemoryAuthCodeStore() *InMemoryAuthCodeStore {
	return &InMemoryAuthCodeStore{codes: make(map[string]*AuthorizationCode)}
}

func (s *InMemoryAuthCodeStore) Create(_ context.Context, code *AuthorizationCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.codes[code.Code]; ok {
		return sentinel.ErrConflict
	}
	clone := *code
	s.codes[code.Code] = &clone
	return nil
}

func (s *InMemoryAuthCodeStore) Consume(_ context.Context, code, clientID, redirectURI string, now time.Time) (*AuthorizationCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.codes[code]
	if !ok || record.ClientID != clientID || record.RedirectURI != redirectURI {
		return nil, sentinel.ErrNotFound
	}
	if record.Revoked {
		return nil, sentinel.ErrAlreadyUsed
	}
	if !record.ExpiresAt.After(now) {
		return nil, sentinel.ErrExpired
	}
	record.Revoked = true
	clone := *record
	return &clone, nil
}

// InMemoryAccessTokenStore keeps access-token records keyed by JTI.
type InMemoryAccessTokenStore struct {
	mu     sync.RWMutex
	tokens map[string]*AccessToken
}

func NewInMemoryAccessTokenStore() *InMemoryAccessTokenStore {
	return &InMemoryAccessTokenStore{tokens: make(map[string]*AccessToken)}
}

func (s *InMemoryAccessTokenStore) Create(_ context.Context, token *AccessToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tokens[token.JTI]; ok {
		return sentinel.ErrConflict
	}
	clone := *token
	s.tokens[token.JTI] = &clone
	return nil
}

func (s *InMemoryAccessTokenStore) FindValid(_ context.Context, jti string, now time.Time) (*AccessToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	token, ok := s.tokens[jti]
	if !ok || token.Revoked || !token.ExpiresAt.After(now) {
		return nil, sentinel.ErrNotFound
	}
	clone := *token
	return &clone, nil
}

func (s *InMemoryAccessTokenStore) FindByJTIAndClient(_ context.Context, jti, clientID string) (*AccessToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	token, ok := s.tokens[jti]
	if !ok || token.ClientID != clientID {
		return nil, sentinel.ErrNotFound
	}
	clone := *token
	return &clone, nil
}

func (s *InMemoryAccessTokenStore) Revoke(_ context.Context, jti string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	token, ok := s.tokens[jti]
	if !ok {
		return sentinel.ErrNotFound
	}
	token.Revoked = true
	return nil
}

func (s *InMemoryAccessTokenStore) RevokeExpired(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	revoked := 0
	for _, token := range s.tokens {
		if !token.Revoked && !token.ExpiresAt.After(now) {
			token.Revoked = true
			revoked++
		}
	}
	return revoked, nil
}

// InMemoryRefreshTokenStore keeps refresh tokens guarded by a single mutex so
// Consume is atomic.
type InMemoryRefreshTokenStore struct {
	mu     sync.Mutex
	tokens map[string]*RefreshToken
}

func NewInMemoryRefreshTokenStore() *InMemoryRefreshTokenStore {
	return &InMemoryRefreshTokenStore{tokens: make(map[string]*RefreshToken)}
}

func (s *InMemoryRefreshTokenStore) Create(_ context.Context, token *RefreshToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tokens[token.ID]; ok {
		return sentinel.ErrConflict
	}
	s.tokens[token.ID] = cloneRefreshToken(token)
	return nil
}

func (s *InMemoryRefreshTokenStore) Consume(_ context.Context, id string, now time.Time) (*RefreshToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	token, ok := s.tokens[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if token.Revoked {
		return nil, sentinel.ErrAlreadyUsed
	}
	if token.ExpiresAt != nil && !token.ExpiresAt.After(now) {
		return nil, sentinel.ErrExpired
	}
	token.Revoked = true
	return cloneRefreshToken(token), nil
}

func (s *InMemoryRefreshTokenStore) FindByAccessTokenJTI(_ context.Context, jti string) (*RefreshToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, token := range s.tokens {
		if token.AccessTokenJTI == jti {
			return cloneRefreshToken(token), nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemoryRefreshTokenStore) Revoke(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	token, ok := s.tokens[id]
	if !ok {
		return sentinel.ErrNotFound
	}
	token.Revoked = true
	return nil
}

func (s *InMemoryRefreshTokenStore) RevokeExpired(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	revoked := 0
	for _, token := range s.tokens {
		if !token.Revoked && token.ExpiresAt != nil && !token.ExpiresAt.After(now) {
			token.Revoked = true
			revoked++
		}
	}
	return revoked, nil
}

func cloneRefreshToken(token *RefreshToken) *RefreshToken {
	clone := *token
	if token.ExpiresAt != nil {
		expiry := *token.ExpiresAt
		clone.ExpiresAt = &expiry
	}
	return &clone
}
