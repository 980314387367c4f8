package oauth

import (
	"context"
	"net/http"
	"net/url"

	"github.com/asaskevich/govalidator"

	"authgate/pkg/random"
	"authgate/pkg/requestcontext"
)

// Authorize validates an authorization request and returns what the approval
// prompt needs to render: the client's display name and the scopes usable by
// the authorization-code grant.
func (e *Engine) Authorize(ctx context.Context, req AuthorizeRequest) (*AuthorizeDetails, error) {
	if err := validateAuthorizeRequest(req); err != nil {
		return nil, err
	}
	client, err := e.clients.FindByClientIDAndRedirect(ctx, req.ClientID, req.RedirectURI)
	if err != nil {
		// No client authentication happened here, so this is a malformed
		// request rather than a failed login.
		return nil, &ProtocolError{Kind: ErrInvalidClient, Description: "Unknown client or redirect URI", Status: http.StatusBadRequest}
	}

	details := &AuthorizeDetails{Scopes: client.ScopesFor(GrantAuthorizationCode)}
	details.Client.Name = client.Name
	details.Client.RedirectURI = client.RedirectURI
	return details, nil
}

// Approve records the user's consent by minting an authorization code and
// returns the redirect URL the browser should be sent to. Protocol failures
// also come back as redirect URLs, carrying error and error_description
// query parameters instead of a code; state is echoed verbatim either way.
func (e *Engine) Approve(ctx context.Context, userID string, req AuthorizeRequest) (string, error) {
	if err := validateAuthorizeRequest(req); err != nil {
		// Without a usable redirect URI there is nowhere to send the error.
		if req.RedirectURI == "" || !govalidator.IsURL(req.RedirectURI) {
			return "", err
		}
		return errorRedirect(req.RedirectURI, req.State, err.(*ProtocolError)), nil
	}

	client, err := e.clients.FindByClientIDAndRedirect(ctx, req.ClientID, req.RedirectURI)
	if err != nil {
		protoErr := &ProtocolError{Kind: ErrInvalidClient, Description: "Unknown client or redirect URI"}
		return errorRedirect(req.RedirectURI, req.State, protoErr), nil
	}

	now := requestcontext.Now(ctx)
	scope := req.Scope
	if scope == "" {
		scope = client.DefaultScopeString(GrantAuthorizationCode)
	}

	code := &AuthorizationCode{
		Code:        random.String(CodeLength),
		ClientID:    client.ClientID,
		UserID:      userID,
		Scope:       scope,
		RedirectURI: req.RedirectURI,
		ExpiresAt:   now.Add(AuthCodeTTL),
		CreatedAt:   now,
	}
	if err := e.codes.Create(ctx, code); err != nil {
		return "", err
	}

	e.logger.InfoContext(ctx, "authorization code issued",
		"client_id", client.ClientID,
		"user_id", userID,
	)

	params := url.Values{"code": {code.Code}}
	if req.State != "" {
		params.Set("state", req.State)
	}
	return appendQuery(req.RedirectURI, params), nil
}

func validateAuthorizeRequest(req AuthorizeRequest) error {
	if req.ClientID == "" || req.RedirectURI == "" {
		return invalidRequest("client_id and redirect_uri are required")
	}
	if !govalidator.IsURL(req.RedirectURI) {
		return invalidRequest("redirect_uri must be a valid URL")
	}
	if req.ResponseType != "code" {
		return invalidRequest("response_type must be code")
	}
	return nil
}

func errorRedirect(redirectURI, state string, protoErr *ProtocolError) string {
	params := url.Values{
		"error":             {protoErr.Kind},
		"error_description": {protoErr.Description},
	}
	if state != "" {
		params.Set("state", state)
	}
	return appendQuery(redirectURI, params)
}

// appendQuery merges params into the redirect URI, preserving any query
// string the client registered.
func appendQuery(redirectURI string, params url.Values) string {
	parsed, err := url.Parse(redirectURI)
	if err != nil {
		return redirectURI + "?" + params.Encode()
	}
	query := parsed.Query()
	for key, values := range params {
		for _, value := range values {
			query.Set(key, value)
		}
	}
	parsed.RawQuery = query.Encode()
	return parsed.String()
}
