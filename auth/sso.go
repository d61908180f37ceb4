package auth

import (
	"context"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/google/uuid"
	"github.com/jrsteele09/go-telemed-client/credentials"
	"github.com/pkg/errors"
	"golang.org/x/oauth2"
)

// SSO holds the OAuth2 client and ID token verifier of an OpenID provider.
type SSO struct {
	OAuth2Config *oauth2.Config
	Verifier     *oidc.IDTokenVerifier
}

// NewSSO discovers the provider at issuer and builds an SSO for clientID.
func NewSSO(ctx context.Context, issuer, clientID, clientSecret, redirectURL string) (*SSO, error) {
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, errors.Wrap(err, "[NewSSO] provider discovery failed")
	}
	return &SSO{
		OAuth2Config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Endpoint:     provider.Endpoint(),
			Scopes:       []string{oidc.ScopeOpenID, "email", "profile"},
		},
		Verifier: provider.Verifier(&oidc.Config{ClientID: clientID}),
	}, nil
}

// AuthState is kept by the caller between BeginSSO and CompleteSSO.
type AuthState struct {
	State        string
	Nonce        string
	CodeVerifier string
	Remember     bool
}

// CallbackParams are the query parameters of the provider's redirect.
type CallbackParams struct {
	State            string
	Code             string
	Error            string
	ErrorDescription string
}

// BeginSSO returns the provider URL to send the user to and the state to
// keep for the callback.
func (s *Service) BeginSSO(remember bool) (string, AuthState, error) {
	if s.sso == nil {
		return "", AuthState{}, SSONotConfiguredErr
	}
	st := AuthState{
		State:        uuid.NewString(),
		Nonce:        uuid.NewString(),
		CodeVerifier: oauth2.GenerateVerifier(),
		Remember:     remember,
	}
	url := s.sso.OAuth2Config.AuthCodeURL(st.State,
		oidc.Nonce(st.Nonce),
		oauth2.S256ChallengeOption(st.CodeVerifier),
	)
	return url, st, nil
}

// CompleteSSO exchanges the authorization code, verifies the ID token and
// logs the user in with the provider's access token.
func (s *Service) CompleteSSO(ctx context.Context, st AuthState, params CallbackParams) (credentials.Identity, error) {
	if s.sso == nil {
		return credentials.Identity{}, SSONotConfiguredErr
	}
	if err := s.validator.ValidateCallback(st.State, params); err != nil {
		return credentials.Identity{}, err
	}

	oauth2Token, err := s.sso.OAuth2Config.Exchange(ctx, params.Code, oauth2.VerifierOption(st.CodeVerifier))
	if err != nil {
		return credentials.Identity{}, errors.Wrap(err, "[CompleteSSO] token exchange failed")
	}

	rawIDToken, ok := oauth2Token.Extra("id_token").(string)
	if !ok {
		return credentials.Identity{}, MissingIDTokenErr
	}
	idToken, err := s.sso.Verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return credentials.Identity{}, errors.Wrap(err, "[CompleteSSO] ID token verification failed")
	}

	var claims struct {
		Nonce    string               `json:"nonce"`
		Sub      string               `json:"sub"`
		Email    string               `json:"email"`
		Name     string               `json:"name"`
		UserType credentials.UserType `json:"user_type"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return credentials.Identity{}, errors.Wrap(err, "[CompleteSSO] failed to extract claims")
	}
	if claims.Nonce != st.Nonce {
		return credentials.Identity{}, InvalidNonceErr
	}

	identity := credentials.Identity{
		UserID:      claims.Sub,
		UserType:    claims.UserType,
		DisplayName: claims.Name,
		Email:       claims.Email,
	}
	if err := s.establish(ctx, oauth2Token.AccessToken, identity, st.Remember); err != nil {
		return credentials.Identity{}, err
	}
	s.logger.Info().Str("user_id", identity.UserID).Str("user_type", string(identity.UserType)).Msg("Logged in with SSO")
	return identity, nil
}
