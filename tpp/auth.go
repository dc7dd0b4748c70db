package tpp

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/raidiam/priora-mock-tpp/shared/client"
	"github.com/raidiam/priora-mock-tpp/shared/errs"
	"github.com/raidiam/priora-mock-tpp/shared/model"
)

// authorizationURL signs a request object bound to consentID and composes
// the browser-facing authorization URL.
func (t *TPP) authorizationURL(ctx context.Context, endpoints model.Endpoints, consentID, redirectURI, scope string) (string, error) {
	requestObject, err := t.cfg.OAuthClient.BuildRequestObject(client.RequestObjectParams{
		TokenEndpoint: endpoints.TokenEndpoint,
		ConsentID:     consentID,
		RedirectURI:   redirectURI,
		Scope:         scope,
	})
	if err != nil {
		return "", err
	}

	authURL, err := client.BuildAuthorizationURL(endpoints.AuthorizationEndpoint, client.AuthorizationParams{
		ClientID:      t.cfg.OAuthClient.ClientID(),
		Scope:         scope,
		RequestObject: requestObject,
		RedirectURI:   redirectURI,
	})
	if err != nil {
		return "", errs.Discovery("authorization endpoint unusable", err)
	}

	slog.InfoContext(ctx, "auth url built",
		"consent_id", consentID,
		"redirect_uri", redirectURI,
		"scope", scope,
	)
	return authURL, nil
}

// ExchangeAuthorizationCode redeems the code the sandbox returned to the
// redirect URI after the user authorised an AIS consent.
func (t *TPP) ExchangeAuthorizationCode(ctx context.Context, req model.TokenExchangeRequest) (out model.TokenResponse, err error) {
	defer func() { t.cfg.Metrics.ObserveOperation("exchange_authorization_code", err) }()

	providerCode, err := t.providerCode(req.ProviderCode)
	if err != nil {
		return model.TokenResponse{}, err
	}
	if req.Code == "" {
		return model.TokenResponse{}, errs.InvalidArgument("code is required")
	}
	redirectURI := t.redirectURI(req.RedirectURI)

	endpoints, err := t.cfg.OAuthClient.Discover(ctx, t.wellKnownURL(providerCode))
	if err != nil {
		return model.TokenResponse{}, err
	}

	out, err = t.cfg.OAuthClient.ExchangeCode(ctx, endpoints.TokenEndpoint, providerCode, req.Code, redirectURI)
	if err != nil {
		return model.TokenResponse{}, fmt.Errorf("exchange authorization code: %w", err)
	}

	slog.InfoContext(ctx, "authorization code exchanged", "provider_code", providerCode, "token_type", out.TokenType)
	return out, nil
}
