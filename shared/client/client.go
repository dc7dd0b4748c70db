package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
	"github.com/google/uuid"
	"github.com/raidiam/priora-mock-tpp/shared/errs"
	"github.com/raidiam/priora-mock-tpp/shared/model"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	clientAssertionType = "urn:ietf:params:oauth:client-assertion-type:jwt-bearer"

	ClientAssertionTTL = 10 * time.Minute
	RequestObjectTTL   = 60 * time.Second
)

// Config holds the configuration for the sandbox OAuth client
type Config struct {
	ClientID   string
	HTTPClient *http.Client
	JWTSigner  jose.Signer
	// Now overrides the clock used for iat/exp; defaults to time.Now.
	Now func() time.Time
}

// OAuthClient talks to the sandbox OIDC endpoints and resource APIs
type OAuthClient struct {
	cfg Config
}

// New creates a new OAuth client
func New(cfg Config) *OAuthClient {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &OAuthClient{cfg: cfg}
}

// ClientID returns the software ID used as client_id, iss and sub.
func (c *OAuthClient) ClientID() string {
	return c.cfg.ClientID
}

// Discover fetches the authorization and token endpoints from a discovery
// document. Nothing is cached.
func (c *OAuthClient) Discover(ctx context.Context, wellKnownURL string) (model.Endpoints, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, wellKnownURL, nil)
	if err != nil {
		return model.Endpoints{}, errs.Discovery("failed to create well-known request", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		return model.Endpoints{}, errs.Discovery("failed to fetch well-known configuration", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return model.Endpoints{}, errs.Discovery("failed to read well-known configuration", err)
	}

	if resp.StatusCode != http.StatusOK {
		slog.WarnContext(ctx, "well-known non_200", "uri", wellKnownURL, "status_code", resp.StatusCode)
		e := errs.Discovery(fmt.Sprintf("well-known configuration returned status %s", resp.Status), nil)
		e.Status = resp.StatusCode
		e.Details = details(body)
		return model.Endpoints{}, e
	}

	var oidcConfig model.OpenIDConfiguration
	if err := json.Unmarshal(body, &oidcConfig); err != nil {
		return model.Endpoints{}, errs.Discovery("failed to decode well-known configuration", err)
	}

	switch {
	case oidcConfig.AuthEndpoint == "":
		return model.Endpoints{}, errs.Discovery("well-known configuration missing authorization_endpoint", nil)
	case oidcConfig.TokenEndpoint == "":
		return model.Endpoints{}, errs.Discovery("well-known configuration missing token_endpoint", nil)
	}

	slog.DebugContext(ctx, "well-known configuration fetched", "uri", wellKnownURL, "issuer", oidcConfig.Issuer)
	return model.Endpoints{
		AuthorizationEndpoint: oidcConfig.AuthEndpoint,
		TokenEndpoint:         oidcConfig.TokenEndpoint,
	}, nil
}

// BuildClientAssertion creates the RFC 7523 client assertion for the given
// token endpoint
func (c *OAuthClient) BuildClientAssertion(tokenEndpoint string) (string, error) {
	if c.cfg.JWTSigner == nil {
		return "", errs.Config("jwt signer not configured", nil)
	}
	now := c.cfg.Now().Unix()
	claims := map[string]any{
		"iss": c.cfg.ClientID,
		"sub": c.cfg.ClientID,
		"aud": tokenEndpoint,
		"jti": uuid.NewString(),
		"iat": now,
		"exp": now + int64(ClientAssertionTTL/time.Second),
	}
	return jwt.Signed(c.cfg.JWTSigner).Claims(claims).Serialize()
}

// ClientGrantToken runs the client_credentials grant authenticated with a
// client assertion and returns the Authorization header value.
func (c *OAuthClient) ClientGrantToken(ctx context.Context, tokenEndpoint, providerCode, redirectURI string) (string, error) {
	assertion, err := c.BuildClientAssertion(tokenEndpoint)
	if err != nil {
		return "", fmt.Errorf("build client assertion: %w", err)
	}

	cc := clientcredentials.Config{
		ClientID:  c.cfg.ClientID,
		TokenURL:  tokenEndpoint,
		AuthStyle: oauth2.AuthStyleInParams,
		EndpointParams: url.Values{
			"client_assertion_type": {clientAssertionType},
			"client_assertion":      {assertion},
			"provider_code":         {providerCode},
			"redirect_uri":          {redirectURI},
		},
	}

	tok, err := cc.Token(c.oauth2Context(ctx))
	if err != nil {
		slog.WarnContext(ctx, "client credentials grant failed", "uri", tokenEndpoint, "error", err)
		return "", tokenExchangeError(err)
	}

	slog.InfoContext(ctx, "client credentials grant success", "uri", tokenEndpoint, "provider_code", providerCode)
	return "Bearer " + tok.AccessToken, nil
}

// ExchangeCode redeems an authorization code, authenticated with a client
// assertion.
func (c *OAuthClient) ExchangeCode(ctx context.Context, tokenEndpoint, providerCode, code, redirectURI string) (model.TokenResponse, error) {
	assertion, err := c.BuildClientAssertion(tokenEndpoint)
	if err != nil {
		return model.TokenResponse{}, fmt.Errorf("build client assertion: %w", err)
	}

	conf := oauth2.Config{
		ClientID:    c.cfg.ClientID,
		RedirectURL: redirectURI,
		Endpoint: oauth2.Endpoint{
			TokenURL:  tokenEndpoint,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}

	tok, err := conf.Exchange(c.oauth2Context(ctx), code,
		oauth2.SetAuthURLParam("client_assertion_type", clientAssertionType),
		oauth2.SetAuthURLParam("client_assertion", assertion),
		oauth2.SetAuthURLParam("provider_code", providerCode),
	)
	if err != nil {
		slog.WarnContext(ctx, "authorization code exchange failed", "uri", tokenEndpoint, "error", err)
		return model.TokenResponse{}, tokenExchangeError(err)
	}

	out := model.TokenResponse{
		AccessToken:  tok.AccessToken,
		TokenType:    tok.Type(),
		RefreshToken: tok.RefreshToken,
		ExpiresIn:    tok.ExpiresIn,
	}
	if idToken, ok := tok.Extra("id_token").(string); ok {
		out.IDToken = idToken
	}
	if scope, ok := tok.Extra("scope").(string); ok {
		out.Scope = scope
	}
	if out.ExpiresIn == 0 {
		if v, ok := tok.Extra("expires_in").(float64); ok {
			out.ExpiresIn = int64(v)
		}
	}

	slog.InfoContext(ctx, "authorization code exchange success", "uri", tokenEndpoint, "provider_code", providerCode)
	return out, nil
}

// RequestObjectParams are the inputs bound into a signed request object.
type RequestObjectParams struct {
	TokenEndpoint string
	ConsentID     string
	RedirectURI   string
	Scope         string
}

// BuildRequestObject signs a request object whose id_token claims require
// openbanking_intent_id to equal the consent ID.
func (c *OAuthClient) BuildRequestObject(p RequestObjectParams) (string, error) {
	if c.cfg.JWTSigner == nil {
		return "", errs.Config("jwt signer not configured", nil)
	}
	iat := c.cfg.Now().Unix() - 1
	claims := map[string]any{
		"client_id":     c.cfg.ClientID,
		"iss":           c.cfg.ClientID,
		"sub":           c.cfg.ClientID,
		"aud":           p.TokenEndpoint,
		"jti":           uuid.NewString(),
		"redirect_uri":  p.RedirectURI,
		"scope":         p.Scope,
		"response_type": "code",
		"iat":           iat,
		"exp":           iat + int64(RequestObjectTTL/time.Second),
		"claims": map[string]any{
			"id_token": map[string]any{
				"openbanking_intent_id": map[string]any{
					"value":     p.ConsentID,
					"essential": true,
				},
			},
		},
	}

	jws, err := jwt.Signed(c.cfg.JWTSigner).Claims(claims).Serialize()
	if err != nil {
		return "", fmt.Errorf("sign request object: %w", err)
	}
	return jws, nil
}

// AuthorizationParams are the query parameters of the browser-facing URL.
type AuthorizationParams struct {
	ClientID      string
	Scope         string
	RequestObject string
	RedirectURI   string
}

// BuildAuthorizationURL adds the authorization request parameters to the
// discovered endpoint, keeping any query it already has.
func BuildAuthorizationURL(authEndpoint string, p AuthorizationParams) (string, error) {
	u, err := url.Parse(authEndpoint)
	if err != nil {
		return "", fmt.Errorf("bad auth endpoint: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("bad auth endpoint: %q is not absolute", authEndpoint)
	}

	q := u.Query()
	q.Set("client_id", p.ClientID)
	q.Set("response_type", "code")
	q.Set("scope", p.Scope)
	q.Set("request", p.RequestObject)
	q.Set("redirect_uri", p.RedirectURI)
	u.RawQuery = strings.ReplaceAll(q.Encode(), "+", "%20")

	return u.String(), nil
}

// Request describes a JSON call to a sandbox resource API.
type Request struct {
	Method string
	URL    string
	// Authorization is sent verbatim, e.g. "Bearer <token>".
	Authorization string
	Body          any
}

// CallJSON performs a sandbox API call. Any 2xx answer is returned as raw
// JSON, with an empty body mapped to {}. Other statuses become
// errs.KindRemoteAPI errors carrying the remote body.
func (c *OAuthClient) CallJSON(ctx context.Context, r Request) (json.RawMessage, error) {
	var reqBody io.Reader
	if r.Body != nil {
		b, err := json.Marshal(r.Body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		reqBody = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, r.Method, r.URL, reqBody)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("x-fapi-interaction-id", uuid.NewString())
	if r.Authorization != "" {
		req.Header.Set("Authorization", r.Authorization)
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if r.Method == http.MethodPost {
		req.Header.Set("x-idempotency-key", uuid.NewString())
	}

	resp, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		slog.ErrorContext(ctx, "api call failed", "uri", r.URL, "method", r.Method, "error", err)
		return nil, errs.Network(fmt.Sprintf("%s %s failed", r.Method, r.URL), err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errs.Network("read response body", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		slog.WarnContext(ctx, "api call non_2xx", "uri", r.URL, "method", r.Method, "status_code", resp.StatusCode)
		return nil, errs.RemoteAPI(RemoteMessage(body, resp.StatusCode), resp.StatusCode, details(body))
	}
	slog.InfoContext(ctx, "api call success", "uri", r.URL, "method", r.Method, "status_code", resp.StatusCode)

	if len(bytes.TrimSpace(body)) == 0 {
		return json.RawMessage(`{}`), nil
	}
	if !json.Valid(body) {
		return nil, errs.RemoteAPI(fmt.Sprintf("decode json: invalid response (status=%s)", resp.Status), resp.StatusCode, string(body))
	}
	return json.RawMessage(body), nil
}

func (c *OAuthClient) oauth2Context(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, c.cfg.HTTPClient)
}

func tokenExchangeError(err error) error {
	var rErr *oauth2.RetrieveError
	if errors.As(err, &rErr) {
		status := 0
		if rErr.Response != nil {
			status = rErr.Response.StatusCode
		}
		return errs.TokenExchange(RemoteMessage(rErr.Body, status), status, details(rErr.Body), nil)
	}
	return errs.TokenExchange("token request failed", 0, nil, err)
}
