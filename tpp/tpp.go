package tpp

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/raidiam/priora-mock-tpp/shared/client"
	"github.com/raidiam/priora-mock-tpp/shared/errs"
	"github.com/raidiam/priora-mock-tpp/shared/metrics"
	"github.com/raidiam/priora-mock-tpp/shared/model"
)

const (
	scopeAccounts = "openid accounts"
	scopePayments = "openid payments"

	apiVersionPath = "open-banking/v3.1"
)

type Config struct {
	// ProviderCode is used when a request does not name one.
	ProviderCode string
	RedirectURI  string
	PrioraURL    string
	Protocol     string
	OAuthClient  *client.OAuthClient
	Metrics      *metrics.Metrics
	Now          func() time.Time
}

// TPP drives consent flows against the sandbox. It holds no per-request
// state; every operation discovers endpoints and mints its own tokens.
type TPP struct {
	cfg Config
}

func New(cfg Config) (*TPP, error) {
	if cfg.OAuthClient == nil {
		return nil, errs.Config("oauth client not configured", nil)
	}
	if cfg.PrioraURL == "" {
		return nil, errs.Config("sandbox host not configured", nil)
	}
	if cfg.Protocol == "" {
		cfg.Protocol = "https"
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &TPP{cfg: cfg}, nil
}

func (t *TPP) baseURL() string {
	return fmt.Sprintf("%s://%s", t.cfg.Protocol, strings.TrimRight(t.cfg.PrioraURL, "/"))
}

func (t *TPP) wellKnownURL(providerCode string) string {
	return fmt.Sprintf("%s/%s/.well-known/openid-configuration", t.baseURL(), url.PathEscape(providerCode))
}

// apiURL joins path segments under the AISP or PISP root of a provider.
// Each segment is path-escaped.
func (t *TPP) apiURL(kind model.ConsentKind, providerCode string, segments ...string) string {
	var b strings.Builder
	b.WriteString(t.baseURL())
	b.WriteString("/")
	b.WriteString(url.PathEscape(providerCode))
	b.WriteString("/")
	b.WriteString(apiVersionPath)
	b.WriteString("/")
	b.WriteString(string(kind))
	for _, s := range segments {
		b.WriteString("/")
		b.WriteString(url.PathEscape(s))
	}
	return b.String()
}

func (t *TPP) providerCode(code string) (string, error) {
	if code == "" {
		code = t.cfg.ProviderCode
	}
	if code == "" {
		return "", errs.InvalidArgument("providerCode is required")
	}
	return code, nil
}

func (t *TPP) redirectURI(uri string) string {
	if uri == "" {
		return t.cfg.RedirectURI
	}
	return uri
}

// clientSession discovers the provider's endpoints and obtains a
// client-credentials bearer token for it.
func (t *TPP) clientSession(ctx context.Context, providerCode, redirectURI string) (model.Endpoints, string, error) {
	endpoints, err := t.cfg.OAuthClient.Discover(ctx, t.wellKnownURL(providerCode))
	if err != nil {
		return model.Endpoints{}, "", err
	}

	bearer, err := t.cfg.OAuthClient.ClientGrantToken(ctx, endpoints.TokenEndpoint, providerCode, redirectURI)
	if err != nil {
		return model.Endpoints{}, "", err
	}

	slog.DebugContext(ctx, "client session ready", "provider_code", providerCode, "token_endpoint", endpoints.TokenEndpoint)
	return endpoints, bearer, nil
}
