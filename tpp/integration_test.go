package tpp_test

import (
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"testing"

	"github.com/raidiam/priora-mock-tpp/shared/metrics"
	"github.com/raidiam/priora-mock-tpp/tpp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

// newConfiguredHandler builds the service the way cmd/main.go does, from
// environment variables only, pointed at the fake sandbox.
func newConfiguredHandler(t *testing.T, sb *fakeSandbox) http.Handler {
	t.Helper()

	clearTestEnvVars(t)
	t.Setenv("OB_SOFTWARE_ID", testClientID)
	t.Setenv("OB_PRIVATE_KEY", pemForKey(t, sb.key))
	t.Setenv("OB_PROVIDER_CODE", testProviderCode)
	t.Setenv("REDIRECT_URI", testRedirectURI)
	t.Setenv("PRIORA_URL", sb.host())
	t.Setenv("PROTOCOL", "http")

	cfg, err := tpp.LoadConfigFrom(filepath.Join(t.TempDir(), ".env"))
	require.NoError(t, err)

	m := metrics.New()
	oauthClient, err := tpp.SetupClients(t.Context(), cfg, m)
	require.NoError(t, err)

	svc, err := tpp.New(tpp.Config{
		ProviderCode: cfg.ProviderCode,
		RedirectURI:  cfg.RedirectURI,
		PrioraURL:    cfg.PrioraURL,
		Protocol:     cfg.Protocol,
		OAuthClient:  oauthClient,
		Metrics:      m,
	})
	require.NoError(t, err)

	return tpp.Handler(cfg.FrontendOrigin, cfg.Version, svc, m)
}

func TestIntegration_CreateAISConsent(t *testing.T) {
	sb := newFakeSandbox(t)
	h := newConfiguredHandler(t, sb)

	rec := serve(t, h, http.MethodPost, "/api/ais/consent", `{}`, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := rec.Body.String()

	consentID := gjson.Get(body, "data.consentId").String()
	require.NotEmpty(t, consentID)

	authURL := gjson.Get(body, "data.authorizationUrl").String()
	assert.True(t, strings.HasPrefix(authURL, "https://"+testAuthHost+"/"), authURL)
	assert.Contains(t, authURL, "request=")
	assert.Contains(t, authURL, "redirect_uri=")
	assert.NotContains(t, authURL, "+", "spaces are percent-encoded")

	u, err := url.Parse(authURL)
	require.NoError(t, err)
	claims := verifyTestJWT(t, u.Query().Get("request"), sb.key)
	assert.Equal(t, consentID, claimString(t, claims, "claims.id_token.openbanking_intent_id.value"))
	assert.Equal(t, testClientID, claims["iss"])
}

func TestIntegration_AccountAccessFlow(t *testing.T) {
	sb := newFakeSandbox(t)
	h := newConfiguredHandler(t, sb)

	rec := serve(t, h, http.MethodPost, "/api/ais/consent", `{"permissions":["ReadAccountsBasic","ReadBalances"]}`, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	consentID := gjson.Get(rec.Body.String(), "data.consentId").String()

	rec = serve(t, h, http.MethodPost, "/api/ais/token", `{"code":"good-code"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	accessToken := gjson.Get(rec.Body.String(), "data.access_token").String()
	require.Equal(t, userAccessToken, accessToken)

	rec = serve(t, h, http.MethodGet, "/api/ais/accounts", "", map[string]string{"Authorization": "Bearer " + accessToken})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	accountID := gjson.Get(rec.Body.String(), "data.Data.Account.0.AccountId").String()
	require.NotEmpty(t, accountID)

	rec = serve(t, h, http.MethodGet, "/api/ais/accounts/"+accountID+"/balances", "", map[string]string{"Authorization": "Bearer " + accessToken})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "balances", gjson.Get(rec.Body.String(), "data.Data.Resource").String())

	rec = serve(t, h, http.MethodDelete, "/api/ais/consent/"+consentID, "", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, gjson.Get(rec.Body.String(), "revoked").Bool())
	assert.Equal(t, []string{consentID}, sb.deleted())

	rec = serve(t, h, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "priora_tpp_sandbox_requests_total")
}
