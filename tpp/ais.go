package tpp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/raidiam/priora-mock-tpp/shared/client"
	"github.com/raidiam/priora-mock-tpp/shared/errs"
	"github.com/raidiam/priora-mock-tpp/shared/model"
	"github.com/tidwall/gjson"
)

const (
	accountAccessConsents = "account-access-consents"

	// ConsentValidity is the default lifetime of a new AIS consent.
	ConsentValidity = 30 * 24 * time.Hour

	// ExpirationLayout formats Open Banking ISO 8601 timestamps.
	ExpirationLayout = "2006-01-02T15:04:05.000Z"
)

// DefaultPermissions returns the permissions requested when a caller does
// not name any. A new slice is returned on every call.
func DefaultPermissions() []string {
	return []string{
		"ReadAccountsBasic",
		"ReadAccountsDetail",
		"ReadBalances",
		"ReadBeneficiariesBasic",
		"ReadBeneficiariesDetail",
		"ReadDirectDebits",
		"ReadProducts",
		"ReadStandingOrdersBasic",
		"ReadStandingOrdersDetail",
		"ReadTransactionsBasic",
		"ReadTransactionsCredits",
		"ReadTransactionsDebits",
		"ReadTransactionsDetail",
		"ReadParty",
	}
}

// aisConsentBody merges caller overrides with the defaults.
func aisConsentBody(req model.CreateAISConsentRequest, now time.Time) model.AISConsentBody {
	permissions := req.Permissions
	if len(permissions) == 0 {
		permissions = DefaultPermissions()
	}
	expiration := req.ExpirationDateTime
	if expiration == "" {
		expiration = now.Add(ConsentValidity).UTC().Format(ExpirationLayout)
	}
	return model.AISConsentBody{
		Data: model.AISConsentData{
			Permissions:             permissions,
			ExpirationDateTime:      expiration,
			TransactionFromDateTime: req.TransactionFromDateTime,
			TransactionToDateTime:   req.TransactionToDateTime,
		},
	}
}

// CreateAISConsent registers an account-access consent and returns the URL
// the user must visit to authorise it.
func (t *TPP) CreateAISConsent(ctx context.Context, req model.CreateAISConsentRequest) (res model.ConsentResult, err error) {
	defer func() { t.cfg.Metrics.ObserveOperation("create_ais_consent", err) }()

	providerCode, err := t.providerCode(req.ProviderCode)
	if err != nil {
		return model.ConsentResult{}, err
	}
	redirectURI := t.redirectURI(req.RedirectURI)
	body := aisConsentBody(req, t.cfg.Now())

	endpoints, bearer, err := t.clientSession(ctx, providerCode, redirectURI)
	if err != nil {
		return model.ConsentResult{}, err
	}

	raw, err := t.cfg.OAuthClient.CallJSON(ctx, client.Request{
		Method:        http.MethodPost,
		URL:           t.apiURL(model.ConsentKindAIS, providerCode, accountAccessConsents),
		Authorization: bearer,
		Body:          body,
	})
	if err != nil {
		return model.ConsentResult{}, fmt.Errorf("create ais consent: %w", err)
	}

	return t.authorizeConsent(ctx, raw, endpoints, redirectURI, scopeAccounts)
}

// authorizeConsent reads the created consent and builds its authorization URL.
func (t *TPP) authorizeConsent(ctx context.Context, raw json.RawMessage, endpoints model.Endpoints, redirectURI, scope string) (model.ConsentResult, error) {
	consentID := gjson.GetBytes(raw, "Data.ConsentId").String()
	if consentID == "" {
		return model.ConsentResult{}, errs.RemoteAPI("consent response missing Data.ConsentId", 0, raw)
	}
	status := gjson.GetBytes(raw, "Data.Status").String()

	authURL, err := t.authorizationURL(ctx, endpoints, consentID, redirectURI, scope)
	if err != nil {
		return model.ConsentResult{}, err
	}

	slog.InfoContext(ctx, "consent created", "consent_id", consentID, "status", status, "scope", scope)
	return model.ConsentResult{
		ConsentID:        consentID,
		AuthorizationURL: authURL,
		Status:           status,
	}, nil
}

// GetAISConsentDetails returns the sandbox's view of an account-access consent.
func (t *TPP) GetAISConsentDetails(ctx context.Context, providerCode, consentID string) (out json.RawMessage, err error) {
	defer func() { t.cfg.Metrics.ObserveOperation("get_ais_consent", err) }()
	return t.consentCall(ctx, http.MethodGet, model.ConsentKindAIS, providerCode, accountAccessConsents, consentID)
}

// RevokeAISConsent deletes an account-access consent. Any 2xx answer counts
// as revoked.
func (t *TPP) RevokeAISConsent(ctx context.Context, providerCode, consentID string) (revoked bool, err error) {
	defer func() { t.cfg.Metrics.ObserveOperation("revoke_ais_consent", err) }()
	if _, err := t.consentCall(ctx, http.MethodDelete, model.ConsentKindAIS, providerCode, accountAccessConsents, consentID); err != nil {
		return false, err
	}
	slog.InfoContext(ctx, "consent revoked", "consent_id", consentID)
	return true, nil
}

// consentCall reads or deletes an existing consent with a fresh client
// token obtained for the default redirect URI.
func (t *TPP) consentCall(ctx context.Context, method string, kind model.ConsentKind, providerCode, resource, consentID string) (json.RawMessage, error) {
	providerCode, err := t.providerCode(providerCode)
	if err != nil {
		return nil, err
	}
	if consentID == "" {
		return nil, errs.InvalidArgument("consentId is required")
	}

	_, bearer, err := t.clientSession(ctx, providerCode, t.cfg.RedirectURI)
	if err != nil {
		return nil, err
	}

	raw, err := t.cfg.OAuthClient.CallJSON(ctx, client.Request{
		Method:        method,
		URL:           t.apiURL(kind, providerCode, resource, consentID),
		Authorization: bearer,
	})
	if err != nil {
		return nil, fmt.Errorf("%s %s %s: %w", method, resource, consentID, err)
	}
	return raw, nil
}
