package tpp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/raidiam/priora-mock-tpp/shared/client"
	"github.com/raidiam/priora-mock-tpp/shared/errs"
	"github.com/raidiam/priora-mock-tpp/shared/model"
)

// AccountRequest identifies an account data call. Authorization is the
// user access token obtained from ExchangeAuthorizationCode, with or
// without the Bearer prefix.
type AccountRequest struct {
	ProviderCode  string
	Authorization string
	AccountID     string
}

// Accounts lists the accounts the user's consent grants access to.
func (t *TPP) Accounts(ctx context.Context, req AccountRequest) (json.RawMessage, error) {
	return t.accountCall(ctx, "accounts", http.MethodGet, req, "accounts")
}

func (t *TPP) Transactions(ctx context.Context, req AccountRequest) (json.RawMessage, error) {
	return t.accountResource(ctx, "transactions", req)
}

func (t *TPP) Balances(ctx context.Context, req AccountRequest) (json.RawMessage, error) {
	return t.accountResource(ctx, "balances", req)
}

func (t *TPP) StandingOrders(ctx context.Context, req AccountRequest) (json.RawMessage, error) {
	return t.accountResource(ctx, "standing-orders", req)
}

// RefreshAccounts asks the sandbox to re-synchronise account data.
func (t *TPP) RefreshAccounts(ctx context.Context, req AccountRequest) (json.RawMessage, error) {
	return t.accountCall(ctx, "refresh_accounts", http.MethodPost, req, "accounts", "refresh")
}

// RefreshStatus reports the progress of the last RefreshAccounts.
func (t *TPP) RefreshStatus(ctx context.Context, req AccountRequest) (json.RawMessage, error) {
	return t.accountCall(ctx, "refresh_status", http.MethodGet, req, "accounts", "refresh", "status")
}

func (t *TPP) accountResource(ctx context.Context, resource string, req AccountRequest) (json.RawMessage, error) {
	if req.AccountID == "" {
		return nil, errs.InvalidArgument("accountId is required")
	}
	return t.accountCall(ctx, strings.ReplaceAll(resource, "-", "_"), http.MethodGet, req, "accounts", req.AccountID, resource)
}

// accountCall performs an AISP data request with the user's access token.
func (t *TPP) accountCall(ctx context.Context, operation, method string, req AccountRequest, segments ...string) (out json.RawMessage, err error) {
	defer func() { t.cfg.Metrics.ObserveOperation(operation, err) }()

	providerCode, err := t.providerCode(req.ProviderCode)
	if err != nil {
		return nil, err
	}
	authorization := bearerHeader(req.Authorization)
	if authorization == "" {
		return nil, errs.InvalidArgument("user access token is required in the Authorization header")
	}

	uri := t.apiURL(model.ConsentKindAIS, providerCode, segments...)
	out, err = t.cfg.OAuthClient.CallJSON(ctx, client.Request{
		Method:        method,
		URL:           uri,
		Authorization: authorization,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", operation, err)
	}

	slog.InfoContext(ctx, "account data fetched", "operation", operation, "provider_code", providerCode)
	return out, nil
}

func bearerHeader(v string) string {
	v = strings.TrimSpace(v)
	if len(v) >= 6 && strings.EqualFold(v[:6], "bearer") && (len(v) == 6 || v[6] == ' ') {
		v = strings.TrimSpace(v[6:])
	}
	if v == "" {
		return ""
	}
	return "Bearer " + v
}
