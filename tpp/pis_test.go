package tpp_test

import (
	"encoding/json"
	"net/http"
	"net/url"
	"testing"

	"github.com/raidiam/priora-mock-tpp/shared/errs"
	"github.com/raidiam/priora-mock-tpp/shared/model"
	"github.com/raidiam/priora-mock-tpp/tpp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func TestDefaultInitiation(t *testing.T) {
	in := tpp.DefaultInitiation()
	assert.Equal(t, model.Amount{Amount: "20.00", Currency: "GBP"}, in.InstructedAmount)
	assert.Equal(t, "UK.OBIE.FPS", in.LocalInstrument)
	assert.Equal(t, "UK.OBIE.SortCodeAccountNumber", in.CreditorAccount.SchemeName)
	require.NotNil(t, in.DebtorAccount)
	assert.Equal(t, "UK.OBIE.SortCodeAccountNumber", in.DebtorAccount.SchemeName)
	require.NotNil(t, in.RemittanceInformation)
	assert.NotEmpty(t, in.RemittanceInformation.Reference)
}

func TestDefaultRisk(t *testing.T) {
	risk := tpp.DefaultRisk()
	assert.Equal(t, "EcommerceGoods", risk.PaymentContextCode)
	require.NotNil(t, risk.DeliveryAddress)
	assert.Equal(t, "GB", risk.DeliveryAddress.Country, "ISO 3166-1 alpha-2")

	in := tpp.DefaultInitiation()
	require.NotNil(t, in.CreditorPostalAddress)
	assert.Equal(t, in.CreditorPostalAddress.Country, risk.DeliveryAddress.Country)
}

func TestCreatePISConsent(t *testing.T) {
	tests := []struct {
		name          string
		req           model.CreatePISConsentRequest
		wantPath      string
		wantAmount    string
		wantCurrency  string
		wantRiskCode  string
		wantAuthType  string
		wantSCAFields bool
	}{
		{
			name:          "defaults_applied",
			req:           model.CreatePISConsentRequest{},
			wantPath:      "/" + testProviderCode + "/open-banking/v3.1/pisp/domestic-payment-consents",
			wantAmount:    "20.00",
			wantCurrency:  "GBP",
			wantRiskCode:  "EcommerceGoods",
			wantAuthType:  "Single",
			wantSCAFields: true,
		},
		{
			name: "null_overrides_use_defaults",
			req: model.CreatePISConsentRequest{
				Initiation: json.RawMessage(`null`),
				Risk:       json.RawMessage(` null `),
			},
			wantPath:      "/" + testProviderCode + "/open-banking/v3.1/pisp/domestic-payment-consents",
			wantAmount:    "20.00",
			wantCurrency:  "GBP",
			wantRiskCode:  "EcommerceGoods",
			wantAuthType:  "Single",
			wantSCAFields: true,
		},
		{
			name: "overrides_passed_through",
			req: model.CreatePISConsentRequest{
				PaymentProduct: "international-payment-consents",
				Initiation:     json.RawMessage(`{"InstructedAmount":{"Amount":"99.10","Currency":"EUR"},"CurrencyOfTransfer":"EUR"}`),
				Authorisation:  json.RawMessage(`{"AuthorisationType":"Any"}`),
				Risk:           json.RawMessage(`{"PaymentContextCode":"PartyToParty"}`),
			},
			wantPath:      "/" + testProviderCode + "/open-banking/v3.1/pisp/international-payment-consents",
			wantAmount:    "99.10",
			wantCurrency:  "EUR",
			wantRiskCode:  "PartyToParty",
			wantAuthType:  "Any",
			wantSCAFields: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			sb := newFakeSandbox(t)
			svc := newTestTPP(t, sb, nil)

			res, err := svc.CreatePISConsent(t.Context(), tc.req)
			require.NoError(t, err)
			assert.Equal(t, "pdc-456", res.ConsentID)
			assert.Equal(t, "AwaitingAuthorisation", res.Status)
			assert.Contains(t, sb.paths(), tc.wantPath)

			body, _ := sb.lastConsent()
			raw, err := json.Marshal(body)
			require.NoError(t, err)
			assert.Equal(t, tc.wantAmount, gjson.GetBytes(raw, "Data.Initiation.InstructedAmount.Amount").String())
			assert.Equal(t, tc.wantCurrency, gjson.GetBytes(raw, "Data.Initiation.InstructedAmount.Currency").String())
			assert.Equal(t, tc.wantAuthType, gjson.GetBytes(raw, "Data.Authorisation.AuthorisationType").String())
			assert.Equal(t, tc.wantSCAFields, gjson.GetBytes(raw, "Data.SCASupportData.AppliedAuthenticationApproach").Exists())
			assert.Equal(t, tc.wantRiskCode, gjson.GetBytes(raw, "Risk.PaymentContextCode").String())

			u, err := url.Parse(res.AuthorizationURL)
			require.NoError(t, err)
			assert.Equal(t, "openid payments", u.Query().Get("scope"))
			claims := verifyTestJWT(t, u.Query().Get("request"), sb.key)
			assert.Equal(t, "pdc-456", claimString(t, claims, "claims.id_token.openbanking_intent_id.value"))
		})
	}
}

func TestCreatePISConsent_InvalidInput(t *testing.T) {
	tests := []struct {
		name            string
		req             model.CreatePISConsentRequest
		wantErrContains string
	}{
		{
			name:            "unsupported_product",
			req:             model.CreatePISConsentRequest{PaymentProduct: "crypto-payment-consents"},
			wantErrContains: `unsupported paymentProduct "crypto-payment-consents"`,
		},
		{
			name:            "initiation_not_object",
			req:             model.CreatePISConsentRequest{Initiation: json.RawMessage(`[1,2]`)},
			wantErrContains: "initiation must be a JSON object",
		},
		{
			name:            "risk_not_object",
			req:             model.CreatePISConsentRequest{Risk: json.RawMessage(`"low"`)},
			wantErrContains: "risk must be a JSON object",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			sb := newFakeSandbox(t)
			svc := newTestTPP(t, sb, nil)

			_, err := svc.CreatePISConsent(t.Context(), tc.req)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErrContains)

			e, ok := errs.As(err)
			require.True(t, ok)
			assert.Equal(t, http.StatusBadRequest, e.HTTPStatus())
			assert.Zero(t, sb.wellKnownHits.Load(), "invalid input must not reach the sandbox")
		})
	}
}

func TestCreatePISConsent_MissingConsentID(t *testing.T) {
	sb := newFakeSandbox(t)
	sb.dropConsentID = true
	svc := newTestTPP(t, sb, nil)

	res, err := svc.CreatePISConsent(t.Context(), model.CreatePISConsentRequest{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "consent response missing Data.ConsentId")
	assert.True(t, errs.Is(err, errs.KindRemoteAPI))
	assert.Empty(t, res.AuthorizationURL)
	assert.Empty(t, res.ConsentID)

	e, ok := errs.As(err)
	require.True(t, ok)
	assert.Equal(t, "AwaitingAuthorisation", gjson.GetBytes(e.Details.(json.RawMessage), "Data.Status").String())
}

func TestGetPISConsentDetails(t *testing.T) {
	tests := []struct {
		name        string
		product     string
		wantProduct string
		wantErr     bool
	}{
		{name: "default_product", product: "", wantProduct: tpp.DefaultPaymentProduct},
		{name: "scheduled_product", product: "domestic-scheduled-payment-consents", wantProduct: "domestic-scheduled-payment-consents"},
		{name: "unknown_product", product: "bogus", wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			sb := newFakeSandbox(t)
			svc := newTestTPP(t, sb, nil)

			raw, err := svc.GetPISConsentDetails(t.Context(), testProviderCode, tc.product, "pdc-456")
			if tc.wantErr {
				require.Error(t, err)
				assert.True(t, errs.Is(err, errs.KindInvalidArgument))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "pdc-456", gjson.GetBytes(raw, "Data.ConsentId").String())
			assert.Equal(t, tc.wantProduct, gjson.GetBytes(raw, "Data.Product").String())
		})
	}
}
