package tpp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"slices"

	"github.com/raidiam/priora-mock-tpp/shared/client"
	"github.com/raidiam/priora-mock-tpp/shared/errs"
	"github.com/raidiam/priora-mock-tpp/shared/model"
	"github.com/tidwall/gjson"
)

const DefaultPaymentProduct = "domestic-payment-consents"

// PaymentProducts lists the payment consent resources a caller may target.
var PaymentProducts = []string{
	DefaultPaymentProduct,
	"domestic-scheduled-payment-consents",
	"domestic-standing-order-consents",
	"international-payment-consents",
	"international-scheduled-payment-consents",
	"international-standing-order-consents",
	"file-payment-consents",
}

func paymentProduct(product string) (string, error) {
	if product == "" {
		return DefaultPaymentProduct, nil
	}
	if !slices.Contains(PaymentProducts, product) {
		return "", errs.InvalidArgument(fmt.Sprintf("unsupported paymentProduct %q", product))
	}
	return product, nil
}

var sandboxCreditorAddress = &model.PostalAddress{
	AddressType:    "Business",
	StreetName:     "Acacia Avenue",
	BuildingNumber: "27",
	PostCode:       "GU31 2ZZ",
	TownName:       "Sparsholt",
	Country:        "GB",
	AddressLine:    []string{"Flat 7", "Acacia Lodge"},
}

// DefaultInitiation is a Faster Payments transfer of 20.00 GBP between two
// sort-code accounts.
func DefaultInitiation() model.Initiation {
	return model.Initiation{
		InstructionIdentification: "ACME412",
		EndToEndIdentification:    "FRESCO.21302.GFX.20",
		LocalInstrument:           "UK.OBIE.FPS",
		InstructedAmount: model.Amount{
			Amount:   "20.00",
			Currency: "GBP",
		},
		DebtorAccount: &model.CashAccount{
			SchemeName:     "UK.OBIE.SortCodeAccountNumber",
			Identification: "11280001234567",
			Name:           "Andrea Smith",
		},
		CreditorAccount: model.CashAccount{
			SchemeName:              "UK.OBIE.SortCodeAccountNumber",
			Identification:          "08080021325698",
			Name:                    "ACME Inc",
			SecondaryIdentification: "0002",
		},
		CreditorPostalAddress: sandboxCreditorAddress,
		RemittanceInformation: &model.RemittanceInformation{
			Reference:    "FRESCO-101",
			Unstructured: "Internal ops code 5120101",
		},
	}
}

func DefaultAuthorisation() model.Authorisation {
	return model.Authorisation{AuthorisationType: "Single"}
}

func DefaultSCASupportData() model.SCASupportData {
	return model.SCASupportData{
		RequestedSCAExemptionType:     "EcommerceGoods",
		AppliedAuthenticationApproach: "SCA",
	}
}

func DefaultRisk() model.Risk {
	return model.Risk{
		PaymentContextCode:             "EcommerceGoods",
		MerchantCategoryCode:           "5967",
		MerchantCustomerIdentification: "053598653254",
		DeliveryAddress: &model.PostalAddress{
			AddressLine:        []string{"Flat 7", "Acacia Lodge"},
			StreetName:         "Acacia Avenue",
			BuildingNumber:     "27",
			PostCode:           "GU31 2ZZ",
			TownName:           "Sparsholt",
			CountrySubDivision: []string{"Wessex"},
			Country:            "GB",
		},
	}
}

// overrideOrDefault returns the caller's object, or def encoded as JSON when
// the caller sent nothing or null.
func overrideOrDefault(field string, override json.RawMessage, def any) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace(override)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		b, err := json.Marshal(def)
		if err != nil {
			return nil, fmt.Errorf("encode default %s: %w", field, err)
		}
		return b, nil
	}
	if !gjson.ParseBytes(trimmed).IsObject() {
		return nil, errs.InvalidArgument(field + " must be a JSON object")
	}
	return json.RawMessage(trimmed), nil
}

func pisConsentBody(req model.CreatePISConsentRequest) (model.PISConsentBody, error) {
	var (
		body model.PISConsentBody
		err  error
	)
	if body.Data.Initiation, err = overrideOrDefault("initiation", req.Initiation, DefaultInitiation()); err != nil {
		return model.PISConsentBody{}, err
	}
	if body.Data.Authorisation, err = overrideOrDefault("authorisation", req.Authorisation, DefaultAuthorisation()); err != nil {
		return model.PISConsentBody{}, err
	}
	if body.Data.SCASupportData, err = overrideOrDefault("scaSupportData", req.SCASupportData, DefaultSCASupportData()); err != nil {
		return model.PISConsentBody{}, err
	}
	if body.Risk, err = overrideOrDefault("risk", req.Risk, DefaultRisk()); err != nil {
		return model.PISConsentBody{}, err
	}
	return body, nil
}

// CreatePISConsent registers a payment consent of the requested product and
// returns the URL the user must visit to authorise it.
func (t *TPP) CreatePISConsent(ctx context.Context, req model.CreatePISConsentRequest) (res model.ConsentResult, err error) {
	defer func() { t.cfg.Metrics.ObserveOperation("create_pis_consent", err) }()

	providerCode, err := t.providerCode(req.ProviderCode)
	if err != nil {
		return model.ConsentResult{}, err
	}
	product, err := paymentProduct(req.PaymentProduct)
	if err != nil {
		return model.ConsentResult{}, err
	}
	body, err := pisConsentBody(req)
	if err != nil {
		return model.ConsentResult{}, err
	}
	redirectURI := t.redirectURI(req.RedirectURI)

	endpoints, bearer, err := t.clientSession(ctx, providerCode, redirectURI)
	if err != nil {
		return model.ConsentResult{}, err
	}

	raw, err := t.cfg.OAuthClient.CallJSON(ctx, client.Request{
		Method:        http.MethodPost,
		URL:           t.apiURL(model.ConsentKindPIS, providerCode, product),
		Authorization: bearer,
		Body:          body,
	})
	if err != nil {
		return model.ConsentResult{}, fmt.Errorf("create pis consent: %w", err)
	}

	return t.authorizeConsent(ctx, raw, endpoints, redirectURI, scopePayments)
}

// GetPISConsentDetails returns the sandbox's view of a payment consent.
func (t *TPP) GetPISConsentDetails(ctx context.Context, providerCode, product, consentID string) (out json.RawMessage, err error) {
	defer func() { t.cfg.Metrics.ObserveOperation("get_pis_consent", err) }()

	product, err = paymentProduct(product)
	if err != nil {
		return nil, err
	}
	return t.consentCall(ctx, http.MethodGet, model.ConsentKindPIS, providerCode, product, consentID)
}
