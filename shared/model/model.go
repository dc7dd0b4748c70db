package model

import (
	"encoding/json"

	"github.com/go-jose/go-jose/v4"
)

type OpenIDConfiguration struct {
	Issuer               string                    `json:"issuer"`
	AuthEndpoint         string                    `json:"authorization_endpoint"`
	TokenEndpoint        string                    `json:"token_endpoint"`
	JWKSURI              string                    `json:"jwks_uri"`
	IDTokenSigAlgs       []jose.SignatureAlgorithm `json:"id_token_signing_alg_values_supported"`
	RequestObjectSigAlgs []jose.SignatureAlgorithm `json:"request_object_signing_alg_values_supported"`
}

// Endpoints is the subset of the discovery document the consent flows need.
type Endpoints struct {
	AuthorizationEndpoint string
	TokenEndpoint         string
}

// ConsentKind names the Open Banking API family a consent belongs to. The
// value is the family's path segment.
type ConsentKind string

const (
	ConsentKindAIS ConsentKind = "aisp"
	ConsentKindPIS ConsentKind = "pisp"
)

// Service inputs and outputs

type CreateAISConsentRequest struct {
	ProviderCode            string   `json:"providerCode"`
	RedirectURI             string   `json:"redirectUri"`
	Permissions             []string `json:"permissions,omitempty"`
	ExpirationDateTime      string   `json:"expirationDateTime,omitempty"`
	TransactionFromDateTime string   `json:"transactionFromDateTime,omitempty"`
	TransactionToDateTime   string   `json:"transactionToDateTime,omitempty"`
}

// CreatePISConsentRequest carries caller overrides as raw JSON so that any
// Open Banking payment product shape is passed through untouched. Empty
// fields are replaced by the fixed Faster Payments examples.
type CreatePISConsentRequest struct {
	ProviderCode   string          `json:"providerCode"`
	RedirectURI    string          `json:"redirectUri"`
	PaymentProduct string          `json:"paymentProduct,omitempty"`
	Initiation     json.RawMessage `json:"initiation,omitempty"`
	Authorisation  json.RawMessage `json:"authorisation,omitempty"`
	SCASupportData json.RawMessage `json:"scaSupportData,omitempty"`
	Risk           json.RawMessage `json:"risk,omitempty"`
}

type ConsentResult struct {
	ConsentID        string `json:"consentId"`
	AuthorizationURL string `json:"authorizationUrl"`
	Status           string `json:"status"`
}

type TokenExchangeRequest struct {
	ProviderCode string `json:"providerCode"`
	Code         string `json:"code"`
	RedirectURI  string `json:"redirectUri"`
}

type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ExpiresIn    int64  `json:"expires_in,omitempty"`
	IDToken      string `json:"id_token,omitempty"`
	Scope        string `json:"scope,omitempty"`
}

// Open Banking v3.1 payloads

type AISConsentData struct {
	Permissions             []string `json:"Permissions"`
	ExpirationDateTime      string   `json:"ExpirationDateTime"`
	TransactionFromDateTime string   `json:"TransactionFromDateTime,omitempty"`
	TransactionToDateTime   string   `json:"TransactionToDateTime,omitempty"`
}

type AISConsentBody struct {
	Data AISConsentData `json:"Data"`
	Risk struct{}       `json:"Risk"`
}

type PISConsentData struct {
	Initiation     json.RawMessage `json:"Initiation"`
	Authorisation  json.RawMessage `json:"Authorisation,omitempty"`
	SCASupportData json.RawMessage `json:"SCASupportData,omitempty"`
}

type PISConsentBody struct {
	Data PISConsentData  `json:"Data"`
	Risk json.RawMessage `json:"Risk"`
}

type Amount struct {
	Amount   string `json:"Amount"`
	Currency string `json:"Currency"`
}

type CashAccount struct {
	SchemeName              string `json:"SchemeName"`
	Identification          string `json:"Identification"`
	Name                    string `json:"Name,omitempty"`
	SecondaryIdentification string `json:"SecondaryIdentification,omitempty"`
}

type PostalAddress struct {
	AddressType        string   `json:"AddressType,omitempty"`
	StreetName         string   `json:"StreetName,omitempty"`
	BuildingNumber     string   `json:"BuildingNumber,omitempty"`
	PostCode           string   `json:"PostCode,omitempty"`
	TownName           string   `json:"TownName,omitempty"`
	CountrySubDivision []string `json:"CountrySubDivision,omitempty"`
	Country            string   `json:"Country,omitempty"`
	AddressLine        []string `json:"AddressLine,omitempty"`
}

type RemittanceInformation struct {
	Reference    string `json:"Reference,omitempty"`
	Unstructured string `json:"Unstructured,omitempty"`
}

type Initiation struct {
	InstructionIdentification string                 `json:"InstructionIdentification"`
	EndToEndIdentification    string                 `json:"EndToEndIdentification"`
	LocalInstrument           string                 `json:"LocalInstrument,omitempty"`
	InstructedAmount          Amount                 `json:"InstructedAmount"`
	DebtorAccount             *CashAccount           `json:"DebtorAccount,omitempty"`
	CreditorAccount           CashAccount            `json:"CreditorAccount"`
	CreditorPostalAddress     *PostalAddress         `json:"CreditorPostalAddress,omitempty"`
	RemittanceInformation     *RemittanceInformation `json:"RemittanceInformation,omitempty"`
}

type Authorisation struct {
	AuthorisationType  string `json:"AuthorisationType"`
	CompletionDateTime string `json:"CompletionDateTime,omitempty"`
}

type SCASupportData struct {
	RequestedSCAExemptionType     string `json:"RequestedSCAExemptionType,omitempty"`
	AppliedAuthenticationApproach string `json:"AppliedAuthenticationApproach,omitempty"`
	ReferencePaymentOrderID       string `json:"ReferencePaymentOrderId,omitempty"`
}

type Risk struct {
	PaymentContextCode             string         `json:"PaymentContextCode,omitempty"`
	MerchantCategoryCode           string         `json:"MerchantCategoryCode,omitempty"`
	MerchantCustomerIdentification string         `json:"MerchantCustomerIdentification,omitempty"`
	DeliveryAddress                *PostalAddress `json:"DeliveryAddress,omitempty"`
}

// Handler request/response types

type SuccessResponse struct {
	Success bool `json:"success"`
	Data    any  `json:"data"`
}

type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Details any    `json:"details"`
}

type RevokeResponse struct {
	Success bool `json:"success"`
	Revoked bool `json:"revoked"`
}

type RouteInfo struct {
	Method      string `json:"method"`
	Path        string `json:"path"`
	Description string `json:"description"`
}

type DirectoryResponse struct {
	Service   string      `json:"service"`
	Version   string      `json:"version"`
	Endpoints []RouteInfo `json:"endpoints"`
}

type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
	Service   string `json:"service"`
}

type Config struct {
	SoftwareID         string
	SigningKeyID       string
	PrivateKey         string
	PrivateKeyPath     string
	PrivateKeySecretID string
	BaseDir            string
	ProviderCode       string
	RedirectURI        string
	PrioraURL          string
	Protocol           string
	Port               string
	FrontendOrigin     string
	CertFile           string
	KeyFile            string
	CAFile             string
	DevTLSCertFile     string
	DevTLSKeyFile      string
	LogLevel           string
	Version            string
}
