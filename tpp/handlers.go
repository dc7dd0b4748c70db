package tpp

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/raidiam/priora-mock-tpp/shared/errs"
	"github.com/raidiam/priora-mock-tpp/shared/metrics"
	"github.com/raidiam/priora-mock-tpp/shared/model"
	"github.com/rs/cors"
	"github.com/unrolled/secure"
)

const (
	ServiceName = "priora-mock-tpp"

	maxBodyBytes = 1 << 20
)

// metricsRoute is listed in the directory only when metrics are enabled.
var metricsRoute = model.RouteInfo{Method: http.MethodGet, Path: "/metrics", Description: "Prometheus metrics"}

// Directory is served on GET / so the simulator is self-describing.
var Directory = []model.RouteInfo{
	{Method: http.MethodGet, Path: "/health", Description: "service health"},
	{Method: http.MethodPost, Path: "/api/ais/consent", Description: "create an account-access consent and its authorization URL"},
	{Method: http.MethodGet, Path: "/api/ais/consent/{consentId}", Description: "get an account-access consent"},
	{Method: http.MethodDelete, Path: "/api/ais/consent/{consentId}", Description: "revoke an account-access consent"},
	{Method: http.MethodPost, Path: "/api/ais/token", Description: "exchange an authorization code for tokens"},
	{Method: http.MethodGet, Path: "/api/ais/accounts", Description: "list accounts"},
	{Method: http.MethodGet, Path: "/api/ais/accounts/{accountId}/transactions", Description: "list account transactions"},
	{Method: http.MethodGet, Path: "/api/ais/accounts/{accountId}/balances", Description: "list account balances"},
	{Method: http.MethodGet, Path: "/api/ais/accounts/{accountId}/standing-orders", Description: "list account standing orders"},
	{Method: http.MethodPost, Path: "/api/ais/accounts/refresh", Description: "refresh account data"},
	{Method: http.MethodGet, Path: "/api/ais/accounts/refresh/status", Description: "account refresh status"},
	{Method: http.MethodPost, Path: "/api/pis/consent", Description: "create a payment consent and its authorization URL"},
	{Method: http.MethodGet, Path: "/api/pis/consent/{consentId}", Description: "get a payment consent"},
}

// Handler creates the HTTP handler for the simulator's JSON API
func Handler(host, version string, tppService *TPP, m *metrics.Metrics) http.Handler {
	secureMiddleware := secure.New(secure.Options{
		FrameDeny:             true,
		ContentTypeNosniff:    true,
		BrowserXssFilter:      true,
		ContentSecurityPolicy: "default-src 'none'; frame-ancestors 'none';",
	})

	corsMiddleware := cors.New(cors.Options{
		AllowedOrigins:   []string{host},
		AllowCredentials: true,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodHead},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
	})

	mux := http.NewServeMux()

	routes := Directory
	if m != nil {
		routes = slices.Insert(slices.Clone(Directory), 1, metricsRoute)
		mux.Handle("GET /metrics", m.Handler())
	}
	mux.Handle("GET /{$}", directoryHandler(version, routes))
	mux.Handle("GET /health", healthHandler(version))

	// ais
	mux.Handle("POST /api/ais/consent", createAISConsentHandler(tppService))
	mux.Handle("GET /api/ais/consent/{consentId}", getAISConsentHandler(tppService))
	mux.Handle("DELETE /api/ais/consent/{consentId}", revokeAISConsentHandler(tppService))
	mux.Handle("POST /api/ais/token", tokenHandler(tppService))
	mux.Handle("GET /api/ais/accounts", accountsHandler(tppService.Accounts))
	mux.Handle("GET /api/ais/accounts/{accountId}/transactions", accountsHandler(tppService.Transactions))
	mux.Handle("GET /api/ais/accounts/{accountId}/balances", accountsHandler(tppService.Balances))
	mux.Handle("GET /api/ais/accounts/{accountId}/standing-orders", accountsHandler(tppService.StandingOrders))
	mux.Handle("POST /api/ais/accounts/refresh", accountsHandler(tppService.RefreshAccounts))
	mux.Handle("GET /api/ais/accounts/refresh/status", accountsHandler(tppService.RefreshStatus))

	// pis
	mux.Handle("POST /api/pis/consent", createPISConsentHandler(tppService))
	mux.Handle("GET /api/pis/consent/{consentId}", getPISConsentHandler(tppService))

	var h http.Handler = mux
	if m != nil {
		h = m.InstrumentHandler(h)
	}
	return corsMiddleware.Handler(secureMiddleware.Handler(h))
}

func directoryHandler(version string, routes []model.RouteInfo) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := writeJSON(w, model.DirectoryResponse{
			Service:   ServiceName,
			Version:   version,
			Endpoints: routes,
		}, http.StatusOK); err != nil {
			slog.ErrorContext(r.Context(), "failed to write JSON response", "error", err)
		}
	})
}

func healthHandler(version string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := writeJSON(w, model.HealthResponse{
			Status:    "healthy",
			Timestamp: time.Now().UTC().Format(ExpirationLayout),
			Version:   version,
			Service:   ServiceName,
		}, http.StatusOK); err != nil {
			slog.ErrorContext(r.Context(), "failed to write JSON response", "error", err)
		}
	})
}

// AIS handlers

func createAISConsentHandler(tppService *TPP) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		slog.InfoContext(r.Context(), "creating ais consent")
		var body model.CreateAISConsentRequest
		if err := decodeBody(w, r, &body); err != nil {
			renderError(w, r, err)
			return
		}
		if body.ProviderCode == "" {
			body.ProviderCode = r.URL.Query().Get("providerCode")
		}

		res, err := tppService.CreateAISConsent(r.Context(), body)
		if err != nil {
			slog.ErrorContext(r.Context(), "create ais consent failed", "error", err)
			renderError(w, r, err)
			return
		}
		renderData(w, r, res)
	})
}

func getAISConsentHandler(tppService *TPP) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		consentID := r.PathValue("consentId")
		slog.InfoContext(r.Context(), "fetching ais consent", "consent_id", consentID)
		data, err := tppService.GetAISConsentDetails(r.Context(), r.URL.Query().Get("providerCode"), consentID)
		if err != nil {
			slog.ErrorContext(r.Context(), "get ais consent failed", "error", err)
			renderError(w, r, err)
			return
		}
		renderData(w, r, data)
	})
}

func revokeAISConsentHandler(tppService *TPP) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		consentID := r.PathValue("consentId")
		slog.InfoContext(r.Context(), "revoking ais consent", "consent_id", consentID)
		revoked, err := tppService.RevokeAISConsent(r.Context(), r.URL.Query().Get("providerCode"), consentID)
		if err != nil {
			slog.ErrorContext(r.Context(), "revoke ais consent failed", "error", err)
			renderError(w, r, err)
			return
		}
		if err := writeJSON(w, model.RevokeResponse{Success: true, Revoked: revoked}, http.StatusOK); err != nil {
			slog.ErrorContext(r.Context(), "failed to write JSON response", "error", err)
		}
	})
}

func tokenHandler(tppService *TPP) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		slog.InfoContext(r.Context(), "starting token exchange")
		var body model.TokenExchangeRequest
		if err := decodeBody(w, r, &body); err != nil {
			renderError(w, r, err)
			return
		}
		if body.ProviderCode == "" {
			body.ProviderCode = r.URL.Query().Get("providerCode")
		}

		tokens, err := tppService.ExchangeAuthorizationCode(r.Context(), body)
		if err != nil {
			slog.ErrorContext(r.Context(), "token exchange failed", "error", err)
			renderError(w, r, err)
			return
		}
		renderData(w, r, tokens)
	})
}

// accountsHandler adapts an account data call. The provider code comes from
// the query and the user token from the Authorization header.
func accountsHandler(call func(ctx context.Context, req AccountRequest) (json.RawMessage, error)) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		slog.InfoContext(r.Context(), "fetching account data", "path", r.URL.Path)
		data, err := call(r.Context(), AccountRequest{
			ProviderCode:  r.URL.Query().Get("providerCode"),
			Authorization: r.Header.Get("Authorization"),
			AccountID:     r.PathValue("accountId"),
		})
		if err != nil {
			slog.ErrorContext(r.Context(), "account data call failed", "error", err)
			renderError(w, r, err)
			return
		}
		renderData(w, r, data)
	})
}

// PIS handlers

func createPISConsentHandler(tppService *TPP) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		slog.InfoContext(r.Context(), "creating pis consent")
		var body model.CreatePISConsentRequest
		if err := decodeBody(w, r, &body); err != nil {
			renderError(w, r, err)
			return
		}
		if body.ProviderCode == "" {
			body.ProviderCode = r.URL.Query().Get("providerCode")
		}

		res, err := tppService.CreatePISConsent(r.Context(), body)
		if err != nil {
			slog.ErrorContext(r.Context(), "create pis consent failed", "error", err)
			renderError(w, r, err)
			return
		}
		renderData(w, r, res)
	})
}

func getPISConsentHandler(tppService *TPP) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		consentID := r.PathValue("consentId")
		slog.InfoContext(r.Context(), "fetching pis consent", "consent_id", consentID)
		q := r.URL.Query()
		data, err := tppService.GetPISConsentDetails(r.Context(), q.Get("providerCode"), q.Get("paymentProduct"), consentID)
		if err != nil {
			slog.ErrorContext(r.Context(), "get pis consent failed", "error", err)
			renderError(w, r, err)
			return
		}
		renderData(w, r, data)
	})
}

// Utility functions

// decodeBody reads an optional JSON body. An empty body leaves dst untouched.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	if r.Body == nil {
		return nil
	}
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(dst)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	slog.ErrorContext(r.Context(), "failed to decode request body", "error", err)
	return errs.InvalidArgument("invalid JSON body: " + err.Error())
}

func renderData(w http.ResponseWriter, r *http.Request, data any) {
	if err := writeJSON(w, model.SuccessResponse{Success: true, Data: data}, http.StatusOK); err != nil {
		slog.ErrorContext(r.Context(), "failed to write JSON response", "error", err)
	}
}

func writeJSON(w http.ResponseWriter, data any, status int) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(data)
}

// renderError answers with the error envelope. Tagged errors carry their
// own status and remote details; anything else is a 500.
func renderError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	resp := model.ErrorResponse{Error: err.Error()}
	if e, ok := errs.As(err); ok {
		status = e.HTTPStatus()
		resp.Error = e.Text()
		resp.Details = e.Details
	}
	if jsonErr := writeJSON(w, resp, status); jsonErr != nil {
		slog.ErrorContext(r.Context(), "failed to write JSON error response", "error", jsonErr, "original_error", err)
	}
}
