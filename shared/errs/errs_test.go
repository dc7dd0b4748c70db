package errs_test

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/raidiam/priora-mock-tpp/shared/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorMessage(t *testing.T) {
	tests := []struct {
		name string
		err  *errs.Error
		want string
	}{
		{
			name: "without_cause",
			err:  errs.InvalidArgument("providerCode is required"),
			want: "invalid_argument: providerCode is required",
		},
		{
			name: "with_cause",
			err:  errs.Network("sandbox unreachable", errors.New("connection refused")),
			want: "network: sandbox unreachable: connection refused",
		},
		{
			name: "remote_api",
			err:  errs.RemoteAPI("Consent not found", http.StatusNotFound, map[string]any{"Message": "Consent not found"}),
			want: "remote_api: Consent not found",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.err.Error())
		})
	}
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  *errs.Error
		want int
	}{
		{
			name: "invalid_argument_is_bad_request",
			err:  errs.InvalidArgument("bad"),
			want: http.StatusBadRequest,
		},
		{
			name: "remote_status_passed_through",
			err:  errs.RemoteAPI("forbidden", http.StatusForbidden, nil),
			want: http.StatusForbidden,
		},
		{
			name: "token_exchange_with_remote_status",
			err:  errs.TokenExchange("invalid_client", http.StatusUnauthorized, nil, nil),
			want: http.StatusUnauthorized,
		},
		{
			name: "token_exchange_without_response",
			err:  errs.TokenExchange("dial failed", 0, nil, errors.New("dial tcp")),
			want: http.StatusInternalServerError,
		},
		{
			name: "config_is_internal",
			err:  errs.Config("missing key", nil),
			want: http.StatusInternalServerError,
		},
		{
			name: "discovery_is_internal",
			err:  errs.Discovery("missing token_endpoint", nil),
			want: http.StatusInternalServerError,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.err.HTTPStatus())
		})
	}
}

func TestAsThroughWrapping(t *testing.T) {
	base := errs.Discovery("authorization_endpoint missing", nil)
	wrapped := fmt.Errorf("create ais consent: %w", base)

	got, ok := errs.As(wrapped)
	require.True(t, ok)
	assert.Same(t, base, got)
	assert.True(t, errs.Is(wrapped, errs.KindDiscovery))
	assert.False(t, errs.Is(wrapped, errs.KindNetwork))

	_, ok = errs.As(errors.New("plain"))
	assert.False(t, ok)
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := errs.Config("cannot read key file", cause)
	assert.ErrorIs(t, err, cause)
}

func TestText(t *testing.T) {
	tests := []struct {
		name string
		err  *errs.Error
		want string
	}{
		{
			name: "message_only",
			err:  errs.RemoteAPI("Consent not found", 404, nil),
			want: "Consent not found",
		},
		{
			name: "cause_appended",
			err:  errs.Network("GET https://sandbox.example/x failed", errors.New("dial tcp: connection refused")),
			want: "GET https://sandbox.example/x failed: dial tcp: connection refused",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.err.Text())
		})
	}
}
