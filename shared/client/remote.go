package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/tidwall/gjson"
)

// messagePaths are tried in order against a remote error body: OAuth error
// responses first, then the Open Banking error envelope.
var messagePaths = []string{
	"error_description",
	"error.message",
	"error",
	"Errors.0.Message",
	"Message",
	"message",
	"errors.0.message",
}

// RemoteMessage extracts a human-readable message from a sandbox error body,
// falling back to the HTTP status.
func RemoteMessage(body []byte, status int) string {
	if gjson.ValidBytes(body) {
		for _, path := range messagePaths {
			r := gjson.GetBytes(body, path)
			if r.Type == gjson.String && r.Str != "" {
				return r.Str
			}
		}
	}
	if status == 0 {
		return "sandbox request failed"
	}
	return fmt.Sprintf("sandbox returned %d %s", status, http.StatusText(status))
}

// details keeps a remote body for the error response: JSON as-is, other
// text as a string, nothing when empty.
func details(body []byte) any {
	trimmed := bytes.TrimSpace(body)
	switch {
	case len(trimmed) == 0:
		return nil
	case json.Valid(trimmed):
		return json.RawMessage(trimmed)
	default:
		return string(trimmed)
	}
}
