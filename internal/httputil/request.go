package httputil

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// maxJSONBody bounds JSON request bodies. Bulk share payloads carry one
// wrapped key per file, so this is larger than a typical API limit.
const maxJSONBody = 10 << 20

// ParseJSON decodes JSON from the request body into the given destination.
// It limits the request body size to prevent abuse and provides clear error messages.
func ParseJSON(w http.ResponseWriter, r *http.Request, dest any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(dest); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}

	return nil
}

// OptionalQuery returns a pointer to the query parameter value, nil when absent or empty
func OptionalQuery(r *http.Request, key string) *string {
	v := r.URL.Query().Get(key)
	if v == "" {
		return nil
	}
	return &v
}
