package httputil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRespondErrorWithExtras(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondErrorWithExtras(rec, http.StatusConflict, "file is already shared with this user", map[string]any{
		"resource_type": "file_grant",
		"resource_id":   "g1",
		"status":        "ignored",
	})

	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
	require.Equal(t, noStore, rec.Header().Get("Cache-Control"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, float64(http.StatusConflict), body["status"])
	require.Equal(t, "Conflict", body["title"])
	require.Equal(t, "g1", body["resource_id"])
	require.Equal(t, "file_grant", body["resource_type"])
	require.Contains(t, body["type"], "rfc9110")
}

func TestRespondError_UnregisteredStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondError(rec, http.StatusTeapot, "")

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "about:blank", body["type"])
	require.NotContains(t, body, "detail")
}

func TestRespondJSON_UnencodableFallsBackTo500(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondJSON(rec, http.StatusOK, map[string]any{"bad": make(chan int)})

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
}
