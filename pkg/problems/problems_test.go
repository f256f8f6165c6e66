package problems

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBase(t *testing.T) {
	t.Setenv("PROBLEM_BASE_URL", "")
	t.Setenv("BASE_PUBLIC_URL", "")
	assert.Equal(t, "https://example.com/problems", Base())

	t.Setenv("BASE_PUBLIC_URL", "https://relay.internal/")
	assert.Equal(t, "https://relay.internal/problems", Base())

	t.Setenv("PROBLEM_BASE_URL", "https://docs.internal/errors/")
	assert.Equal(t, "https://docs.internal/errors/unknown-provider", Type("unknown-provider"))
}

func TestWrite(t *testing.T) {
	t.Setenv("PROBLEM_BASE_URL", "")
	t.Setenv("BASE_PUBLIC_URL", "")
	rec := httptest.NewRecorder()
	Write(rec, http.StatusNotFound, "unknown-provider", "Unknown provider", "slack is not served here")

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "https://example.com/problems/unknown-provider", body["type"])
	assert.Equal(t, float64(404), body["status"])
	assert.Equal(t, "slack is not served here", body["detail"])

	rec = httptest.NewRecorder()
	Write(rec, http.StatusUnauthorized, "unauthorized", "Unauthorized", "")
	body = map[string]any{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.NotContains(t, body, "detail")
}
