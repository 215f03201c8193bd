package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReject_EnvelopeShape(t *testing.T) {
	rr := httptest.NewRecorder()
	reject(rr, http.StatusForbidden, "forbidden", "admin role required")

	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	assert.Empty(t, rr.Header().Get("Retry-After"))
	var body rejection
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
	assert.Equal(t, rejection{Error: "admin role required", Code: "forbidden"}, body)
}

func TestReject_TooManyRequestsSetsRetryAfter(t *testing.T) {
	rr := httptest.NewRecorder()
	reject(rr, http.StatusTooManyRequests, "rate_limited", "too many requests")
	assert.Equal(t, "1", rr.Header().Get("Retry-After"))
}
