package common

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteErrorUsesAppErrorShape(t *testing.T) {
	rr := httptest.NewRecorder()
	err := fmt.Errorf("wrapped: %w", BadRequest("invalid payload", map[string]any{"fields": map[string]string{"Items": "required"}}))
	WriteError(rr, err)

	require.Equal(t, http.StatusBadRequest, rr.Code)
	var body struct {
		Error struct {
			Code    string         `json:"code"`
			Message string         `json:"message"`
			Details map[string]any `json:"details"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Equal(t, "BAD_REQUEST", body.Error.Code)
	require.Equal(t, "invalid payload", body.Error.Message)
	require.Contains(t, body.Error.Details, "fields")
}

func TestWriteErrorHidesUnknownErrors(t *testing.T) {
	rr := httptest.NewRecorder()
	WriteError(rr, errors.New("db password leaked"))
	require.Equal(t, http.StatusInternalServerError, rr.Code)
	require.NotContains(t, rr.Body.String(), "leaked")
	require.Contains(t, rr.Body.String(), `"code":"INTERNAL"`)
}

func TestAppErrorUnwrap(t *testing.T) {
	cause := errors.New("catalog down")
	err := NewAppError("CATALOG_UNAVAILABLE", "catalog unavailable", http.StatusServiceUnavailable, cause)
	require.ErrorIs(t, err, cause)
	require.Equal(t, "catalog down", err.Error())
	require.Equal(t, "x", NewAppError("X", "x", http.StatusTeapot, nil).Error())
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.1:5000"
	require.Equal(t, "192.0.2.1", ClientIP(req))

	req.Header.Set("X-Real-IP", "198.51.100.7")
	require.Equal(t, "198.51.100.7", ClientIP(req))

	req.Header.Set("X-Forwarded-For", " 203.0.113.9 , 10.0.0.1")
	require.Equal(t, "203.0.113.9", ClientIP(req))

	req.Header.Set("X-Forwarded-For", "unknown, 2001:db8::1")
	require.Equal(t, "2001:db8::1", ClientIP(req))

	req.Header.Del("X-Forwarded-For")
	req.Header.Del("X-Real-IP")
	req.RemoteAddr = "[::ffff:192.0.2.5]:443"
	require.Equal(t, "192.0.2.5", ClientIP(req))
	require.Empty(t, ClientIP(nil))
}

func TestSHA256Hex(t *testing.T) {
	require.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", SHA256Hex(nil))
}
