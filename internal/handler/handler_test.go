package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"otp-gateway/internal/config"
	"otp-gateway/internal/service"
)

type stubAdapter struct {
	reference string
	sendErr   error
}

func (s *stubAdapter) Connect(context.Context, config.Credentials) (service.Session, error) {
	return struct{}{}, nil
}

func (s *stubAdapter) SendCode(context.Context, service.Session, config.Credentials, string) (*service.SentCode, error) {
	if s.sendErr != nil {
		return nil, s.sendErr
	}
	return &service.SentCode{DeliveryReference: s.reference}, nil
}

func (s *stubAdapter) Disconnect(context.Context, service.Session) error {
	return nil
}

var validCreds = config.Credentials{APIID: 12345, APIHash: "0123456789abcdef"}

func newTestRouter(t *testing.T, adapter service.Adapter, creds config.Credentials, rateLimit int) http.Handler {
	t.Helper()
	logger := zap.NewNop()
	svc := service.NewOTPService(adapter, creds, logger, service.WithTimeout(time.Second))
	return NewRouter(NewOTPHandler(svc, logger), config.ServerConfig{
		RateLimitPerMinute: rateLimit,
		AllowedOrigins:     []string{"*"},
	}, logger)
}

func doRequest(t *testing.T, router http.Handler, method, path, body string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var decoded map[string]interface{}
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded), rec.Body.String())
	}
	return rec, decoded
}

func TestSendOTP_SimulatedWithoutCredentials(t *testing.T) {
	router := newTestRouter(t, &stubAdapter{}, config.Credentials{}, 0)

	rec, body := doRequest(t, router, http.MethodPost, "/send-otp", `{"phone":"+628123456789"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "SIMULATION", body["method"])
	assert.Equal(t, "+628123456789", body["phone"])
	assert.Equal(t, "NoCredentials", body["reason"])
	assert.NotEmpty(t, body["note"])
	assert.NotEmpty(t, body["timestamp"])

	code, ok := body["otp_code"].(float64)
	require.True(t, ok)
	assert.GreaterOrEqual(t, code, float64(10000))
	assert.LessOrEqual(t, code, float64(99999))
}

func TestSendOTP_NormalizesWhitespace(t *testing.T) {
	router := newTestRouter(t, &stubAdapter{}, config.Credentials{}, 0)

	rec, body := doRequest(t, router, http.MethodPost, "/send-otp", `{"phone":"+62 812 3456 789"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "+628123456789", body["phone"])
}

func TestSendOTP_DeliveredViaTelegram(t *testing.T) {
	router := newTestRouter(t, &stubAdapter{reference: "abc123hash"}, validCreds, 0)

	rec, body := doRequest(t, router, http.MethodPost, "/send-otp", `{"phone":"+628123456789"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "TELEGRAM", body["method"])
	assert.Equal(t, "abc123hash", body["phone_code_hash"])
	assert.NotContains(t, body, "otp_code")
}

func TestSendOTP_FloodWaitFallsBack(t *testing.T) {
	router := newTestRouter(t, &stubAdapter{sendErr: errors.New("rpc error code 420: FLOOD_WAIT_30")}, validCreds, 0)

	rec, body := doRequest(t, router, http.MethodPost, "/send-otp", `{"phone":"+628123456789"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "SIMULATION", body["method"])
	assert.Equal(t, "FloodLimited", body["reason"])
	assert.NotContains(t, body["message"], "FLOOD_WAIT")
}

func TestSendOTP_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{"invalid format", `{"phone":"0812345"}`, "Invalid phone format. Use international format, e.g. +628123456789"},
		{"missing phone", `{}`, "Phone number is required"},
		{"blank phone", `{"phone":"   "}`, "Phone number is required"},
		{"empty body", ``, "Phone number is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newTestRouter(t, &stubAdapter{}, validCreds, 0)

			rec, body := doRequest(t, router, http.MethodPost, "/send-otp", tt.body)

			require.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, false, body["success"])
			assert.Equal(t, tt.wantErr, body["error"])
		})
	}
}

func TestSendOTP_MalformedBodyFallsBack(t *testing.T) {
	router := newTestRouter(t, &stubAdapter{}, validCreds, 0)

	rec, body := doRequest(t, router, http.MethodPost, "/send-otp", `{"phone":`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "SIMULATION", body["method"])
	assert.Equal(t, "InternalError", body["reason"])
	assert.NotNil(t, body["otp_code"])
}

func TestSendOTP_RateLimited(t *testing.T) {
	router := newTestRouter(t, &stubAdapter{}, config.Credentials{}, 2)

	for i := 0; i < 2; i++ {
		rec, _ := doRequest(t, router, http.MethodPost, "/send-otp", `{"phone":"+628123456789"}`)
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec, body := doRequest(t, router, http.MethodPost, "/send-otp", `{"phone":"+628123456789"}`)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, false, body["success"])
}

func TestSendOTP_NoRateLimitByDefault(t *testing.T) {
	router := newTestRouter(t, &stubAdapter{}, config.Credentials{}, 0)

	for i := 0; i < 50; i++ {
		rec, body := doRequest(t, router, http.MethodPost, "/send-otp", `{"phone":"+628123456789"}`)
		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, true, body["success"])
	}
}

func TestRequestTimeout(t *testing.T) {
	assert.Equal(t, defaultRequestTimeout, requestTimeout(config.ServerConfig{WriteTimeout: 30 * time.Second}))
	assert.Equal(t, 90*time.Second, requestTimeout(config.ServerConfig{WriteTimeout: 90 * time.Second}))
}

func TestHealth(t *testing.T) {
	t.Run("healthy with credentials", func(t *testing.T) {
		router := newTestRouter(t, &stubAdapter{}, validCreds, 0)
		rec, body := doRequest(t, router, http.MethodGet, "/health", "")

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "healthy", body["status"])
		assert.Equal(t, "configured", body["telegram_api"])
		assert.Equal(t, true, body["api_id_set"])
		assert.Equal(t, true, body["api_hash_set"])
	})

	t.Run("degraded with partial credentials", func(t *testing.T) {
		router := newTestRouter(t, &stubAdapter{}, config.Credentials{APIID: 12345}, 0)
		rec, body := doRequest(t, router, http.MethodGet, "/health", "")

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "degraded", body["status"])
		assert.Equal(t, "not_configured", body["telegram_api"])
		assert.Equal(t, true, body["api_id_set"])
		assert.Equal(t, false, body["api_hash_set"])
	})
}

func TestRootAndEcho(t *testing.T) {
	router := newTestRouter(t, &stubAdapter{}, config.Credentials{}, 0)

	rec, body := doRequest(t, router, http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OTP Server ONLINE", body["status"])
	assert.Contains(t, body, "endpoints")

	rec, body = doRequest(t, router, http.MethodPost, "/test", `{"hello":"world"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, map[string]interface{}{"hello": "world"}, body["received"])
}

func TestNotFoundAndMethodNotAllowed(t *testing.T) {
	router := newTestRouter(t, &stubAdapter{}, config.Credentials{}, 0)

	rec, body := doRequest(t, router, http.MethodGet, "/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "endpoint not found", body["error"])

	rec, body = doRequest(t, router, http.MethodGet, "/send-otp", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, "method not allowed", body["error"])
}
