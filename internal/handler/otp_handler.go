package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"otp-gateway/internal/models"
	"otp-gateway/internal/service"
	"otp-gateway/internal/util"

	"go.uber.org/zap"
)

const (
	maxBodyBytes     = 1 << 16
	simulationNote   = "Simulation mode - User must enter this code manually"
	telegramSentText = "OTP code sent to Telegram"
)

// OTPHandler serves the OTP endpoints.
type OTPHandler struct {
	otpService *service.OTPService
	logger     *zap.Logger
}

func NewOTPHandler(otpService *service.OTPService, logger *zap.Logger) *OTPHandler {
	return &OTPHandler{
		otpService: otpService,
		logger:     logger,
	}
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// SimulatedResponse carries a locally generated code.
type SimulatedResponse struct {
	Success   bool      `json:"success"`
	Method    string    `json:"method"`
	Phone     string    `json:"phone"`
	OTPCode   int       `json:"otp_code"`
	Reason    string    `json:"reason"`
	Message   string    `json:"message"`
	Note      string    `json:"note"`
	Timestamp time.Time `json:"timestamp"`
}

// DeliveredResponse reports a code sent through Telegram.
type DeliveredResponse struct {
	Success       bool      `json:"success"`
	Method        string    `json:"method"`
	Phone         string    `json:"phone"`
	PhoneCodeHash string    `json:"phone_code_hash"`
	Message       string    `json:"message"`
	Timestamp     time.Time `json:"timestamp"`
}

type HealthResponse struct {
	Status      string    `json:"status"`
	TelegramAPI string    `json:"telegram_api"`
	APIIDSet    bool      `json:"api_id_set"`
	APIHashSet  bool      `json:"api_hash_set"`
	Timestamp   time.Time `json:"timestamp"`
}

// SendOTP handles POST /send-otp.
func (h *OTPHandler) SendOTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req models.OTPRequest
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		result := h.otpService.Fallback(ctx, err)
		h.respondWithJSON(w, http.StatusOK, newSimulatedResponse(result))
		return
	}

	result := h.otpService.Dispatch(ctx, &req)
	switch result.Kind {
	case models.DispatchValidationFailure:
		h.respondWithError(w, http.StatusBadRequest, result.Message)
	case models.DispatchRealSuccess:
		h.respondWithJSON(w, http.StatusOK, DeliveredResponse{
			Success:       true,
			Method:        result.Method(),
			Phone:         result.Phone,
			PhoneCodeHash: result.DeliveryReference,
			Message:       telegramSentText,
			Timestamp:     time.Now().UTC(),
		})
	default:
		h.respondWithJSON(w, http.StatusOK, newSimulatedResponse(result))
	}
}

func newSimulatedResponse(result *models.DispatchResult) SimulatedResponse {
	return SimulatedResponse{
		Success:   true,
		Method:    result.Method(),
		Phone:     result.Phone,
		OTPCode:   result.Code,
		Reason:    string(result.Reason),
		Message:   result.Message,
		Note:      simulationNote,
		Timestamp: time.Now().UTC(),
	}
}

// Health handles GET /health. It reports configuration only and never
// contacts Telegram.
func (h *OTPHandler) Health(w http.ResponseWriter, r *http.Request) {
	creds := h.otpService.Credentials()

	resp := HealthResponse{
		Status:      "healthy",
		TelegramAPI: "configured",
		APIIDSet:    creds.APIID > 0,
		APIHashSet:  creds.APIHash != "",
		Timestamp:   time.Now().UTC(),
	}
	if !h.otpService.CredentialsConfigured() {
		resp.Status = "degraded"
		resp.TelegramAPI = "not_configured"
	}

	h.respondWithJSON(w, http.StatusOK, resp)
}

// Root handles GET /.
func (h *OTPHandler) Root(w http.ResponseWriter, r *http.Request) {
	h.respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"status": "OTP Server ONLINE",
		"endpoints": map[string]string{
			"send_otp": "POST /send-otp - Send OTP code",
			"health":   "GET /health - Server health check",
			"test":     "POST /test - Echo request body",
		},
		"time": time.Now().UTC(),
	})
}

// Echo handles POST /test. Bodies that are not JSON are echoed as null.
func (h *OTPHandler) Echo(w http.ResponseWriter, r *http.Request) {
	var received interface{}
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(&received); err != nil && !errors.Is(err, io.EOF) {
		h.logger.Debug("Test endpoint received non-JSON body", util.ErrorField(err))
		received = nil
	}

	h.respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"message":  "Test endpoint working",
		"received": received,
	})
}

// respondWithJSON sends a JSON response
func (h *OTPHandler) respondWithJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	writeJSON(w, statusCode, data, h.logger)
}

// respondWithError sends an error response
func (h *OTPHandler) respondWithError(w http.ResponseWriter, statusCode int, message string) {
	h.logger.Debug("HTTP error response",
		util.Int("status_code", statusCode),
		util.String("message", message),
	)
	h.respondWithJSON(w, statusCode, ErrorResponse{Success: false, Error: message})
}

func writeJSON(w http.ResponseWriter, statusCode int, data interface{}, logger *zap.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("Failed to encode JSON response", util.ErrorField(err))
	}
}
