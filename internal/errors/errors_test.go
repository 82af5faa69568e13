package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"
)

func TestConstructors_Status(t *testing.T) {
	tests := []struct {
		name   string
		err    *ServiceError
		status int
		code   ErrorCode
	}{
		{"bad request", BadRequest("x"), http.StatusBadRequest, CodeBadRequest},
		{"validation", Validation("email", "bad"), http.StatusBadRequest, CodeValidation},
		{"unauthorized", Unauthorized(""), http.StatusUnauthorized, CodeUnauthorized},
		{"invalid token", InvalidToken(nil), http.StatusUnauthorized, CodeInvalidToken},
		{"signature", InvalidSignature("x"), http.StatusBadRequest, CodeInvalidSignature},
		{"forbidden", Forbidden("x"), http.StatusForbidden, CodeForbidden},
		{"not found", NotFound("order", "1"), http.StatusNotFound, CodeNotFound},
		{"conflict", Conflict("x"), http.StatusConflict, CodeConflict},
		{"rate", RateLimitExceeded(10, "1s"), http.StatusTooManyRequests, CodeRateLimited},
		{"upstream", Upstream("razorpay", nil), http.StatusBadGateway, CodeUpstream},
		{"internal", Internal("x", nil), http.StatusInternalServerError, CodeInternal},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if tc.err.HTTPStatus != tc.status {
				t.Errorf("HTTPStatus = %d, want %d", tc.err.HTTPStatus, tc.status)
			}
			if tc.err.Code != tc.code {
				t.Errorf("Code = %s, want %s", tc.err.Code, tc.code)
			}
		})
	}
}

func TestGetServiceError_Wrapped(t *testing.T) {
	cause := stderrors.New("boom")
	wrapped := fmt.Errorf("checkout: %w", Upstream("razorpay", cause))

	se := GetServiceError(wrapped)
	if se == nil {
		t.Fatal("GetServiceError() returned nil for wrapped ServiceError")
	}
	if !stderrors.Is(wrapped, cause) {
		t.Error("cause should be reachable through Unwrap")
	}
	if se.Details["service"] != "razorpay" {
		t.Errorf("details[service] = %v, want razorpay", se.Details["service"])
	}
	if !IsCode(wrapped, CodeUpstream) {
		t.Error("IsCode() = false, want true")
	}
	if GetServiceError(cause) != nil {
		t.Error("plain error should not be a ServiceError")
	}
}
