// errors стандартизирует ответы об ошибках HTTP API.
// На вход принимает ошибку сервисного слоя (sentinel из internal/service),
// на выход даёт HTTP-статус и безопасное сообщение без утечки деталей.
package errors

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/pribylovaa/jwt-auth-service/internal/service"
)

// StatusClientClosedRequest — нестандартный код "клиент закрыл соединение".
const StatusClientClosedRequest = 499

var (
	// ErrBadRequest — тело запроса не разобрано (битый JSON, лишние поля).
	ErrBadRequest = errors.New("bad request")
	// ErrUnauthorized — access-токен отсутствует или недействителен.
	ErrUnauthorized = errors.New("unauthorized")
)

// APIError — единый формат ошибки.
// Code — стабильный машиночитаемый код, Message — текст для человека,
// RequestID — из X-Request-Id, если есть.
type APIError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// ErrorResponse — корневой объект в ответе.
type ErrorResponse struct {
	Error APIError `json:"error"`
}

// ToHTTP конвертирует ошибку в HTTP-статус и тело ответа.
//
//   - ErrBadRequest и ошибки валидации -> 400 "Invalid request.";
//   - service.ErrEmailTaken -> 400 "Email already exists.";
//   - service.ErrInvalidCredentials -> 401 "Invalid credentials";
//   - service.ErrInvalidToken -> 401 "Invalid refresh token";
//   - service.ErrTokenExpired, ErrUnauthorized -> 401;
//   - отмена/дедлайн -> 499/504;
//   - прочее (включая service.ErrStorage и nil) -> 500 "Internal server error.".
func ToHTTP(err error) (int, ErrorResponse) {
	status, code, msg := classify(err)

	return status, ErrorResponse{
		Error: APIError{
			Code:    code,
			Message: msg,
		},
	}
}

func classify(err error) (int, string, string) {
	switch {
	case err == nil:
		// Программная ошибка вызова: не отдаём 200 с телом ошибки.
		return http.StatusInternalServerError, "internal", "Internal server error."
	case errors.Is(err, service.ErrEmailTaken):
		return http.StatusBadRequest, "email_taken", "Email already exists."
	case errors.Is(err, ErrBadRequest),
		errors.Is(err, service.ErrInvalidInput),
		errors.Is(err, service.ErrInvalidEmail),
		errors.Is(err, service.ErrEmptyPassword),
		errors.Is(err, service.ErrWeakPassword):
		return http.StatusBadRequest, "invalid_argument", "Invalid request."
	case errors.Is(err, service.ErrInvalidCredentials):
		return http.StatusUnauthorized, "invalid_credentials", "Invalid credentials"
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized, "unauthenticated", "Invalid access token"
	case errors.Is(err, service.ErrTokenExpired):
		return http.StatusUnauthorized, "token_expired", "Access token expired"
	case errors.Is(err, service.ErrInvalidToken):
		return http.StatusUnauthorized, "invalid_token", "Invalid refresh token"
	case errors.Is(err, context.Canceled):
		return StatusClientClosedRequest, "canceled", "Request canceled."
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "deadline_exceeded", "Request timed out."
	default:
		return http.StatusInternalServerError, "internal", "Internal server error."
	}
}

// WriteError пишет статус и тело ошибки, добавляя request_id из заголовка.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	status, resp := ToHTTP(err)

	if rid := r.Header.Get("X-Request-Id"); rid != "" {
		resp.Error.RequestID = rid
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}
