package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/conclave/types"
)

// =============================================================================
// 📦 通用响应结构
// =============================================================================

// Response 统一响应结构
type Response struct {
	Success   bool       `json:"success"`
	Data      any        `json:"data,omitempty"`
	Error     *ErrorInfo `json:"error,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
	RequestID string     `json:"request_id,omitempty"`
}

// ErrorInfo 错误信息结构
type ErrorInfo struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable,omitempty"`
}

// WriteJSON 写入 JSON 响应
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)

	// 响应头已写出，编码失败只能丢弃
	_ = json.NewEncoder(w).Encode(data)
}

// WriteSuccess 写入成功响应
func WriteSuccess(w http.ResponseWriter, requestID string, data any) {
	WriteJSON(w, http.StatusOK, Response{
		Success:   true,
		Data:      data,
		Timestamp: time.Now(),
		RequestID: requestID,
	})
}

// WriteError 写入错误响应，非 types.Error 按内部错误处理
func WriteError(w http.ResponseWriter, requestID string, err error, logger *zap.Logger) {
	var typed *types.Error
	if !errors.As(err, &typed) {
		typed = types.NewError(types.ErrorCode("INTERNAL_ERROR"), "internal error").WithCause(err)
	}
	status := httpStatus(typed.Code)

	if logger != nil {
		logger.Warn("request failed",
			zap.String("code", string(typed.Code)),
			zap.Int("status", status),
			zap.Error(err),
		)
	}

	WriteJSON(w, status, Response{
		Success: false,
		Error: &ErrorInfo{
			Code:      string(typed.Code),
			Message:   typed.Message,
			Retryable: typed.Retryable,
		},
		Timestamp: time.Now(),
		RequestID: requestID,
	})
}

func httpStatus(code types.ErrorCode) int {
	switch code {
	case types.ErrCoordinatorStopped, types.ErrNoResponders:
		return http.StatusServiceUnavailable
	case types.ErrRoundInProgress:
		return http.StatusConflict
	case types.ErrUpstreamTimeout, types.ErrRoundStalled:
		return http.StatusGatewayTimeout
	case types.ErrInvalidConfig:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
