// internal/api/response_helpers.go
package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Corphon/DialogueEngine/internal/errors"
)

// APIResponse 统一的响应格式
type APIResponse struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Error     *APIError   `json:"error,omitempty"`
	Message   string      `json:"message,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	RequestID string      `json:"request_id,omitempty"`
}

// APIError 标准错误格式
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// ResponseHelper 响应助手类
type ResponseHelper struct{}

// NewResponseHelper 创建响应助手
func NewResponseHelper() *ResponseHelper {
	return &ResponseHelper{}
}

// Success 成功响应
func (rh *ResponseHelper) Success(c *gin.Context, data interface{}, message ...string) {
	rh.respond(c, http.StatusOK, data, message...)
}

// Created 创建成功响应
func (rh *ResponseHelper) Created(c *gin.Context, data interface{}, message ...string) {
	rh.respond(c, http.StatusCreated, data, message...)
}

func (rh *ResponseHelper) respond(c *gin.Context, status int, data interface{}, message ...string) {
	response := &APIResponse{
		Success:   true,
		Data:      data,
		Timestamp: time.Now(),
		RequestID: rh.getRequestID(c),
	}
	if len(message) > 0 {
		response.Message = message[0]
	}
	c.JSON(status, response)
}

// Error 错误响应
func (rh *ResponseHelper) Error(c *gin.Context, statusCode int, errorCode, message string, details ...string) {
	apiError := &APIError{
		Code:    errorCode,
		Message: message,
	}
	if len(details) > 0 {
		apiError.Details = details[0]
	}

	c.JSON(statusCode, &APIResponse{
		Success:   false,
		Error:     apiError,
		Timestamp: time.Now(),
		RequestID: rh.getRequestID(c),
	})
}

// BadRequest 400错误响应
func (rh *ResponseHelper) BadRequest(c *gin.Context, code, message string, details ...string) {
	if code == "" {
		code = ErrorBadRequest
	}
	rh.Error(c, http.StatusBadRequest, code, message, details...)
}

// NotFound 404错误响应
func (rh *ResponseHelper) NotFound(c *gin.Context, code, message string, details ...string) {
	if code == "" {
		code = ErrorNotFound
	}
	rh.Error(c, http.StatusNotFound, code, message, details...)
}

// Unauthorized 401错误响应
func (rh *ResponseHelper) Unauthorized(c *gin.Context, message string, details ...string) {
	rh.Error(c, http.StatusUnauthorized, ErrorUnauthorized, message, details...)
}

// Conflict 409错误响应
func (rh *ResponseHelper) Conflict(c *gin.Context, code, message string, details ...string) {
	if code == "" {
		code = ErrorConflict
	}
	rh.Error(c, http.StatusConflict, code, message, details...)
}

// InternalError 500错误响应
func (rh *ResponseHelper) InternalError(c *gin.Context, message string, details ...string) {
	rh.Error(c, http.StatusInternalServerError, ErrorInternalError, message, details...)
}

// ServiceError 将服务层错误映射为HTTP响应，notFoundCode 用于资源不存在的情况，
// 可选的 conflictCode 用于状态冲突
func (rh *ResponseHelper) ServiceError(c *gin.Context, err error, notFoundCode string, conflictCode ...string) {
	switch {
	case errors.IsValidationError(err):
		rh.BadRequest(c, "", err.Error())
	case errors.IsNotFoundError(err):
		rh.NotFound(c, notFoundCode, err.Error())
	case errors.IsConflictError(err):
		code := ""
		if len(conflictCode) > 0 {
			code = conflictCode[0]
		}
		rh.Conflict(c, code, err.Error())
	case errors.IsStorageError(err):
		rh.Error(c, http.StatusInternalServerError, ErrorSaveFailed, err.Error())
	default:
		rh.InternalError(c, err.Error())
	}
}

// getRequestID 获取请求ID
func (rh *ResponseHelper) getRequestID(c *gin.Context) string {
	return c.GetString(requestIDKey)
}
