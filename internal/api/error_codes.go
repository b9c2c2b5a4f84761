// internal/api/error_codes.go
package api

// API错误代码常量
const (
	// 通用错误
	ErrorBadRequest    = "BAD_REQUEST"
	ErrorNotFound      = "NOT_FOUND"
	ErrorInternalError = "INTERNAL_ERROR"
	ErrorConflict      = "CONFLICT"
	ErrorRateLimited   = "RATE_LIMIT_EXCEEDED"
	ErrorUnauthorized  = "UNAUTHORIZED"

	// 会话相关错误
	ErrorSessionNotFound      = "SESSION_NOT_FOUND"
	ErrorConversationNotFound = "CONVERSATION_NOT_FOUND"
	ErrorResponseInvalid      = "RESPONSE_INVALID"
	ErrorNoResponseMenu       = "NO_RESPONSE_MENU"
	ErrorDatabaseUnavailable  = "DATABASE_UNAVAILABLE"

	// 存档相关错误
	ErrorSlotInvalid   = "SLOT_INVALID"
	ErrorSlotEmpty     = "SLOT_EMPTY"
	ErrorSaveFailed    = "SAVE_FAILED"
	ErrorSaverNotFound = "SAVER_NOT_FOUND"
	ErrorSaverConflict = "SAVER_CONFLICT"
	ErrorSceneInvalid  = "SCENE_INVALID"

	// 变量相关错误
	ErrorVariableInvalid = "VARIABLE_INVALID"
)
