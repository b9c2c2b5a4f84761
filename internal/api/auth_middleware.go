// internal/api/auth_middleware.go
package api

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/Corphon/DialogueEngine/internal/auth"
	"github.com/Corphon/DialogueEngine/internal/utils"
)

const (
	clientIDKey      = "client_id"
	authenticatedKey = "client_authenticated"
	guestClientID    = "guest"
)

// AuthMiddleware 校验 Bearer 令牌。tokens 为 nil 时所有请求以 guest 身份通过。
// WebSocket 客户端无法设置请求头，可以改用 token 查询参数
func AuthMiddleware(tokens *auth.TokenConfig, logger *utils.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = utils.GetLogger()
	}
	helper := NewResponseHelper()
	return func(c *gin.Context) {
		if tokens == nil {
			c.Set(clientIDKey, guestClientID)
			c.Set(authenticatedKey, false)
			c.Next()
			return
		}

		token := strings.TrimSpace(strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer "))
		if token == "" {
			token = c.Query("token")
		}
		if token == "" {
			helper.Unauthorized(c, "缺少访问令牌")
			c.Abort()
			return
		}

		parsed, err := auth.ParseToken(token, tokens)
		if err != nil {
			logger.Warn("Rejected token", map[string]interface{}{
				"path":  c.Request.URL.Path,
				"error": err.Error(),
			})
			helper.Unauthorized(c, "无效的访问令牌", err.Error())
			c.Abort()
			return
		}

		c.Set(clientIDKey, parsed.ClientID)
		c.Set(authenticatedKey, true)
		c.Next()
	}
}

// GetClientFromContext returns the client id and whether it came from a valid token
func GetClientFromContext(c *gin.Context) (string, bool) {
	clientID := c.GetString(clientIDKey)
	if clientID == "" {
		return "", false
	}
	return clientID, c.GetBool(authenticatedKey)
}
