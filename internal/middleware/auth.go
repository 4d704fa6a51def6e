package middleware

import (
	"strings"

	"pseudo_practice_backend/internal/config"
	"pseudo_practice_backend/internal/util"
	"pseudo_practice_backend/pkg/logger"
	"pseudo_practice_backend/pkg/storage"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// AuthMiddleware 校验 Bearer Token，并把原始令牌放进请求上下文，
// 供文档存储以调用方身份访问对象存储
func AuthMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := ""
		authHeader := c.GetHeader("Authorization")
		if authHeader != "" {
			tokenString = strings.TrimPrefix(authHeader, "Bearer ")
		}

		if tokenString == "" {
			util.Unauthorized(c)
			c.Abort()
			return
		}

		claims, err := util.ParseJWT(tokenString, cfg.JWT.Secret)
		if err != nil {
			logger.Log.Debug("JWT解析错误", zap.Error(err))
			util.Unauthorized(c)
			c.Abort()
			return
		}

		c.Set("user", claims)
		c.Request = c.Request.WithContext(storage.WithCallerToken(c.Request.Context(), tokenString))
		c.Next()
	}
}
