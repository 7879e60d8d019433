package middleware

import (
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// 请求上下文键
const (
	ContextUserID    = "userID"
	ContextUserPlan  = "userPlan"
	ContextSessionID = "sessionID"
)

// 匿名会话 cookie
const sessionCookieName = "tempbox_session"

// identityClaims 外部认证服务签发的令牌载荷。
// 身份系统不在本服务内，这里只认共享密钥签名并提取用户标识与档位。
type identityClaims struct {
	Plan string `json:"plan"`
	jwt.RegisteredClaims
}

// IdentityAuth 可选的外部身份认证中间件
type IdentityAuth struct {
	secret []byte
	log    *zap.Logger
}

// NewIdentityAuth 创建身份认证中间件。
// secret 为空时所有请求按游客处理。
func NewIdentityAuth(secret string, log *zap.Logger) *IdentityAuth {
	return &IdentityAuth{
		secret: []byte(secret),
		log:    log,
	}
}

// OptionalAuth 可选认证：令牌有效则注入用户信息，无令牌或令牌无效
// 时按游客继续（不拒绝请求）。所有请求都会得到一个会话标识，
// 用于把游客生成的邮箱归到同一次浏览会话。
func (ia *IdentityAuth) OptionalAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(ContextSessionID, ia.resolveSessionID(c))

		token := extractBearerToken(c)
		if token == "" || len(ia.secret) == 0 {
			c.Next()
			return
		}

		claims, err := ia.parseToken(token)
		if err != nil {
			ia.log.Warn("invalid identity token",
				zap.String("ip", c.ClientIP()),
				zap.Error(err),
			)
			c.Next()
			return
		}

		c.Set(ContextUserID, claims.Subject)
		c.Set(ContextUserPlan, claims.Plan)
		c.Next()
	}
}

// parseToken 校验 HS256 签名并解析载荷
func (ia *IdentityAuth) parseToken(token string) (*identityClaims, error) {
	claims := &identityClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return ia.secret, nil
	})
	if err != nil {
		return nil, err
	}
	if !parsed.Valid || claims.Subject == "" {
		return nil, jwt.ErrTokenInvalidClaims
	}
	return claims, nil
}

// resolveSessionID 解析或分配匿名会话标识
func (ia *IdentityAuth) resolveSessionID(c *gin.Context) string {
	if cookie, err := c.Cookie(sessionCookieName); err == nil && cookie != "" {
		return cookie
	}
	if header := c.GetHeader("X-Session-ID"); header != "" {
		return header
	}

	sessionID := uuid.NewString()
	c.SetCookie(sessionCookieName, sessionID, 86400, "/", "", false, true)
	return sessionID
}

// extractBearerToken 从 Authorization 头提取 Bearer 令牌
func extractBearerToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return ""
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return ""
	}
	return parts[1]
}

// UserID 读取上下文中的用户标识，游客返回 nil
func UserID(c *gin.Context) *string {
	if val, exists := c.Get(ContextUserID); exists {
		if id, ok := val.(string); ok && id != "" {
			return &id
		}
	}
	return nil
}

// UserPlan 读取上下文中的用户档位，游客返回空串
func UserPlan(c *gin.Context) string {
	if val, exists := c.Get(ContextUserPlan); exists {
		if plan, ok := val.(string); ok {
			return plan
		}
	}
	return ""
}

// SessionID 读取上下文中的会话标识
func SessionID(c *gin.Context) string {
	if val, exists := c.Get(ContextSessionID); exists {
		if id, ok := val.(string); ok {
			return id
		}
	}
	return ""
}
