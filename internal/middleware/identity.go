package middleware

import "github.com/gin-gonic/gin"

// UserIDKey 是上下文中当前用户 ID 的键名。
const UserIDKey = "userID"

// demoUserID 认证接入前的固定用户身份。
const demoUserID = "demo-user"

// Identity 向请求上下文注入当前用户 ID。
// TODO: 接入真实认证后从凭证中解析用户。
func Identity() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(UserIDKey, demoUserID)
		c.Next()
	}
}

// CurrentUser 从请求上下文取出用户 ID。
func CurrentUser(c *gin.Context) string {
	if v, ok := c.Get(UserIDKey); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return demoUserID
}
