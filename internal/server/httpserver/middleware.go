package httpserver

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/dmitrijs2005/subkeeper/internal/common"
	"github.com/dmitrijs2005/subkeeper/internal/server/models"
	"github.com/gin-gonic/gin"
)

const userKey = "user"

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug(c.Request.Context(), "http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start))
	}
}

// sessionToken reads the session cookie, falling back to a bearer header.
func sessionToken(c *gin.Context) string {
	if v, err := c.Cookie(common.SessionCookieName); err == nil && v != "" {
		return v
	}
	h := c.GetHeader("Authorization")
	if t, ok := strings.CutPrefix(h, "Bearer "); ok {
		return strings.TrimSpace(t)
	}
	return ""
}

func (s *Server) requireSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := s.accounts.Authenticate(c.Request.Context(), sessionToken(c))
		if err != nil {
			if errors.Is(err, common.ErrorUnauthorized) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": msgInvalidToken})
				return
			}
			s.fail(c, err)
			c.Abort()
			return
		}
		c.Set(userKey, user)
		c.Next()
	}
}

func currentUser(c *gin.Context) *models.User {
	return c.MustGet(userKey).(*models.User)
}

func (s *Server) setSession(c *gin.Context, token string) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(common.SessionCookieName, token, int(s.cfg.SessionValidity.Seconds()), "/", "", s.cfg.Production, true)
}

func (s *Server) clearSession(c *gin.Context) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(common.SessionCookieName, "", -1, "/", "", s.cfg.Production, true)
}
