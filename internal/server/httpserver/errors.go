package httpserver

import (
	"errors"
	"net/http"

	"github.com/dmitrijs2005/subkeeper/internal/common"
	"github.com/gin-gonic/gin"
)

const (
	msgInvalidCredentials = "invalid credentials"
	msgInvalidToken       = "invalid or expired token"
	msgForbidden          = "forbidden"
	msgNotFound           = "not found"
	msgConflict           = "email already in use"
	msgFailed             = "operation failed"
	msgMalformed          = "malformed request body"
)

// fail writes the response for err. Only validation errors carry their own
// message; everything else collapses to a fixed one.
func (s *Server) fail(c *gin.Context, err error) {
	var verr *common.ValidationError
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{"error": verr.Message, "field": verr.Field})
	case errors.Is(err, common.ErrorUnauthorized):
		c.JSON(http.StatusUnauthorized, gin.H{"error": msgInvalidCredentials})
	case errors.Is(err, common.ErrorForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": msgForbidden})
	case errors.Is(err, common.ErrorNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": msgNotFound})
	case errors.Is(err, common.ErrorConflict):
		c.JSON(http.StatusConflict, gin.H{"error": msgConflict})
	default:
		var cerr *common.ConsistencyError
		if errors.As(err, &cerr) {
			s.logger.Error(c.Request.Context(), "request left archive and live store inconsistent",
				"op", cerr.Op, "user_id", cerr.UserID, "entity_id", cerr.EntityID, "error", cerr.Err)
		} else {
			s.logger.Error(c.Request.Context(), "request failed", "path", c.FullPath(), "error", err)
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": msgFailed})
	}
}

// bind decodes a JSON body. An empty body leaves dst untouched when optional.
func (s *Server) bind(c *gin.Context, dst any, optional bool) bool {
	if optional && c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(dst); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": msgMalformed})
		return false
	}
	return true
}
