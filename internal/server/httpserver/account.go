package httpserver

import (
	"errors"
	"net/http"

	"github.com/dmitrijs2005/subkeeper/internal/common"
	"github.com/dmitrijs2005/subkeeper/internal/server/services"
	"github.com/gin-gonic/gin"
)

type emailRequest struct {
	Email string `json:"email"`
}

type reasonRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) signup(c *gin.Context) {
	var in services.SignupInput
	if !s.bind(c, &in, false) {
		return
	}
	sess, err := s.accounts.Signup(c.Request.Context(), in)
	if err != nil {
		s.fail(c, err)
		return
	}
	s.setSession(c, sess.Token)
	c.JSON(http.StatusCreated, gin.H{"user": sess.User})
}

func (s *Server) login(c *gin.Context) {
	var in services.LoginInput
	if !s.bind(c, &in, false) {
		return
	}
	sess, err := s.accounts.Login(c.Request.Context(), in)
	if err != nil {
		s.fail(c, err)
		return
	}
	s.setSession(c, sess.Token)
	c.JSON(http.StatusOK, gin.H{"user": sess.User})
}

func (s *Server) logout(c *gin.Context) {
	s.clearSession(c)
	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}

func (s *Server) forgotPassword(c *gin.Context) {
	var in emailRequest
	if !s.bind(c, &in, false) {
		return
	}
	msg, err := s.accounts.ForgotPassword(c.Request.Context(), in.Email)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": msg})
}

func (s *Server) validateResetToken(c *gin.Context) {
	err := s.accounts.ValidateResetToken(c.Request.Context(), c.Query("email"), c.Query("token"))
	if err != nil {
		if errors.Is(err, common.ErrorUnauthorized) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": msgInvalidToken})
			return
		}
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"valid": true})
}

func (s *Server) resetPassword(c *gin.Context) {
	var in services.ResetPasswordInput
	if !s.bind(c, &in, false) {
		return
	}
	if err := s.accounts.ResetPassword(c.Request.Context(), in); err != nil {
		if errors.Is(err, common.ErrorUnauthorized) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": msgInvalidToken})
			return
		}
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "password has been reset"})
}

func (s *Server) me(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"user": currentUser(c)})
}

func (s *Server) updateProfile(c *gin.Context) {
	var in services.ProfileInput
	if !s.bind(c, &in, false) {
		return
	}
	u, err := s.accounts.UpdateProfile(c.Request.Context(), currentUser(c).ID, in)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": u})
}

func (s *Server) changeEmail(c *gin.Context) {
	var in services.ChangeEmailInput
	if !s.bind(c, &in, false) {
		return
	}
	meta := services.RequestMeta{IPAddress: c.ClientIP(), UserAgent: c.Request.UserAgent()}
	sess, err := s.accounts.ChangeEmail(c.Request.Context(), currentUser(c).ID, in, meta)
	if err != nil {
		s.fail(c, err)
		return
	}
	s.setSession(c, sess.Token)
	c.JSON(http.StatusOK, gin.H{"user": sess.User})
}

func (s *Server) changePassword(c *gin.Context) {
	var in services.ChangePasswordInput
	if !s.bind(c, &in, false) {
		return
	}
	if err := s.accounts.ChangePassword(c.Request.Context(), currentUser(c).ID, in); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "password changed"})
}

func (s *Server) registry(c *gin.Context) {
	reg, err := s.accounts.Registry(c.Request.Context(), currentUser(c).ID)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"registry": reg})
}

func (s *Server) deleteAccount(c *gin.Context) {
	var in reasonRequest
	if !s.bind(c, &in, true) {
		return
	}
	snap, err := s.accounts.DeleteAccount(c.Request.Context(), currentUser(c).ID, in.Reason)
	if err != nil {
		s.fail(c, err)
		return
	}
	s.clearSession(c)
	c.JSON(http.StatusOK, gin.H{"deleted": snap})
}

func (s *Server) adminDeleteUser(c *gin.Context) {
	var in reasonRequest
	if !s.bind(c, &in, true) {
		return
	}
	snap, err := s.accounts.AdminDeleteAccount(c.Request.Context(), currentUser(c).ID, c.Param("id"), in.Reason)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": snap})
}

func (s *Server) adminResync(c *gin.Context) {
	if err := s.accounts.AdminResync(c.Request.Context(), currentUser(c).ID, c.Param("id")); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "registry resynced"})
}
