package httpserver

import (
	"net/http"

	"github.com/dmitrijs2005/subkeeper/internal/server/services"
	"github.com/gin-gonic/gin"
)

func (s *Server) listSubscriptions(c *gin.Context) {
	subs, err := s.subs.List(c.Request.Context(), currentUser(c).ID)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"subscriptions": subs})
}

func (s *Server) getSubscription(c *gin.Context) {
	sub, err := s.subs.Get(c.Request.Context(), currentUser(c).ID, c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"subscription": sub})
}

func (s *Server) createSubscription(c *gin.Context) {
	var in services.SubscriptionInput
	if !s.bind(c, &in, false) {
		return
	}
	sub, err := s.subs.Create(c.Request.Context(), currentUser(c).ID, in)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"subscription": sub})
}

func (s *Server) updateSubscription(c *gin.Context) {
	var in services.SubscriptionInput
	if !s.bind(c, &in, false) {
		return
	}
	sub, err := s.subs.Update(c.Request.Context(), currentUser(c).ID, c.Param("id"), in)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"subscription": sub})
}

func (s *Server) deleteSubscription(c *gin.Context) {
	var in reasonRequest
	if !s.bind(c, &in, true) {
		return
	}
	if err := s.subs.DeleteOne(c.Request.Context(), currentUser(c).ID, c.Param("id"), in.Reason); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": 1})
}

func (s *Server) deleteAllSubscriptions(c *gin.Context) {
	var in reasonRequest
	if !s.bind(c, &in, true) {
		return
	}
	n, err := s.subs.DeleteAll(c.Request.Context(), currentUser(c).ID, in.Reason)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": n})
}
