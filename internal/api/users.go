package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dharsanguruparan/SignDrop/internal/apperr"
	"github.com/dharsanguruparan/SignDrop/internal/users"
)

func (s *Server) handleCreateUser(c *gin.Context) {
	var in users.CreateInput
	if err := c.ShouldBindJSON(&in); err != nil {
		respondError(c, apperr.Validation("invalid request body: %v", err))
		return
	}
	user, err := s.deps.Users.Create(c.Request.Context(), in, caller(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, user)
}

func (s *Server) handleListUsers(c *gin.Context) {
	list, err := s.deps.Users.List(c.Request.Context(), caller(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": list})
}

func (s *Server) handleMe(c *gin.Context) {
	user, err := s.deps.Users.Get(c.Request.Context(), caller(c).ID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}
