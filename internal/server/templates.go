package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	podomain "github.com/DikshantJangra/hoperxpharma-sub011/internal/purchaseorder/domain"
)

func (s *Server) CreateTemplate(c *gin.Context) {
	var req podomain.TemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.svc.CreateTemplate(c.Request.Context(), StoreFromContext(c.Request.Context()), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) LoadTemplate(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))

	resp, err := s.svc.LoadTemplate(c.Request.Context(), StoreFromContext(c.Request.Context()), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
