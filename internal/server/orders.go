package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	podomain "github.com/DikshantJangra/hoperxpharma-sub011/internal/purchaseorder/domain"
)

func (s *Server) CreateOrder(c *gin.Context) {
	var req podomain.OrderPayload
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.svc.Create(c.Request.Context(), StoreFromContext(c.Request.Context()), req)
	s.recordWrite("create", err)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) UpdateOrder(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))

	var req podomain.OrderPayload
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.svc.Update(c.Request.Context(), StoreFromContext(c.Request.Context()), id, req)
	s.recordWrite("update", err)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) AutosaveOrder(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))

	var req podomain.OrderPayload
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.svc.Autosave(c.Request.Context(), StoreFromContext(c.Request.Context()), id, req)
	s.recordWrite("autosave", err)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetOrder(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))

	resp, err := s.svc.Get(c.Request.Context(), StoreFromContext(c.Request.Context()), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) SendOrder(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))

	var req podomain.SendRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}
	}

	ctx := c.Request.Context()
	resp, err := s.svc.Send(ctx, StoreFromContext(ctx), id, req)
	s.recordWrite("send", err)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.observeSentTotal(c, id)

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) RequestApproval(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))

	var req podomain.ApprovalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	ctx := c.Request.Context()
	resp, err := s.svc.RequestApproval(ctx, StoreFromContext(ctx), SubjectFromContext(ctx), id, req)
	s.recordWrite("request_approval", err)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ApproveOrder(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))

	ctx := c.Request.Context()
	resp, err := s.svc.Approve(ctx, StoreFromContext(ctx), SubjectFromContext(ctx), id)
	s.recordWrite("approve", err)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListSuggestions(c *gin.Context) {
	query := podomain.SuggestionQuery{
		StoreID:    strings.TrimSpace(c.Query("store_id")),
		SupplierID: strings.TrimSpace(c.Query("supplier_id")),
	}

	resp, err := s.svc.Suggestions(c.Request.Context(), StoreFromContext(c.Request.Context()), query)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) recordWrite(operation string, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	s.metrics.RecordWrite(operation, result)
}

func (s *Server) observeSentTotal(c *gin.Context, id string) {
	if s.metrics == nil {
		return
	}
	ctx := c.Request.Context()
	order, err := s.svc.Get(ctx, StoreFromContext(ctx), id)
	if err != nil {
		return
	}
	doc, err := podomain.DocumentFromRemote(order)
	if err != nil {
		return
	}
	s.metrics.ObserveOrderTotal(order.StoreID, doc.Totals().Total.InexactFloat64())
}
