package server

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/DikshantJangra/hoperxpharma-sub011/internal/observability/logger"
)

const (
	rateLimitReasonAutosave   = "autosave"
	rateLimitReasonTransition = "transition"
)

// AutosaveRateLimit bounds autosave writes per order.
func (s *Server) AutosaveRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.limiter.Enabled() {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		orderID := strings.TrimSpace(c.Param("id"))
		decision, err := s.limiter.AllowAutosave(ctx, StoreFromContext(ctx), orderID)
		if err != nil {
			logger.FromContext(ctx).Warn("autosave rate limit check failed", zap.Error(err))
			AbortWithError(c, ErrServiceUnavailable)
			return
		}
		if !decision.Allowed {
			retry := int(decision.RetryAfter.Seconds()) + 1
			c.Header("Retry-After", strconv.Itoa(retry))
			s.deny(c, orderID, rateLimitReasonAutosave, ErrRateLimited)
			return
		}
		c.Next()
	}
}

// TransitionLock rejects a lifecycle request while another one for the
// same order is in progress.
func (s *Server) TransitionLock() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.limiter.Enabled() {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		orderID := strings.TrimSpace(c.Param("id"))
		token, ok, err := s.limiter.TryLockTransition(ctx, orderID)
		if err != nil {
			logger.FromContext(ctx).Warn("transition lock failed", zap.Error(err))
			AbortWithError(c, ErrServiceUnavailable)
			return
		}
		if !ok {
			s.deny(c, orderID, rateLimitReasonTransition, ErrConflict)
			return
		}
		defer func() {
			if err := s.limiter.ReleaseTransition(ctx, orderID, token); err != nil {
				logger.FromContext(ctx).Warn("transition unlock failed", zap.Error(err))
			}
		}()
		c.Next()
	}
}

func (s *Server) deny(c *gin.Context, orderID, reason string, err error) {
	logger.WithContext(c.Request.Context(), s.log).Warn("order request limited",
		zap.String("reason", reason),
		zap.String("order_id", orderID),
	)
	s.metrics.RecordRateLimited(reason)
	c.Header("X-Rate-Limited-Reason", reason)
	AbortWithError(c, err)
}
