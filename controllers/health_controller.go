package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"library_lending/app"
)

// GET /healthz
func (s *Srv) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	if err := s.ping(ctx); err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusServiceUnavailable, app.H{"ok": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, app.H{"ok": true})
}
