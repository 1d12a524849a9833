package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"library_lending/app"
)

// fail 统一写错误响应；5xx 不把内部原因带给客户端
func fail(c *gin.Context, err error) {
	status := app.StatusOf(err)
	_ = c.Error(err)
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		msg = http.StatusText(status)
	}
	c.JSON(status, app.H{"error": msg})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, app.H{"error": err.Error()})
}
