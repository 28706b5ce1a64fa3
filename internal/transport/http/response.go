package httptransport

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// errorDetail 错误响应统一用 detail 字段携带说明。
type errorDetail struct {
	Detail string `json:"detail"`
}

// messageBody 操作成功但无实体可返回时的提示结构。
type messageBody struct {
	Message string `json:"message"`
}

// NotFound 资源不存在（404）。
func NotFound(c *gin.Context, detail string) {
	c.JSON(http.StatusNotFound, errorDetail{Detail: detail})
}

// BadRequest 请求无效（400）。
func BadRequest(c *gin.Context, detail string) {
	c.JSON(http.StatusBadRequest, errorDetail{Detail: detail})
}

// InternalError 服务器内部错误（500）。
func InternalError(c *gin.Context) {
	c.JSON(http.StatusInternalServerError, errorDetail{Detail: "internal server error"})
}

// OK 成功响应，直接返回实体。
func OK(c *gin.Context, body any) {
	c.JSON(http.StatusOK, body)
}

// OKMessage 成功响应，返回提示信息。
func OKMessage(c *gin.Context, message string) {
	c.JSON(http.StatusOK, messageBody{Message: message})
}
