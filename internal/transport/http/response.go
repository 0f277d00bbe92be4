package httptransport

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// 注意：本 API 面向外部前端轮询，返回裸数据结构而非 code/msg 包装，
// 错误统一为 {"error": "..."} 形式。

// errorResponse 错误响应
type errorResponse struct {
	Error string `json:"error"`
}

// BadRequest 请求参数错误（400）
func BadRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, errorResponse{Error: msg})
}

// NotFound 资源不存在（404）
func NotFound(c *gin.Context, msg string) {
	c.JSON(http.StatusNotFound, errorResponse{Error: msg})
}

// InternalError 服务器内部错误（500）
func InternalError(c *gin.Context, msg string) {
	c.JSON(http.StatusInternalServerError, errorResponse{Error: msg})
}
