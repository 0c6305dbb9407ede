package bridge

import "github.com/gin-gonic/gin"

// errorResponse 所有错误统一为 {"detail": "..."}。
type errorResponse struct {
	Detail string `json:"detail"`
}

func fail(c *gin.Context, status int, detail string) {
	c.AbortWithStatusJSON(status, errorResponse{Detail: detail})
}
