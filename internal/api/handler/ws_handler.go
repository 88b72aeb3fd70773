package handler

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/marketplace/internal/realtime"
	"github.com/d60-Lab/marketplace/pkg/response"
)

// ServeWS 建立实时连接，token 通过 query 参数或 Authorization 头传入
// @Summary WebSocket 实时通道
// @Tags 实时
// @Param token query string false "访问令牌"
// @Success 101
// @Failure 401 {object} response.Response
// @Router /api/v1/ws [get]
func (h *Handler) ServeWS(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		token = strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
	}
	userID, err := h.issuer.Parse(token)
	if err != nil {
		response.Unauthorized(c, "authentication required")
		return
	}
	u, err := h.accounts.Get(c.Request.Context(), userID)
	if err != nil {
		response.Unauthorized(c, "authentication required")
		return
	}
	realtime.ServeWS(h.hub, c.Writer, c.Request, u.ID)
}

// Health 健康检查
// @Summary 健康检查
// @Tags 系统
// @Success 200 {object} response.Response
// @Router /healthz [get]
func (h *Handler) Health(c *gin.Context) {
	response.Success(c, gin.H{"status": "ok"})
}
