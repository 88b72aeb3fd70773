package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/marketplace/internal/dto"
	"github.com/d60-Lab/marketplace/internal/middleware"
	"github.com/d60-Lab/marketplace/pkg/response"
)

// Register 注册
// @Summary 注册账号
// @Tags 账号
// @Accept json
// @Produce json
// @Param request body dto.RegisterRequest true "注册信息"
// @Success 201 {object} response.Response{data=dto.MeResponse}
// @Failure 400 {object} response.Response
// @Router /api/v1/auth/register [post]
func (h *Handler) Register(c *gin.Context) {
	var req dto.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindFailed(c, err)
		return
	}
	u, err := h.accounts.Register(c.Request.Context(), req.Email, req.Name, req.Password)
	if err != nil {
		fail(c, err)
		return
	}
	response.Created(c, h.mapper.Me(u))
}

// Login 登录并获取访问令牌
// @Summary 登录
// @Tags 账号
// @Accept json
// @Produce json
// @Param request body dto.LoginRequest true "登录信息"
// @Success 200 {object} response.Response{data=dto.TokenResponse}
// @Failure 401 {object} response.Response
// @Router /api/v1/auth/login [post]
func (h *Handler) Login(c *gin.Context) {
	var req dto.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindFailed(c, err)
		return
	}
	u, tok, exp, err := h.accounts.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, dto.TokenResponse{Access: tok, ExpiresAt: exp, User: h.mapper.Me(u)})
}

// Me 当前用户
// @Summary 当前用户信息
// @Tags 账号
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Response{data=dto.MeResponse}
// @Router /api/v1/auth/me [get]
func (h *Handler) Me(c *gin.Context) {
	response.Success(c, h.mapper.Me(middleware.CurrentUser(c)))
}

// UpdateMe 修改昵称
// @Summary 修改当前用户
// @Tags 账号
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body dto.UpdateMeRequest true "用户信息"
// @Success 200 {object} response.Response{data=dto.MeResponse}
// @Failure 400 {object} response.Response
// @Router /api/v1/auth/me [patch]
func (h *Handler) UpdateMe(c *gin.Context) {
	var req dto.UpdateMeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindFailed(c, err)
		return
	}
	u, err := h.accounts.UpdateName(c.Request.Context(), actor(c), req.Name)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, h.mapper.Me(u))
}

// SetAvatar 上传头像
// @Summary 上传头像（生成 200x200 缩略图）
// @Tags 账号
// @Accept multipart/form-data
// @Produce json
// @Security BearerAuth
// @Param avatar formData file true "头像"
// @Success 200 {object} response.Response{data=dto.MeResponse}
// @Failure 400 {object} response.Response
// @Router /api/v1/auth/me/avatar [put]
func (h *Handler) SetAvatar(c *gin.Context) {
	uploads, closeAll, err := openUploads(c, "avatar")
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	defer closeAll()
	if len(uploads) != 1 {
		response.ValidationFailed(c, response.FieldErrors{"avatar": {"Exactly one file is required."}})
		return
	}
	u, err := h.accounts.SetAvatar(c.Request.Context(), actor(c), uploads[0])
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, h.mapper.Me(u))
}

// GetPushToken 查询推送 token
// @Summary 查询推送 token
// @Tags 推送
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Response{data=dto.PushTokenResponse}
// @Router /api/v1/push-token [get]
func (h *Handler) GetPushToken(c *gin.Context) {
	tok, err := h.accounts.GetPushToken(c.Request.Context(), actor(c))
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, dto.PushTokenResponse{PushToken: tok})
}

// SetPushToken 设置推送 token（空字符串表示清除）
// @Summary 设置推送 token
// @Tags 推送
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body dto.PushTokenRequest true "Expo push token"
// @Success 200 {object} response.Response{data=dto.PushTokenResponse}
// @Failure 400 {object} response.Response
// @Router /api/v1/push-token [put]
func (h *Handler) SetPushToken(c *gin.Context) {
	var req dto.PushTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindFailed(c, err)
		return
	}
	tok, err := h.accounts.SetPushToken(c.Request.Context(), actor(c), *req.PushToken)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, dto.PushTokenResponse{PushToken: tok})
}
