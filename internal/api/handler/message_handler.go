package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/marketplace/internal/dto"
	"github.com/d60-Lab/marketplace/internal/service"
	"github.com/d60-Lab/marketplace/pkg/response"
)

func (h *Handler) pageQuery(c *gin.Context) (int, bool) {
	var q dto.PageQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		bindFailed(c, err)
		return 0, false
	}
	return q.Page, true
}

// ListMessages 与我相关的全部可见消息
// @Summary 消息列表
// @Tags 私信
// @Produce json
// @Security BearerAuth
// @Param page query int false "页码"
// @Success 200 {object} response.Response{data=response.Page{results=[]dto.MessageResponse}}
// @Router /api/v1/messages [get]
func (h *Handler) ListMessages(c *gin.Context) {
	page, ok := h.pageQuery(c)
	if !ok {
		return
	}
	p, err := h.messages.List(c.Request.Context(), actor(c), page)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, pageOf(p, h.mapper.Messages(p.Items)))
}

// SendMessage 发送消息
// @Summary 发送消息（支持回复、附带商品、转发与 multipart 附件 files）
// @Tags 私信
// @Accept json,mpfd
// @Produce json
// @Security BearerAuth
// @Param request body dto.MessageRequest true "消息"
// @Success 201 {object} response.Response{data=dto.MessageResponse}
// @Failure 400 {object} response.Response
// @Router /api/v1/messages [post]
func (h *Handler) SendMessage(c *gin.Context) {
	var req dto.MessageRequest
	if err := c.ShouldBind(&req); err != nil {
		bindFailed(c, err)
		return
	}
	files, closeAll, err := openUploads(c, "files")
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	defer closeAll()

	m, err := h.messages.Send(c.Request.Context(), actor(c), service.SendMessageInput{
		ToUserID:              req.ToUser,
		Text:                  req.Text,
		UsedForReplyMessageID: req.UsedForReplyMessage,
		AttachedListingID:     req.AttachedListing,
		ForwardedMessageIDs:   req.ForwardedMessages,
	}, files)
	if err != nil {
		fail(c, err)
		return
	}
	response.Created(c, h.mapper.Message(m))
}

// GetMessage 消息详情
// @Summary 消息详情
// @Tags 私信
// @Produce json
// @Security BearerAuth
// @Param id path int true "消息 ID"
// @Success 200 {object} response.Response{data=dto.MessageResponse}
// @Failure 404 {object} response.Response
// @Router /api/v1/messages/{id} [get]
func (h *Handler) GetMessage(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	m, err := h.messages.Get(c.Request.Context(), actor(c), id)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, h.mapper.Message(m))
}

// UpdateMessage 编辑消息文本
// @Summary 编辑消息（仅发送者）
// @Tags 私信
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "消息 ID"
// @Param request body dto.MessageUpdateRequest true "新文本"
// @Success 200 {object} response.Response{data=dto.MessageResponse}
// @Failure 403 {object} response.Response
// @Router /api/v1/messages/{id} [patch]
func (h *Handler) UpdateMessage(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req dto.MessageUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindFailed(c, err)
		return
	}
	m, err := h.messages.Update(c.Request.Context(), actor(c), id, req.Text)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, h.mapper.Message(m))
}

// MarkRead 标记已读
// @Summary 标记发给我的消息为已读（按 ids 或 from_user）
// @Tags 私信
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body dto.MarkReadRequest true "范围"
// @Success 200 {object} response.Response{data=dto.CountResponse}
// @Router /api/v1/messages/mark-read [post]
func (h *Handler) MarkRead(c *gin.Context) {
	var req dto.MarkReadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindFailed(c, err)
		return
	}
	n, err := h.messages.MarkRead(c.Request.Context(), actor(c), req.IDs, req.FromUser)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, dto.CountResponse{Updated: n})
}

// DeleteForMe 仅对自己隐藏
// @Summary 删除消息（仅自己不可见）
// @Tags 私信
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body dto.MessageIDsRequest true "消息 ID 列表"
// @Success 200 {object} response.Response{data=dto.CountResponse}
// @Router /api/v1/messages/delete-for-me [post]
func (h *Handler) DeleteForMe(c *gin.Context) {
	var req dto.MessageIDsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindFailed(c, err)
		return
	}
	n, err := h.messages.DeleteForMe(c.Request.Context(), actor(c), req.IDs)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, dto.CountResponse{Updated: n})
}

// DeleteForAll 双方都不可见
// @Summary 删除消息（双方不可见，仅发送者）
// @Tags 私信
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body dto.MessageIDsRequest true "消息 ID 列表"
// @Success 200 {object} response.Response{data=dto.CountResponse}
// @Failure 403 {object} response.Response
// @Router /api/v1/messages/delete-for-all [post]
func (h *Handler) DeleteForAll(c *gin.Context) {
	var req dto.MessageIDsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindFailed(c, err)
		return
	}
	n, err := h.messages.DeleteForAll(c.Request.Context(), actor(c), req.IDs)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, dto.CountResponse{Updated: n})
}

// ChatList 会话列表
// @Summary 会话列表：每个对象一条最新消息
// @Tags 私信
// @Produce json
// @Security BearerAuth
// @Param page query int false "页码"
// @Success 200 {object} response.Response{data=response.Page{results=[]dto.MessageResponse}}
// @Router /api/v1/messages/chats [get]
func (h *Handler) ChatList(c *gin.Context) {
	page, ok := h.pageQuery(c)
	if !ok {
		return
	}
	p, err := h.messages.ChatList(c.Request.Context(), actor(c), page)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, pageOf(p, h.mapper.Messages(p.Items)))
}

// Thread 与某用户的对话
// @Summary 与指定用户的消息记录
// @Tags 私信
// @Produce json
// @Security BearerAuth
// @Param user_id path int true "对方用户 ID"
// @Param page query int false "页码"
// @Success 200 {object} response.Response{data=response.Page{results=[]dto.MessageResponse}}
// @Failure 404 {object} response.Response
// @Router /api/v1/messages/thread/{user_id} [get]
func (h *Handler) Thread(c *gin.Context) {
	otherID, ok := pathID(c, "user_id")
	if !ok {
		return
	}
	page, ok := h.pageQuery(c)
	if !ok {
		return
	}
	p, err := h.messages.Thread(c.Request.Context(), actor(c), otherID, page)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, pageOf(p, h.mapper.Messages(p.Items)))
}
