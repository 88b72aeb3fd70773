package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/marketplace/internal/dto"
	"github.com/d60-Lab/marketplace/internal/service"
	"github.com/d60-Lab/marketplace/pkg/response"
)

// ListCategories 分类列表
// @Summary 分类列表（带缓存）
// @Tags 分类
// @Produce json
// @Success 200 {object} response.Response{data=[]dto.CategoryResponse}
// @Router /api/v1/categories [get]
func (h *Handler) ListCategories(c *gin.Context) {
	cs, err := h.categories.List(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, h.mapper.Categories(cs))
}

// CreateCategory 新建分类
// @Summary 新建分类（仅管理员）
// @Tags 分类
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body dto.CategoryRequest true "分类"
// @Success 201 {object} response.Response{data=dto.CategoryResponse}
// @Failure 403 {object} response.Response
// @Router /api/v1/categories [post]
func (h *Handler) CreateCategory(c *gin.Context) {
	var req dto.CategoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindFailed(c, err)
		return
	}
	cat, err := h.categories.Create(c.Request.Context(), actor(c), req.Title)
	if err != nil {
		fail(c, err)
		return
	}
	response.Created(c, h.mapper.Category(cat))
}

// DeleteCategory 删除分类
// @Summary 删除分类（仅管理员，仍被商品引用时拒绝）
// @Tags 分类
// @Security BearerAuth
// @Param id path int true "分类 ID"
// @Success 204
// @Failure 409 {object} response.Response
// @Router /api/v1/categories/{id} [delete]
func (h *Handler) DeleteCategory(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	err := h.categories.Delete(c.Request.Context(), actor(c), id)
	switch {
	case errors.Is(err, service.ErrConflict):
		response.Conflict(c, "category is still referenced by listings")
	case err != nil:
		fail(c, err)
	default:
		response.NoContent(c)
	}
}
