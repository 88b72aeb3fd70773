package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/marketplace/internal/dto"
	"github.com/d60-Lab/marketplace/internal/service"
	"github.com/d60-Lab/marketplace/pkg/response"
)

func listingQuery(q dto.ListingQuery) service.ListingQuery {
	return service.ListingQuery{
		CategoryID: q.Category,
		UserID:     q.User,
		Search:     q.Search,
		Ordering:   q.Ordering,
		Page:       q.Page,
	}
}

func listingInput(req dto.ListingRequest) service.ListingInput {
	return service.ListingInput{
		Title:       req.Title,
		Price:       *req.Price,
		CategoryID:  *req.Category,
		Latitude:    req.Latitude,
		Longitude:   req.Longitude,
		Description: req.Description,
	}
}

// ListListings 商品列表
// @Summary 商品列表
// @Tags 商品
// @Produce json
// @Param category query int false "分类 ID"
// @Param user query int false "发布者 ID"
// @Param search query string false "标题/描述/发布者邮箱模糊搜索"
// @Param ordering query string false "price | -price | created_at | -created_at"
// @Param page query int false "页码"
// @Success 200 {object} response.Response{data=response.Page{results=[]dto.ListingResponse}}
// @Router /api/v1/listings [get]
func (h *Handler) ListListings(c *gin.Context) {
	var q dto.ListingQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		bindFailed(c, err)
		return
	}
	p, err := h.listings.List(c.Request.Context(), listingQuery(q))
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, pageOf(p, h.mapper.Listings(p.Items)))
}

// MyListings 我的商品
// @Summary 当前用户发布的商品
// @Tags 商品
// @Produce json
// @Security BearerAuth
// @Param page query int false "页码"
// @Success 200 {object} response.Response{data=response.Page{results=[]dto.ListingResponse}}
// @Router /api/v1/listings/mine [get]
func (h *Handler) MyListings(c *gin.Context) {
	var q dto.ListingQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		bindFailed(c, err)
		return
	}
	p, err := h.listings.Mine(c.Request.Context(), actor(c), listingQuery(q))
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, pageOf(p, h.mapper.Listings(p.Items)))
}

// GetListing 商品详情
// @Summary 商品详情
// @Tags 商品
// @Produce json
// @Param id path int true "商品 ID"
// @Success 200 {object} response.Response{data=dto.ListingResponse}
// @Failure 404 {object} response.Response
// @Router /api/v1/listings/{id} [get]
func (h *Handler) GetListing(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	l, err := h.listings.Get(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, h.mapper.Listing(l))
}

// CreateListing 发布商品
// @Summary 发布商品（支持 multipart 同时上传图片 images）
// @Tags 商品
// @Accept json,mpfd
// @Produce json
// @Security BearerAuth
// @Param request body dto.ListingRequest true "商品信息"
// @Success 201 {object} response.Response{data=dto.ListingResponse}
// @Failure 400 {object} response.Response
// @Router /api/v1/listings [post]
func (h *Handler) CreateListing(c *gin.Context) {
	var req dto.ListingRequest
	if err := c.ShouldBind(&req); err != nil {
		bindFailed(c, err)
		return
	}
	images, closeAll, err := openUploads(c, "images")
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	defer closeAll()

	l, err := h.listings.Create(c.Request.Context(), actor(c), listingInput(req), images)
	if err != nil {
		fail(c, err)
		return
	}
	response.Created(c, h.mapper.Listing(l))
}

// PutListing 更新商品，id 不存在时按该请求新建
// @Summary 更新或新建商品
// @Tags 商品
// @Accept json,mpfd
// @Produce json
// @Security BearerAuth
// @Param id path int true "商品 ID"
// @Param request body dto.ListingRequest true "商品信息"
// @Success 200 {object} response.Response{data=dto.ListingResponse}
// @Success 201 {object} response.Response{data=dto.ListingResponse}
// @Failure 403 {object} response.Response
// @Router /api/v1/listings/{id} [put]
func (h *Handler) PutListing(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req dto.ListingRequest
	if err := c.ShouldBind(&req); err != nil {
		bindFailed(c, err)
		return
	}
	images, closeAll, err := openUploads(c, "images")
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	defer closeAll()

	l, created, err := h.listings.Upsert(c.Request.Context(), actor(c), id, listingInput(req), images)
	if err != nil {
		fail(c, err)
		return
	}
	if created {
		response.Created(c, h.mapper.Listing(l))
		return
	}
	response.Success(c, h.mapper.Listing(l))
}

// DeleteListing 删除商品
// @Summary 删除商品（仅发布者）
// @Tags 商品
// @Security BearerAuth
// @Param id path int true "商品 ID"
// @Success 204
// @Failure 403 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /api/v1/listings/{id} [delete]
func (h *Handler) DeleteListing(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.listings.Delete(c.Request.Context(), actor(c), id); err != nil {
		fail(c, err)
		return
	}
	response.NoContent(c)
}

// ListImages 商品图片列表
// @Summary 商品图片列表
// @Tags 商品图片
// @Produce json
// @Param id path int true "商品 ID"
// @Success 200 {object} response.Response{data=[]dto.ListingImageResponse}
// @Router /api/v1/listings/{id}/images [get]
func (h *Handler) ListImages(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	imgs, err := h.listings.ListImages(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, h.mapper.ListingImages(imgs))
}

// AddImage 上传商品图片
// @Summary 上传商品图片（仅发布者）
// @Tags 商品图片
// @Accept multipart/form-data
// @Produce json
// @Security BearerAuth
// @Param id path int true "商品 ID"
// @Param image formData file true "图片"
// @Success 201 {object} response.Response{data=dto.ListingImageResponse}
// @Failure 400 {object} response.Response
// @Router /api/v1/listings/{id}/images [post]
func (h *Handler) AddImage(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	uploads, closeAll, err := openUploads(c, "image")
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	defer closeAll()
	if len(uploads) != 1 {
		response.ValidationFailed(c, response.FieldErrors{"image": {"Exactly one file is required."}})
		return
	}
	img, err := h.listings.AddImage(c.Request.Context(), actor(c), id, uploads[0])
	if err != nil {
		fail(c, err)
		return
	}
	response.Created(c, h.mapper.ListingImage(img))
}

// DeleteImage 删除商品图片
// @Summary 删除商品图片（仅发布者）
// @Tags 商品图片
// @Security BearerAuth
// @Param id path int true "商品 ID"
// @Param image_id path int true "图片 ID"
// @Success 204
// @Router /api/v1/listings/{id}/images/{image_id} [delete]
func (h *Handler) DeleteImage(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	imageID, ok := pathID(c, "image_id")
	if !ok {
		return
	}
	if err := h.listings.DeleteImage(c.Request.Context(), actor(c), id, imageID); err != nil {
		fail(c, err)
		return
	}
	response.NoContent(c)
}
