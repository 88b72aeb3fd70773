package handler

import (
	"errors"
	"mime/multipart"
	"reflect"
	"strconv"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/d60-Lab/marketplace/internal/dto"
	"github.com/d60-Lab/marketplace/internal/middleware"
	"github.com/d60-Lab/marketplace/internal/realtime"
	"github.com/d60-Lab/marketplace/internal/service"
	"github.com/d60-Lab/marketplace/pkg/jwtauth"
	"github.com/d60-Lab/marketplace/pkg/response"
)

// Handler 聚合全部 HTTP 接口
type Handler struct {
	accounts   service.AccountService
	listings   service.ListingService
	categories service.CategoryService
	messages   service.MessageService
	issuer     *jwtauth.Issuer
	hub        *realtime.Hub
	mapper     dto.Mapper
}

// Deps 构造 Handler 所需依赖
type Deps struct {
	Accounts   service.AccountService
	Listings   service.ListingService
	Categories service.CategoryService
	Messages   service.MessageService
	Issuer     *jwtauth.Issuer
	Hub        *realtime.Hub
	Mapper     dto.Mapper
}

var registerOnce sync.Once

func NewHandler(d Deps) *Handler {
	registerOnce.Do(useJSONFieldNames)
	return &Handler{
		accounts:   d.Accounts,
		listings:   d.Listings,
		categories: d.Categories,
		messages:   d.Messages,
		issuer:     d.Issuer,
		hub:        d.Hub,
		mapper:     d.Mapper,
	}
}

// useJSONFieldNames makes validator report json/form names instead of Go field names.
func useJSONFieldNames() {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return
	}
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		for _, tag := range []string{"json", "form"} {
			name := strings.SplitN(f.Tag.Get(tag), ",", 2)[0]
			if name != "" && name != "-" {
				return name
			}
		}
		return f.Name
	})
}

func actor(c *gin.Context) service.Actor {
	u := middleware.CurrentUser(c)
	if u == nil {
		return service.Actor{}
	}
	return service.Actor{ID: u.ID, IsStaff: u.IsStaff}
}

func pathID(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		response.NotFound(c)
		return 0, false
	}
	return uint(id), true
}

// bindFailed 将绑定错误转换为字段级错误
func bindFailed(c *gin.Context, err error) {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := response.FieldErrors{}
		for _, fe := range verrs {
			fields[fe.Field()] = append(fields[fe.Field()], validationMessage(fe))
		}
		response.ValidationFailed(c, fields)
		return
	}
	response.BadRequest(c, err.Error())
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "This field is required."
	case "email":
		return "Enter a valid email address."
	case "min":
		if fe.Kind() == reflect.Slice {
			return "This list may not be empty."
		}
		return "Ensure this field has at least " + fe.Param() + " characters."
	case "max":
		return "Ensure this field has no more than " + fe.Param() + " characters."
	}
	return "Invalid value (" + fe.Tag() + ")."
}

// fail 将 service 错误映射为 HTTP 响应
func fail(c *gin.Context, err error) {
	var v *service.ValidationError
	switch {
	case errors.As(err, &v):
		response.ValidationFailed(c, response.FieldErrors(v.Fields))
	case errors.Is(err, service.ErrNotFound):
		response.NotFound(c)
	case errors.Is(err, service.ErrForbidden):
		response.Forbidden(c)
	case errors.Is(err, service.ErrInvalidCredentials):
		response.Unauthorized(c, "no active account found with the given credentials")
	case errors.Is(err, service.ErrConflict):
		response.Conflict(c, "the resource is still referenced")
	default:
		response.InternalError(c, err)
	}
}

func pageOf[T any](p *service.Paged[T], results any) response.Page {
	return response.Page{Count: p.Total, Page: p.Page, PageSize: p.PageSize, Results: results}
}

// openUploads opens the multipart files under field; the returned closer releases them.
func openUploads(c *gin.Context, field string) ([]service.Upload, func(), error) {
	closeAll := func() {}
	if !strings.HasPrefix(c.ContentType(), "multipart/") {
		return nil, closeAll, nil
	}
	form, err := c.MultipartForm()
	if err != nil {
		return nil, closeAll, err
	}
	headers := form.File[field]
	uploads := make([]service.Upload, 0, len(headers))
	files := make([]multipart.File, 0, len(headers))
	closeAll = func() {
		for _, f := range files {
			_ = f.Close()
		}
	}
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			closeAll()
			return nil, func() {}, err
		}
		files = append(files, f)
		uploads = append(uploads, service.Upload{Filename: fh.Filename, Reader: f})
	}
	return uploads, closeAll, nil
}
