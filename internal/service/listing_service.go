package service

import (
	"context"
	"errors"
	"math"
	"strings"

	"go.uber.org/zap"

	"github.com/d60-Lab/marketplace/internal/media"
	"github.com/d60-Lab/marketplace/internal/model"
	"github.com/d60-Lab/marketplace/internal/repository"
	"github.com/d60-Lab/marketplace/pkg/logger"
)

// decimal(10,2)
const maxPrice = 99999999.99

// ListingInput 商品写入参数
type ListingInput struct {
	Title       string
	Price       float64
	CategoryID  uint
	Latitude    *float64
	Longitude   *float64
	Description *string
}

// ListingQuery 商品列表查询参数
type ListingQuery struct {
	CategoryID *uint
	UserID     *uint
	Search     string
	Ordering   string
	Page       int
}

// ListingService 商品服务
type ListingService interface {
	List(ctx context.Context, q ListingQuery) (*Paged[*model.Listing], error)
	Mine(ctx context.Context, actor Actor, q ListingQuery) (*Paged[*model.Listing], error)
	Get(ctx context.Context, id uint) (*model.Listing, error)
	Create(ctx context.Context, actor Actor, in ListingInput, images []Upload) (*model.Listing, error)
	// Upsert 按 id 存在与否更新或新建
	Upsert(ctx context.Context, actor Actor, id uint, in ListingInput, images []Upload) (*model.Listing, bool, error)
	Delete(ctx context.Context, actor Actor, id uint) error

	ListImages(ctx context.Context, listingID uint) ([]*model.ListingImage, error)
	AddImage(ctx context.Context, actor Actor, listingID uint, file Upload) (*model.ListingImage, error)
	DeleteImage(ctx context.Context, actor Actor, listingID, imageID uint) error
}

type listingService struct {
	listings   repository.ListingRepository
	categories repository.CategoryRepository
	media      *media.Processor
	pageSize   int
}

func NewListingService(listings repository.ListingRepository, categories repository.CategoryRepository, processor *media.Processor, pageSize int) ListingService {
	if pageSize <= 0 {
		pageSize = 30
	}
	return &listingService{listings: listings, categories: categories, media: processor, pageSize: pageSize}
}

func (s *listingService) List(ctx context.Context, q ListingQuery) (*Paged[*model.Listing], error) {
	page, offset := pageOffset(q.Page, s.pageSize)
	items, total, err := s.listings.Query(ctx, repository.ListingFilter{
		CategoryID: q.CategoryID,
		UserID:     q.UserID,
		Search:     q.Search,
		Ordering:   q.Ordering,
		Offset:     offset,
		Limit:      s.pageSize,
	})
	if err != nil {
		return nil, err
	}
	return &Paged[*model.Listing]{Items: items, Total: total, Page: page, PageSize: s.pageSize}, nil
}

func (s *listingService) Mine(ctx context.Context, actor Actor, q ListingQuery) (*Paged[*model.Listing], error) {
	q.UserID = &actor.ID
	return s.List(ctx, q)
}

func (s *listingService) Get(ctx context.Context, id uint) (*model.Listing, error) {
	l, err := s.listings.GetByID(ctx, id)
	if err != nil {
		return nil, notFound(err)
	}
	return l, nil
}

func (s *listingService) validate(ctx context.Context, in *ListingInput) error {
	v := &ValidationError{}
	in.Title = strings.TrimSpace(in.Title)
	switch {
	case in.Title == "":
		v.Add("title", "This field may not be blank.")
	case len([]rune(in.Title)) > 255:
		v.Add("title", "Ensure this field has no more than 255 characters.")
	}

	switch {
	case math.IsNaN(in.Price) || math.IsInf(in.Price, 0):
		v.Add("price", "A valid number is required.")
	case in.Price < 0:
		v.Add("price", "Ensure this value is greater than or equal to 0.")
	case in.Price > maxPrice:
		v.Add("price", "Ensure that there are no more than 10 digits in total.")
	case math.Abs(math.Round(in.Price*100)-in.Price*100) > 1e-6:
		v.Add("price", "Ensure that there are no more than 2 decimal places.")
	}

	if in.Latitude != nil && (*in.Latitude < -90 || *in.Latitude > 90) {
		v.Add("latitude", "Ensure this value is between -90 and 90.")
	}
	if in.Longitude != nil && (*in.Longitude < -180 || *in.Longitude > 180) {
		v.Add("longitude", "Ensure this value is between -180 and 180.")
	}

	if in.CategoryID == 0 {
		v.Add("category", "This field is required.")
	} else {
		ok, err := s.categories.Exists(ctx, in.CategoryID)
		if err != nil {
			return err
		}
		if !ok {
			v.Add("category", "Invalid pk - object does not exist.")
		}
	}
	return v.Err()
}

func (s *listingService) Create(ctx context.Context, actor Actor, in ListingInput, images []Upload) (*model.Listing, error) {
	return s.save(ctx, actor, 0, in, images)
}

func (s *listingService) Upsert(ctx context.Context, actor Actor, id uint, in ListingInput, images []Upload) (*model.Listing, bool, error) {
	ownerID, err := s.listings.GetOwnerID(ctx, id)
	switch {
	case err == nil:
		if err := ensureOwner(actor, ownerID); err != nil {
			return nil, false, err
		}
		l, err := s.save(ctx, actor, id, in, images)
		return l, false, err
	case errors.Is(notFound(err), ErrNotFound):
		l, err := s.save(ctx, actor, 0, in, images)
		return l, true, err
	default:
		return nil, false, err
	}
}

// save writes the row and bulk-inserts the new images in one transaction.
func (s *listingService) save(ctx context.Context, actor Actor, id uint, in ListingInput, images []Upload) (*model.Listing, error) {
	if err := s.validate(ctx, &in); err != nil {
		return nil, err
	}

	rows, stored, err := s.storeImages(images)
	if err != nil {
		return nil, err
	}

	l := &model.Listing{
		ID:          id,
		Title:       in.Title,
		Price:       in.Price,
		CategoryID:  in.CategoryID,
		UserID:      actor.ID,
		Latitude:    in.Latitude,
		Longitude:   in.Longitude,
		Description: in.Description,
	}
	if err := s.listings.Save(ctx, l, rows); err != nil {
		s.media.Store().Delete(stored...)
		return nil, err
	}
	return s.Get(ctx, l.ID)
}

func (s *listingService) storeImages(images []Upload) ([]model.ListingImage, []string, error) {
	rows := make([]model.ListingImage, 0, len(images))
	var stored []string
	for _, img := range images {
		set, err := s.media.SaveImage("listings", img.Filename, img.Reader, media.CardThumbnail, media.DetailThumbnail)
		if err != nil {
			s.media.Store().Delete(stored...)
			return nil, nil, uploadError("images", err)
		}
		stored = append(stored, set.All()...)
		rows = append(rows, model.ListingImage{
			Image:           set.Original,
			ThumbnailCard:   set.Thumbnails[0],
			ThumbnailDetail: set.Thumbnails[1],
		})
	}
	return rows, stored, nil
}

func (s *listingService) Delete(ctx context.Context, actor Actor, id uint) error {
	ownerID, err := s.listings.GetOwnerID(ctx, id)
	if err != nil {
		return notFound(err)
	}
	if err := ensureOwner(actor, ownerID); err != nil {
		return err
	}
	images, err := s.listings.Delete(ctx, id)
	if err != nil {
		return notFound(err)
	}
	for i := range images {
		s.media.Store().Delete(images[i].Paths()...)
	}
	logger.Info("listing deleted", zap.Uint("listing_id", id), zap.Uint("user_id", actor.ID))
	return nil
}

func (s *listingService) ListImages(ctx context.Context, listingID uint) ([]*model.ListingImage, error) {
	if _, err := s.listings.GetOwnerID(ctx, listingID); err != nil {
		return nil, notFound(err)
	}
	return s.listings.ListImages(ctx, listingID)
}

func (s *listingService) AddImage(ctx context.Context, actor Actor, listingID uint, file Upload) (*model.ListingImage, error) {
	ownerID, err := s.listings.GetOwnerID(ctx, listingID)
	if err != nil {
		return nil, notFound(err)
	}
	if err := ensureOwner(actor, ownerID); err != nil {
		return nil, err
	}
	rows, stored, err := s.storeImages([]Upload{file})
	if err != nil {
		if v := (*ValidationError)(nil); errors.As(err, &v) {
			return nil, invalid("image", v.Fields["images"][0])
		}
		return nil, err
	}
	rows[0].ListingID = listingID
	if err := s.listings.AddImages(ctx, rows); err != nil {
		s.media.Store().Delete(stored...)
		return nil, err
	}
	return &rows[0], nil
}

func (s *listingService) DeleteImage(ctx context.Context, actor Actor, listingID, imageID uint) error {
	ownerID, err := s.listings.GetOwnerID(ctx, listingID)
	if err != nil {
		return notFound(err)
	}
	if err := ensureOwner(actor, ownerID); err != nil {
		return err
	}
	img, err := s.listings.GetImage(ctx, listingID, imageID)
	if err != nil {
		return notFound(err)
	}
	if err := s.listings.DeleteImage(ctx, img.ID); err != nil {
		return err
	}
	s.media.Store().Delete(img.Paths()...)
	return nil
}
