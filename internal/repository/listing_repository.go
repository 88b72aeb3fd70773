package repository

import (
	"context"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/d60-Lab/marketplace/internal/model"
)

// ListingFilter 列表查询条件，按 filter → search → order → paginate 顺序应用
type ListingFilter struct {
	CategoryID *uint
	UserID     *uint
	Search     string
	Ordering   string
	Offset     int
	Limit      int
}

var listingOrderings = map[string]string{
	"price":       "listings.price ASC, listings.id ASC",
	"-price":      "listings.price DESC, listings.id DESC",
	"created_at":  "listings.created_at ASC, listings.id ASC",
	"-created_at": "listings.created_at DESC, listings.id DESC",
}

const defaultListingOrdering = "-created_at"

// ListingRepository 商品仓储接口
type ListingRepository interface {
	Query(ctx context.Context, f ListingFilter) ([]*model.Listing, int64, error)
	GetByID(ctx context.Context, id uint) (*model.Listing, error)
	GetOwnerID(ctx context.Context, id uint) (uint, error)
	// Save 在一个事务内写入商品（ID 为 0 时新建，否则原地更新）并批量追加图片
	Save(ctx context.Context, l *model.Listing, images []model.ListingImage) error
	Delete(ctx context.Context, id uint) ([]model.ListingImage, error)

	ListImages(ctx context.Context, listingID uint) ([]*model.ListingImage, error)
	AddImages(ctx context.Context, images []model.ListingImage) error
	GetImage(ctx context.Context, listingID, imageID uint) (*model.ListingImage, error)
	DeleteImage(ctx context.Context, imageID uint) error
}

type listingRepository struct{ db *gorm.DB }

func NewListingRepository(db *gorm.DB) ListingRepository { return &listingRepository{db: db} }

func withListingRelations(db *gorm.DB) *gorm.DB {
	return db.
		Preload("Images", func(tx *gorm.DB) *gorm.DB { return tx.Order("listing_images.id ASC") }).
		Preload("User").
		Preload("Category")
}

func (r *listingRepository) Query(ctx context.Context, f ListingFilter) ([]*model.Listing, int64, error) {
	q := r.db.WithContext(ctx).Model(&model.Listing{})

	// filter
	if f.CategoryID != nil {
		q = q.Where("listings.category_id = ?", *f.CategoryID)
	}
	if f.UserID != nil {
		q = q.Where("listings.user_id = ?", *f.UserID)
	}

	// search
	if s := strings.TrimSpace(f.Search); s != "" {
		like := "%" + escapeLike(strings.ToLower(s)) + "%"
		q = q.Joins("JOIN users ON users.id = listings.user_id").
			Where("(LOWER(listings.title) LIKE ? ESCAPE '\\' OR LOWER(COALESCE(listings.description, '')) LIKE ? ESCAPE '\\' OR LOWER(users.name) LIKE ? ESCAPE '\\')",
				like, like, like)
	}
	q = q.Session(&gorm.Session{})

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	// order
	order, ok := listingOrderings[f.Ordering]
	if !ok {
		order = listingOrderings[defaultListingOrdering]
	}

	// paginate
	var res []*model.Listing
	err := withListingRelations(q).
		Order(order).
		Offset(f.Offset).
		Limit(f.Limit).
		Find(&res).Error
	if err != nil {
		return nil, 0, err
	}
	return res, total, nil
}

func (r *listingRepository) GetByID(ctx context.Context, id uint) (*model.Listing, error) {
	var l model.Listing
	if err := withListingRelations(r.db.WithContext(ctx)).First(&l, id).Error; err != nil {
		return nil, err
	}
	return &l, nil
}

func (r *listingRepository) GetOwnerID(ctx context.Context, id uint) (uint, error) {
	var l model.Listing
	if err := r.db.WithContext(ctx).Select("id", "user_id").First(&l, id).Error; err != nil {
		return 0, err
	}
	return l.UserID, nil
}

func (r *listingRepository) Save(ctx context.Context, l *model.Listing, images []model.ListingImage) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if l.ID == 0 {
			if err := tx.Omit(clause.Associations).Create(l).Error; err != nil {
				return err
			}
		} else {
			if err := tx.Model(l).
				Select("title", "price", "category_id", "latitude", "longitude", "description").
				Updates(l).Error; err != nil {
				return err
			}
		}
		if len(images) == 0 {
			return nil
		}
		for i := range images {
			images[i].ListingID = l.ID
		}
		return tx.Create(&images).Error
	})
}

func (r *listingRepository) Delete(ctx context.Context, id uint) ([]model.ListingImage, error) {
	var images []model.ListingImage
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("listing_id = ?", id).Find(&images).Error; err != nil {
			return err
		}
		if err := tx.Where("listing_id = ?", id).Delete(&model.ListingImage{}).Error; err != nil {
			return err
		}
		res := tx.Delete(&model.Listing{}, id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return images, nil
}

func (r *listingRepository) ListImages(ctx context.Context, listingID uint) ([]*model.ListingImage, error) {
	var res []*model.ListingImage
	err := r.db.WithContext(ctx).Where("listing_id = ?", listingID).Order("id ASC").Find(&res).Error
	return res, err
}

func (r *listingRepository) AddImages(ctx context.Context, images []model.ListingImage) error {
	if len(images) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&images).Error
}

func (r *listingRepository) GetImage(ctx context.Context, listingID, imageID uint) (*model.ListingImage, error) {
	var img model.ListingImage
	if err := r.db.WithContext(ctx).Where("listing_id = ?", listingID).First(&img, imageID).Error; err != nil {
		return nil, err
	}
	return &img, nil
}

func (r *listingRepository) DeleteImage(ctx context.Context, imageID uint) error {
	return r.db.WithContext(ctx).Delete(&model.ListingImage{}, imageID).Error
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
