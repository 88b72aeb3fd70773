package model

import "time"

// Listing 商品（发布者独占）
type Listing struct {
	ID          uint      `gorm:"primaryKey"`
	Title       string    `gorm:"type:varchar(255);not null"`
	Price       float64   `gorm:"type:decimal(10,2);not null"`
	CategoryID  uint      `gorm:"not null;index"`
	Category    *Category `gorm:"constraint:OnUpdate:CASCADE,OnDelete:RESTRICT"`
	UserID      uint      `gorm:"not null;index"`
	User        *User     `gorm:"constraint:OnDelete:CASCADE"`
	Latitude    *float64  `gorm:"type:decimal(10,7)"`
	Longitude   *float64  `gorm:"type:decimal(10,7)"`
	Description *string   `gorm:"type:text"`
	CreatedAt   time.Time `gorm:"index"`

	Images []ListingImage `gorm:"constraint:OnDelete:CASCADE"`
}

func (Listing) TableName() string { return "listings" }

// ListingImage 商品图片，缩略图在保存时同步生成
type ListingImage struct {
	ID              uint   `gorm:"primaryKey"`
	ListingID       uint   `gorm:"not null;index"`
	Image           string `gorm:"type:varchar(255);not null"`
	ThumbnailCard   string `gorm:"type:varchar(255)"`
	ThumbnailDetail string `gorm:"type:varchar(255)"`
	CreatedAt       time.Time
}

func (ListingImage) TableName() string { return "listing_images" }

// Paths returns every stored file path of the image.
func (i *ListingImage) Paths() []string {
	out := make([]string, 0, 3)
	for _, p := range []string{i.Image, i.ThumbnailCard, i.ThumbnailDetail} {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
