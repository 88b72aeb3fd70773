package model

// Category 商品分类
type Category struct {
	ID    uint   `gorm:"primaryKey"`
	Title string `gorm:"type:varchar(255);not null"`
}

func (Category) TableName() string { return "categories" }
