// Package dto holds the HTTP wire representations.
package dto

type RegisterRequest struct {
	Email    string `json:"email" binding:"required,email,max=254"`
	Name     string `json:"name" binding:"max=255"`
	Password string `json:"password" binding:"required,min=8,max=128"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type UpdateMeRequest struct {
	Name string `json:"name" binding:"required,max=255"`
}

type CategoryRequest struct {
	Title string `json:"title" binding:"required,max=255"`
}

// ListingRequest is bound from JSON or multipart form; images come as multipart "images" files.
type ListingRequest struct {
	Title       string   `json:"title" form:"title" binding:"required"`
	Price       *float64 `json:"price" form:"price" binding:"required"`
	Category    *uint    `json:"category" form:"category" binding:"required"`
	Latitude    *float64 `json:"latitude" form:"latitude"`
	Longitude   *float64 `json:"longitude" form:"longitude"`
	Description *string  `json:"description" form:"description"`
}

type ListingQuery struct {
	Category *uint  `form:"category"`
	User     *uint  `form:"user"`
	Search   string `form:"search"`
	Ordering string `form:"ordering"`
	Page     int    `form:"page"`
}

// MessageRequest is bound from JSON or multipart form; attachments come as multipart "files".
type MessageRequest struct {
	ToUser              uint   `json:"to_user" form:"to_user" binding:"required"`
	Text                string `json:"text" form:"text"`
	UsedForReplyMessage *uint  `json:"used_for_reply_message" form:"used_for_reply_message"`
	AttachedListing     *uint  `json:"attached_listing" form:"attached_listing"`
	ForwardedMessages   []uint `json:"forwarded_messages" form:"forwarded_messages"`
}

type MessageUpdateRequest struct {
	Text string `json:"text" binding:"required"`
}

type MessageIDsRequest struct {
	IDs []uint `json:"ids" binding:"required,min=1"`
}

type MarkReadRequest struct {
	IDs      []uint `json:"ids"`
	FromUser *uint  `json:"from_user"`
}

type PageQuery struct {
	Page int `form:"page"`
}

type PushTokenRequest struct {
	PushToken *string `json:"push_token" binding:"required"`
}
