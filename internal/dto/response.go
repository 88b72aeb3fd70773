package dto

import (
	"time"

	"github.com/d60-Lab/marketplace/internal/model"
)

type UserBrief struct {
	ID              uint   `json:"id"`
	Name            string `json:"name"`
	Avatar          string `json:"avatar,omitempty"`
	AvatarThumbnail string `json:"avatar_thumbnail,omitempty"`
}

type MeResponse struct {
	UserBrief
	Email   string `json:"email"`
	IsStaff bool   `json:"is_staff"`
}

type TokenResponse struct {
	Access    string     `json:"access"`
	ExpiresAt time.Time  `json:"expires_at"`
	User      MeResponse `json:"user"`
}

type CategoryResponse struct {
	ID    uint   `json:"id"`
	Title string `json:"title"`
}

type ListingImageResponse struct {
	ID              uint   `json:"id"`
	Image           string `json:"image"`
	ThumbnailCard   string `json:"thumbnail_card"`
	ThumbnailDetail string `json:"thumbnail_detail"`
}

type ListingResponse struct {
	ID          uint                   `json:"id"`
	Title       string                 `json:"title"`
	Price       float64                `json:"price"`
	Category    *CategoryResponse      `json:"category,omitempty"`
	CategoryID  uint                   `json:"category_id"`
	User        *UserBrief             `json:"user,omitempty"`
	Latitude    *float64               `json:"latitude"`
	Longitude   *float64               `json:"longitude"`
	Description *string                `json:"description"`
	CreatedAt   time.Time              `json:"created_at"`
	Images      []ListingImageResponse `json:"images"`
}

type MessageFileResponse struct {
	ID   uint   `json:"id"`
	File string `json:"file"`
	Name string `json:"name"`
	Size int64  `json:"size"`
}

type ReplyPreview struct {
	ID         uint   `json:"id"`
	FromUserID uint   `json:"from_user"`
	Text       string `json:"text"`
}

type MessageResponse struct {
	ID                  uint                  `json:"id"`
	FromUser            UserBrief             `json:"from_user"`
	ToUser              UserBrief             `json:"to_user"`
	Text                string                `json:"text"`
	SentAt              time.Time             `json:"sent_at"`
	UsedForReplyMessage *ReplyPreview         `json:"used_for_reply_message"`
	AttachedListing     *ListingResponse      `json:"attached_listing"`
	IsEdited            bool                  `json:"is_edited"`
	IsRead              bool                  `json:"is_read"`
	Files               []MessageFileResponse `json:"files"`
	ForwardedMessages   []MessageResponse     `json:"forwarded_messages"`
}

type PushTokenResponse struct {
	PushToken *string `json:"push_token"`
}

type CountResponse struct {
	Updated int64 `json:"updated"`
}

// MessageEvent is the realtime frame carrying a rendered message.
type MessageEvent struct {
	Type    string          `json:"type"`
	Message MessageResponse `json:"message"`
}

// Mapper renders models, turning stored media paths into URLs.
type Mapper struct {
	URL func(path string) string
}

func (m Mapper) url(p string) string {
	if m.URL == nil {
		return p
	}
	return m.URL(p)
}

func (m Mapper) UserBrief(u *model.User) UserBrief {
	if u == nil {
		return UserBrief{}
	}
	return UserBrief{ID: u.ID, Name: u.Name, Avatar: m.url(u.Avatar), AvatarThumbnail: m.url(u.AvatarThumbnail)}
}

func (m Mapper) Me(u *model.User) MeResponse {
	return MeResponse{UserBrief: m.UserBrief(u), Email: u.Email, IsStaff: u.IsStaff}
}

func (m Mapper) Category(c *model.Category) CategoryResponse {
	return CategoryResponse{ID: c.ID, Title: c.Title}
}

func (m Mapper) Categories(cs []*model.Category) []CategoryResponse {
	out := make([]CategoryResponse, len(cs))
	for i, c := range cs {
		out[i] = m.Category(c)
	}
	return out
}

func (m Mapper) ListingImage(img *model.ListingImage) ListingImageResponse {
	return ListingImageResponse{
		ID:              img.ID,
		Image:           m.url(img.Image),
		ThumbnailCard:   m.url(img.ThumbnailCard),
		ThumbnailDetail: m.url(img.ThumbnailDetail),
	}
}

func (m Mapper) ListingImages(imgs []*model.ListingImage) []ListingImageResponse {
	out := make([]ListingImageResponse, len(imgs))
	for i, img := range imgs {
		out[i] = m.ListingImage(img)
	}
	return out
}

func (m Mapper) Listing(l *model.Listing) ListingResponse {
	out := ListingResponse{
		ID:          l.ID,
		Title:       l.Title,
		Price:       l.Price,
		CategoryID:  l.CategoryID,
		Latitude:    l.Latitude,
		Longitude:   l.Longitude,
		Description: l.Description,
		CreatedAt:   l.CreatedAt,
		Images:      make([]ListingImageResponse, len(l.Images)),
	}
	if l.Category != nil {
		c := m.Category(l.Category)
		out.Category = &c
	}
	if l.User != nil {
		u := m.UserBrief(l.User)
		out.User = &u
	}
	for i := range l.Images {
		out.Images[i] = m.ListingImage(&l.Images[i])
	}
	return out
}

func (m Mapper) Listings(ls []*model.Listing) []ListingResponse {
	out := make([]ListingResponse, len(ls))
	for i, l := range ls {
		out[i] = m.Listing(l)
	}
	return out
}

func (m Mapper) Message(msg *model.Message) MessageResponse {
	out := MessageResponse{
		ID:                msg.ID,
		FromUser:          m.UserBrief(msg.FromUser),
		ToUser:            m.UserBrief(msg.ToUser),
		Text:              msg.Text,
		SentAt:            msg.SentAt,
		IsEdited:          msg.IsEdited,
		IsRead:            msg.IsRead,
		Files:             make([]MessageFileResponse, len(msg.Files)),
		ForwardedMessages: make([]MessageResponse, 0, len(msg.Forwards)),
	}
	if msg.FromUser == nil {
		out.FromUser.ID = msg.FromUserID
	}
	if msg.ToUser == nil {
		out.ToUser.ID = msg.ToUserID
	}
	if r := msg.UsedForReplyMessage; r != nil {
		out.UsedForReplyMessage = &ReplyPreview{ID: r.ID, FromUserID: r.FromUserID, Text: r.Text}
	}
	if msg.AttachedListing != nil {
		l := m.Listing(msg.AttachedListing)
		out.AttachedListing = &l
	}
	for i, f := range msg.Files {
		out.Files[i] = MessageFileResponse{ID: f.ID, File: m.url(f.File), Name: f.OriginalName, Size: f.Size}
	}
	for _, fw := range msg.Forwards {
		if fw.Message != nil {
			out.ForwardedMessages = append(out.ForwardedMessages, m.Message(fw.Message))
		}
	}
	return out
}

func (m Mapper) Messages(ms []*model.Message) []MessageResponse {
	out := make([]MessageResponse, len(ms))
	for i, msg := range ms {
		out[i] = m.Message(msg)
	}
	return out
}
