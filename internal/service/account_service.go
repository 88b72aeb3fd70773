package service

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/d60-Lab/marketplace/internal/media"
	"github.com/d60-Lab/marketplace/internal/model"
	"github.com/d60-Lab/marketplace/internal/push"
	"github.com/d60-Lab/marketplace/internal/repository"
	"github.com/d60-Lab/marketplace/pkg/jwtauth"
	"github.com/d60-Lab/marketplace/pkg/logger"
)

// AccountService 账号、头像与推送 token
type AccountService interface {
	Register(ctx context.Context, email, name, password string) (*model.User, error)
	// Login 校验密码并签发访问令牌
	Login(ctx context.Context, email, password string) (*model.User, string, time.Time, error)
	Get(ctx context.Context, id uint) (*model.User, error)
	UpdateName(ctx context.Context, actor Actor, name string) (*model.User, error)
	SetAvatar(ctx context.Context, actor Actor, file Upload) (*model.User, error)
	GetPushToken(ctx context.Context, actor Actor) (*string, error)
	SetPushToken(ctx context.Context, actor Actor, token string) (*string, error)
}

type accountService struct {
	users  repository.UserRepository
	issuer *jwtauth.Issuer
	media  *media.Processor
}

func NewAccountService(users repository.UserRepository, issuer *jwtauth.Issuer, processor *media.Processor) AccountService {
	return &accountService{users: users, issuer: issuer, media: processor}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *accountService) Register(ctx context.Context, email, name, password string) (*model.User, error) {
	email = normalizeEmail(email)
	v := &ValidationError{}
	if _, err := mail.ParseAddress(email); err != nil || email == "" {
		v.Add("email", "Enter a valid email address.")
	}
	if len(password) < 8 {
		v.Add("password", "This password is too short. It must contain at least 8 characters.")
	}
	if err := v.Err(); err != nil {
		return nil, err
	}

	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		return nil, invalid("email", "user with this email already exists.")
	} else if !errors.Is(notFound(err), ErrNotFound) {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	u := &model.User{Email: email, Name: strings.TrimSpace(name), PasswordHash: string(hash)}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, err
	}
	logger.Info("user registered", zap.Uint("user_id", u.ID))
	return u, nil
}

func (s *accountService) Login(ctx context.Context, email, password string) (*model.User, string, time.Time, error) {
	u, err := s.users.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(notFound(err), ErrNotFound) {
			return nil, "", time.Time{}, ErrInvalidCredentials
		}
		return nil, "", time.Time{}, err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return nil, "", time.Time{}, ErrInvalidCredentials
	}
	tok, exp, err := s.issuer.Issue(u.ID)
	if err != nil {
		return nil, "", time.Time{}, err
	}
	return u, tok, exp, nil
}

func (s *accountService) Get(ctx context.Context, id uint) (*model.User, error) {
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, notFound(err)
	}
	return u, nil
}

func (s *accountService) UpdateName(ctx context.Context, actor Actor, name string) (*model.User, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, invalid("name", "This field may not be blank.")
	}
	if err := s.users.UpdateName(ctx, actor.ID, name); err != nil {
		return nil, err
	}
	return s.Get(ctx, actor.ID)
}

func (s *accountService) SetAvatar(ctx context.Context, actor Actor, file Upload) (*model.User, error) {
	old, err := s.Get(ctx, actor.ID)
	if err != nil {
		return nil, err
	}
	set, err := s.media.SaveImage("avatars", file.Filename, file.Reader, media.AvatarThumbnail)
	if err != nil {
		return nil, uploadError("avatar", err)
	}
	if err := s.users.UpdateAvatar(ctx, actor.ID, set.Original, set.Thumbnails[0]); err != nil {
		s.media.Store().Delete(set.All()...)
		return nil, err
	}
	s.media.Store().Delete(old.Avatar, old.AvatarThumbnail)
	return s.Get(ctx, actor.ID)
}

func (s *accountService) GetPushToken(ctx context.Context, actor Actor) (*string, error) {
	u, err := s.Get(ctx, actor.ID)
	if err != nil {
		return nil, err
	}
	return u.PushToken, nil
}

func (s *accountService) SetPushToken(ctx context.Context, actor Actor, token string) (*string, error) {
	token = strings.TrimSpace(token)
	var ptr *string
	if token != "" {
		if !push.ValidToken(token) {
			return nil, invalid("push_token", "Enter a valid Expo push token.")
		}
		ptr = &token
	}
	if err := s.users.SetPushToken(ctx, actor.ID, ptr); err != nil {
		return nil, err
	}
	return ptr, nil
}

// uploadError turns media rejections into field errors.
func uploadError(field string, err error) error {
	switch {
	case errors.Is(err, media.ErrNotImage):
		return invalid(field, "Upload a valid image. The file you uploaded was either not an image or a corrupted image.")
	case errors.Is(err, media.ErrTooLarge):
		return invalid(field, "The uploaded file is too large.")
	}
	return err
}
