package models

import (
	"time"

	"github.com/golang-jwt/jwt/v4"
	"gorm.io/gorm"
)

type User struct {
	ID          uint           `json:"id" gorm:"primaryKey"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"-"`
	DeletedAt   gorm.DeletedAt `json:"-" gorm:"index"`
	Name        string         `json:"name"`
	Handle      string         `json:"handle" gorm:"size:30;uniqueIndex"` // public @handle shown in notifications
	Email       string         `json:"email" gorm:"uniqueIndex"`
	AvatarURL   string         `json:"avatar_url"`
	Password    string         `json:"-"` // hashed, never serialized
	FirebaseUID string         `json:"firebase_uid,omitempty" gorm:"index"` // empty for password-only accounts
}

// UserCompact is the reduced shape embedded in notification and feed payloads.
type UserCompact struct {
	ID        uint   `json:"id"`
	Name      string `json:"name"`
	Handle    string `json:"handle"`
	AvatarURL string `json:"avatar_url"`
}

func (u *User) ToCompact() UserCompact {
	return UserCompact{ID: u.ID, Name: u.Name, Handle: u.Handle, AvatarURL: u.AvatarURL}
}

// DeviceToken is a push-notification registration for one of a user's devices.
type DeviceToken struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	UserID    uint      `json:"user_id" gorm:"index;uniqueIndex:idx_user_device"`
	Token     string    `json:"token" gorm:"size:255;uniqueIndex:idx_user_device"`
	Platform  string    `json:"platform" gorm:"size:10"` // ios, android
	CreatedAt time.Time `json:"created_at"`
}

type CreateUserRequest struct {
	Name        string `json:"name" validate:"required,min=2,max=50"`
	Handle      string `json:"handle" validate:"required,min=2,max=30"`
	Email       string `json:"email" validate:"required,email"`
	FirebaseUID string `json:"firebase_uid" validate:"required"`
}

type CreateLocalUserRequest struct {
	Name     string `json:"name" validate:"required,min=2,max=50"`
	Handle   string `json:"handle" validate:"required,min=2,max=30"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

type UpdateUserRequest struct {
	Name      string `json:"name,omitempty" validate:"omitempty,min=2,max=50"`
	Handle    string `json:"handle,omitempty" validate:"omitempty,min=2,max=30"`
	AvatarURL string `json:"avatar_url,omitempty" validate:"omitempty,url"`
}

type RegisterDeviceRequest struct {
	Token    string `json:"token" validate:"required"`
	Platform string `json:"platform" validate:"required,oneof=ios android"`
}

// JwtCustomClaims are custom claims extending standard jwt.RegisteredClaims
type JwtCustomClaims struct {
	UserID uint   `json:"user_id"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}
