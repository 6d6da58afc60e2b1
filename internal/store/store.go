package store

import (
	"context"
	"errors"
	"time"
)

var ErrUsernameTaken = errors.New("username already taken")

type User struct {
	ID           int64     `json:"-"`
	FirstName    string    `json:"first_name"`
	LastName     string    `json:"last_name"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

type Session struct {
	Token     string
	UserID    int64
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Video is the ownership record of one produced artifact. Filename is
// relative to the artifact store root.
type Video struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"-"`
	Filename  string    `json:"-"`
	Query     string    `json:"query"`
	CreatedAt time.Time `json:"created_at"`
}

// Store persists accounts, sessions and video ownership.
type Store interface {
	CreateUser(ctx context.Context, u *User) error
	GetUserByUsername(ctx context.Context, username string) (*User, error)
	GetUserByID(ctx context.Context, id int64) (*User, error)
	ListUsers(ctx context.Context) ([]*User, error)

	CreateSession(ctx context.Context, s *Session) error
	GetSession(ctx context.Context, token string) (*Session, error)
	DeleteSession(ctx context.Context, token string) error
	// DeleteExpiredSessions removes sessions that expired before now.
	DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error)

	CreateVideo(ctx context.Context, v *Video) error
	// ListVideos returns a user's videos, newest first.
	ListVideos(ctx context.Context, userID int64) ([]*Video, error)
	GetVideo(ctx context.Context, userID, id int64) (*Video, error)
	DeleteVideo(ctx context.Context, userID, id int64) error
}
