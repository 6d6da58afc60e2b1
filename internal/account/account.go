// Package account handles registration, password login and session
// resolution for the video service.
package account

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/avatargate/avatargate/internal/store"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrUnauthenticated     = errors.New("not authenticated")
	ErrUnknownUser         = errors.New("session user does not exist")
	ErrInvalidCredentials  = errors.New("invalid username or password")
	ErrInvalidRegistration = errors.New("invalid registration")
)

var usernameRegex = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// Registration holds the fields of a sign-up form.
type Registration struct {
	FirstName       string `form:"first_name" validate:"required,max=64"`
	LastName        string `form:"last_name" validate:"required,max=64"`
	Username        string `form:"username" validate:"required,min=3,max=32,username"`
	Password        string `form:"password" validate:"required,min=8,max=72"`
	ConfirmPassword string `form:"confirm_password" validate:"eqfield=Password"`
}

type Service struct {
	store    store.Store
	validate *validator.Validate
	ttl      time.Duration
	cost     int
	now      func() time.Time
}

// New returns a Service issuing sessions that live for ttl.
func New(st store.Store, ttl time.Duration) *Service {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		if name := f.Tag.Get("form"); name != "" {
			return name
		}
		return f.Name
	})
	// Only fails on an empty or reserved tag.
	_ = v.RegisterValidation("username", func(fl validator.FieldLevel) bool {
		return usernameRegex.MatchString(fl.Field().String())
	})

	return &Service{
		store:    st,
		validate: v,
		ttl:      ttl,
		cost:     bcrypt.DefaultCost,
		now:      time.Now,
	}
}

// Register validates reg and creates the user with a bcrypt password hash.
func (s *Service) Register(ctx context.Context, reg Registration) (*store.User, error) {
	reg.FirstName = strings.TrimSpace(reg.FirstName)
	reg.LastName = strings.TrimSpace(reg.LastName)
	reg.Username = strings.TrimSpace(reg.Username)

	if err := s.validate.Struct(reg); err != nil {
		return nil, describe(err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(reg.Password), s.cost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return nil, fmt.Errorf("%w: password is too long", ErrInvalidRegistration)
		}
		return nil, fmt.Errorf("hash password: %w", err)
	}

	u := &store.User{
		FirstName:    reg.FirstName,
		LastName:     reg.LastName,
		Username:     reg.Username,
		PasswordHash: string(hash),
	}
	if err := s.store.CreateUser(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// Login checks the password and opens a new session.
func (s *Service) Login(ctx context.Context, username, password string) (*store.Session, error) {
	u, err := s.store.GetUserByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	now := s.now().UTC()
	sess := &store.Session{
		Token:     uuid.NewString(),
		UserID:    u.ID,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}
	if err := s.store.CreateSession(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

func (s *Service) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	return s.store.DeleteSession(ctx, token)
}

// Resolve maps a session token to its user. A missing or expired session is
// ErrUnauthenticated; a live session whose user row is gone is ErrUnknownUser.
func (s *Service) Resolve(ctx context.Context, token string) (*store.User, error) {
	if token == "" {
		return nil, ErrUnauthenticated
	}
	sess, err := s.store.GetSession(ctx, token)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, ErrUnauthenticated
	}
	if !s.now().Before(sess.ExpiresAt) {
		if err := s.store.DeleteSession(ctx, token); err != nil {
			return nil, err
		}
		return nil, ErrUnauthenticated
	}

	u, err := s.store.GetUserByID(ctx, sess.UserID)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, ErrUnknownUser
	}
	return u, nil
}

func describe(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrInvalidRegistration, err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fieldMessage(fe))
	}
	return fmt.Errorf("%w: %s", ErrInvalidRegistration, strings.Join(msgs, "; "))
}

func fieldMessage(fe validator.FieldError) string {
	name := fe.Field()
	switch fe.Tag() {
	case "required":
		return name + " is required"
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", name, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", name, fe.Param())
	case "username":
		return name + " may only contain letters, digits and underscores"
	case "eqfield":
		return "passwords do not match"
	default:
		return name + " is invalid"
	}
}
