package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"taskdesk/internal/domain"
	"taskdesk/internal/repository"
)

// CSRFIntent names the token id shared by the login and registration forms.
const CSRFIntent = "authenticate"

const (
	RouteRegister = "/register"
	RouteLogin    = "/login"
)

var (
	// ErrInvalidCredentials indicates that provided login credentials are incorrect.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUserNotFound is returned when a session points at a user that no longer exists.
	ErrUserNotFound = errors.New("user not found")
)

// CSRFValidator checks an anti-forgery token submitted with a form.
// binding is the browser side half of the token (the CSRF cookie).
type CSRFValidator interface {
	Validate(intent, token, binding string) error
}

type FlashKind string

const (
	FlashError   FlashKind = "error"
	FlashSuccess FlashKind = "success"
)

// Flash is a transient notice shown once after a redirect.
// FirstName and LastName refill the registration form after a rejection.
type Flash struct {
	Kind         FlashKind
	Message      string
	LastUsername string
	FirstName    string
	LastName     string
}

// Outcome tells the presentation layer where to send the browser and what to show.
type Outcome struct {
	Redirect string
	Flash    Flash
}

// RegisterInput carries the registration form.
type RegisterInput struct {
	FirstName            string `form:"first_name" validate:"max=255"`
	LastName             string `form:"last_name" validate:"max=255"`
	Email                string `form:"email" validate:"required,email,max=180"`
	Password             string `form:"password" validate:"required"`
	PasswordConfirmation string `form:"password_confirmation"`
	CSRFToken            string `form:"_csrf_token"`
	CSRFBinding          string `form:"-"`
}

// UserService describes user lifecycle operations.
type UserService interface {
	Register(ctx context.Context, input RegisterInput) (Outcome, error)
	Authenticate(ctx context.Context, email, password string) (*domain.User, error)
	GetByID(ctx context.Context, id int64) (*domain.User, error)
}

type userService struct {
	users    repository.UserRepository
	hasher   PasswordHasher
	csrf     CSRFValidator
	validate *validator.Validate
	logger   *logrus.Logger
}

func NewUserService(users repository.UserRepository, hasher PasswordHasher, csrf CSRFValidator, logger *logrus.Logger) UserService {
	if logger == nil {
		logger = logrus.New()
	}
	return &userService{
		users:    users,
		hasher:   hasher,
		csrf:     csrf,
		validate: newValidator(),
		logger:   logger,
	}
}

func (s *userService) Register(ctx context.Context, input RegisterInput) (Outcome, error) {
	input.Email = strings.TrimSpace(input.Email)
	input.FirstName = strings.TrimSpace(input.FirstName)
	input.LastName = strings.TrimSpace(input.LastName)

	if err := s.csrf.Validate(CSRFIntent, input.CSRFToken, input.CSRFBinding); err != nil {
		s.logger.WithError(err).Warn("registration rejected: csrf")
		return registerFailure("invalid CSRF token", input), nil
	}
	if input.Password != input.PasswordConfirmation {
		return registerFailure("passwords do not match", input), nil
	}
	if err := validateStruct(s.validate, input); err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) && len(verr.Fields) > 0 {
			return registerFailure(verr.Fields[0].Message, input), nil
		}
		return registerFailure("invalid registration form", input), nil
	}

	hash, err := s.hasher.Hash(input.Password)
	if err != nil {
		return registerFailure("registration failed, please try again", input), err
	}

	user := &domain.User{
		FirstName:    input.FirstName,
		LastName:     input.LastName,
		Email:        input.Email,
		PasswordHash: hash,
	}
	if _, err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return registerFailure("an account with this email already exists", input), nil
		}
		return registerFailure("registration failed, please try again", input), storageError("create user", err)
	}

	s.logger.WithField("user_id", user.ID).Info("user registered")
	return Outcome{
		Redirect: RouteLogin,
		Flash: Flash{
			Kind:         FlashSuccess,
			Message:      "registration successful, you can now log in",
			LastUsername: user.Email,
		},
	}, nil
}

func registerFailure(message string, input RegisterInput) Outcome {
	return Outcome{
		Redirect: RouteRegister,
		Flash: Flash{
			Kind:         FlashError,
			Message:      message,
			LastUsername: input.Email,
			FirstName:    input.FirstName,
			LastName:     input.LastName,
		},
	}
}

func (s *userService) Authenticate(ctx context.Context, email, password string) (*domain.User, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, storageError("get user", err)
	}

	if !s.hasher.Verify(user.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}

	if s.hasher.NeedsRehash(user.PasswordHash) {
		s.upgradePassword(ctx, user, password)
	}

	return sanitizeUser(user), nil
}

// upgradePassword re-hashes with the current parameters. Failure keeps the old hash.
func (s *userService) upgradePassword(ctx context.Context, user *domain.User, password string) {
	hash, err := s.hasher.Hash(password)
	if err != nil {
		s.logger.WithError(err).WithField("user_id", user.ID).Warn("password upgrade: hash")
		return
	}
	if err := s.users.UpdatePasswordHash(ctx, user.ID, hash); err != nil {
		s.logger.WithError(err).WithField("user_id", user.ID).Warn("password upgrade: store")
		return
	}
	user.PasswordHash = hash
	s.logger.WithField("user_id", user.ID).Info("password hash upgraded")
}

func (s *userService) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("user %d: %w", id, ErrUserNotFound)
		}
		return nil, storageError("get user", err)
	}
	return sanitizeUser(user), nil
}

func sanitizeUser(user *domain.User) *domain.User {
	if user == nil {
		return nil
	}
	return &domain.User{
		ID:        user.ID,
		FirstName: user.FirstName,
		LastName:  user.LastName,
		Email:     user.Email,
		CreatedAt: user.CreatedAt,
		UpdatedAt: user.UpdatedAt,
	}
}
