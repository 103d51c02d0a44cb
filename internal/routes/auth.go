package routes

import (
	"errors"
	"io"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"github.com/hb-library/library-api/internal/auth"
	"github.com/hb-library/library-api/internal/media"
	"github.com/hb-library/library-api/internal/metrics"
	"github.com/hb-library/library-api/internal/middleware"
	"github.com/hb-library/library-api/internal/models"
	"github.com/hb-library/library-api/internal/store"
	apperrors "github.com/hb-library/library-api/pkg/errors"
)

const minPasswordLength = 6

// AuthHandler handles registration, login and profile endpoints
type AuthHandler struct {
	users    store.UserStore
	tokens   *auth.TokenService
	uploader *media.Uploader
	logger   *logrus.Logger
}

func NewAuthHandler(users store.UserStore, tokens *auth.TokenService, uploader *media.Uploader, logger *logrus.Logger) *AuthHandler {
	return &AuthHandler{
		users:    users,
		tokens:   tokens,
		uploader: uploader,
		logger:   logger,
	}
}

// Register handles user registration
// @Summary User registration
// @Description Register a new library member and return a JWT token
// @Tags Auth
// @Accept json
// @Produce json
// @Param request body models.RegisterRequest true "Registration data"
// @Success 201 {object} models.AuthResponse
// @Failure 400 {object} errors.ErrorResponse "Invalid request"
// @Failure 409 {object} errors.ErrorResponse "Email already registered"
// @Router /auth/register [post]
func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req models.RegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	req.Name = strings.TrimSpace(req.Name)
	req.Email = normalizeEmail(req.Email)

	if req.Name == "" {
		return respondError(c, apperrors.New(apperrors.CodeInvalidArgument, "name is required", nil))
	}
	if !validEmail(req.Email) {
		return respondError(c, apperrors.New(apperrors.CodeInvalidArgument, "invalid email address", nil))
	}
	if len(req.Password) < minPasswordLength {
		return respondError(c, apperrors.Newf(apperrors.CodeInvalidArgument, nil,
			"password must be at least %d characters", minPasswordLength))
	}

	// Uniqueness is case-insensitive: emails are stored lowercased
	if _, err := h.users.GetByEmail(c.Context(), req.Email); err == nil {
		return respondError(c, apperrors.New(apperrors.CodeConflict, "Email already registered", nil))
	} else if !isNotFound(err) {
		return respondError(c, apperrors.New(apperrors.CodeStoreUnavailable, "user store unavailable", err))
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		h.logger.WithError(err).Error("Failed to hash password")
		return respondError(c, apperrors.New(apperrors.CodeInternalError, "Failed to process password", err))
	}

	now := time.Now().UTC()
	user := &models.User{
		UserID:       uuid.New().String(),
		Name:         req.Name,
		Email:        req.Email,
		PasswordHash: string(passwordHash),
		Role:         models.RoleUser,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := h.users.Create(c.Context(), user); err != nil {
		if isConflict(err) {
			return respondError(c, apperrors.New(apperrors.CodeConflict, "Email already registered", err))
		}
		h.logger.WithError(err).Error("Failed to create user")
		return respondError(c, apperrors.New(apperrors.CodeStoreUnavailable, "user store unavailable", err))
	}

	token, expiresIn, err := h.tokens.Issue(user)
	if err != nil {
		h.logger.WithError(err).Error("Failed to issue token")
		return respondError(c, apperrors.New(apperrors.CodeInternalError, "Failed to generate token", err))
	}

	h.logger.WithFields(logrus.Fields{
		"user_id": user.UserID,
		"email":   user.Email,
	}).Info("User registered")

	return c.Status(fiber.StatusCreated).JSON(models.AuthResponse{
		Token:     token,
		ExpiresIn: expiresIn,
		User:      user.Public(),
	})
}

// Login handles user login
// @Summary User login
// @Description Authenticate a member and return a JWT token
// @Tags Auth
// @Accept json
// @Produce json
// @Param request body models.LoginRequest true "Login credentials"
// @Success 200 {object} models.AuthResponse
// @Failure 400 {object} errors.ErrorResponse "Invalid request"
// @Failure 401 {object} errors.ErrorResponse "Invalid credentials"
// @Router /auth/login [post]
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req models.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	email := normalizeEmail(req.Email)

	// Same response for unknown email and wrong password
	user, err := h.users.GetByEmail(c.Context(), email)
	if err != nil {
		if isNotFound(err) {
			h.logger.WithField("email", email).Warn("Login with unknown email")
			return h.invalidCredentials(c)
		}
		return respondError(c, apperrors.New(apperrors.CodeStoreUnavailable, "user store unavailable", err))
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		h.logger.WithField("user_id", user.UserID).Warn("Login with wrong password")
		return h.invalidCredentials(c)
	}

	token, expiresIn, err := h.tokens.Issue(user)
	if err != nil {
		h.logger.WithError(err).Error("Failed to issue token")
		return respondError(c, apperrors.New(apperrors.CodeInternalError, "Failed to generate token", err))
	}

	h.logger.WithField("user_id", user.UserID).Info("User logged in")

	return c.JSON(models.AuthResponse{
		Token:     token,
		ExpiresIn: expiresIn,
		User:      user.Public(),
	})
}

// Me returns the authenticated user's profile
// @Summary Current profile
// @Description Return the live profile of the authenticated member
// @Tags Auth
// @Produce json
// @Success 200 {object} models.User
// @Failure 401 {object} errors.ErrorResponse "Unauthenticated"
// @Security BearerAuth
// @Router /auth/me [get]
func (h *AuthHandler) Me(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return respondError(c, apperrors.New(apperrors.CodeUnauthenticated, "Authentication required", nil))
	}
	return c.JSON(user)
}

// UpdateMe updates the authenticated user's profile
// @Summary Update profile
// @Description Update mutable profile fields; password is re-hashed when provided
// @Tags Auth
// @Accept json
// @Produce json
// @Param request body models.UpdateProfileRequest true "Profile fields"
// @Success 200 {object} models.User
// @Failure 400 {object} errors.ErrorResponse "Invalid request"
// @Security BearerAuth
// @Router /auth/me [put]
func (h *AuthHandler) UpdateMe(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return respondError(c, apperrors.New(apperrors.CodeUnauthenticated, "Authentication required", nil))
	}

	var req models.UpdateProfileRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	if req.Name != "" {
		user.Name = strings.TrimSpace(req.Name)
	}
	if req.Bio != "" {
		user.Bio = req.Bio
	}
	if req.Theme != "" {
		user.Theme = req.Theme
	}
	if req.Language != "" {
		user.Language = req.Language
	}
	if req.Preferences != nil {
		user.Preferences = req.Preferences
	}
	if req.Password != "" {
		if len(req.Password) < minPasswordLength {
			return respondError(c, apperrors.Newf(apperrors.CodeInvalidArgument, nil,
				"password must be at least %d characters", minPasswordLength))
		}
		passwordHash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
		if err != nil {
			h.logger.WithError(err).Error("Failed to hash password")
			return respondError(c, apperrors.New(apperrors.CodeInternalError, "Failed to process password", err))
		}
		user.PasswordHash = string(passwordHash)
	}
	user.UpdatedAt = time.Now().UTC()

	if err := h.users.Update(c.Context(), user); err != nil {
		h.logger.WithError(err).WithField("user_id", user.UserID).Error("Failed to update profile")
		return respondError(c, apperrors.New(apperrors.CodeStoreUnavailable, "user store unavailable", err))
	}

	h.logger.WithField("user_id", user.UserID).Info("Profile updated")

	return c.JSON(user)
}

// UploadAvatar stores a new avatar image for the authenticated user
// @Summary Upload avatar
// @Description Store an avatar image and return its public URL
// @Tags Auth
// @Accept multipart/form-data
// @Produce json
// @Param avatar formData file true "Avatar image (jpeg/png/webp, max 5MB)"
// @Success 200 {object} map[string]string
// @Failure 400 {object} errors.ErrorResponse "Invalid upload"
// @Security BearerAuth
// @Router /auth/me/avatar [post]
func (h *AuthHandler) UploadAvatar(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return respondError(c, apperrors.New(apperrors.CodeUnauthenticated, "Authentication required", nil))
	}

	fileHeader, err := c.FormFile("avatar")
	if err != nil {
		return badRequest(c, "avatar file is required")
	}

	file, err := fileHeader.Open()
	if err != nil {
		return badRequest(c, "cannot read avatar file")
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, media.MaxUploadBytes+1))
	if err != nil {
		return badRequest(c, "cannot read avatar file")
	}

	url, err := h.uploader.UploadAvatar(c.Context(), user.UserID, data, fileHeader.Header.Get("Content-Type"))
	if err != nil {
		return respondError(c, err)
	}

	user.Avatar = url
	user.UpdatedAt = time.Now().UTC()
	if err := h.users.Update(c.Context(), user); err != nil {
		h.logger.WithError(err).WithField("user_id", user.UserID).Error("Failed to persist avatar URL")
		return respondError(c, apperrors.New(apperrors.CodeStoreUnavailable, "user store unavailable", err))
	}

	return c.JSON(fiber.Map{"avatar": url})
}

// invalidCredentials keeps the response identical for unknown email
// and wrong password so login errors leak no account existence.
func (h *AuthHandler) invalidCredentials(c *fiber.Ctx) error {
	metrics.RecordAuthFailure("bad_credentials")
	return respondError(c, apperrors.New(apperrors.CodeUnauthenticated, "Invalid email or password", nil))
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// validEmail is a shape check, not full RFC validation
func validEmail(email string) bool {
	at := strings.Index(email, "@")
	if at < 1 || at == len(email)-1 {
		return false
	}
	domain := email[at+1:]
	return strings.Contains(domain, ".") && !strings.Contains(email[at+1:], "@")
}

func isNotFound(err error) bool {
	return errors.Is(err, store.ErrNotFound) || apperrors.Is(err, apperrors.CodeNotFound)
}

func isConflict(err error) bool {
	return errors.Is(err, store.ErrConflict) || apperrors.Is(err, apperrors.CodeConflict)
}
