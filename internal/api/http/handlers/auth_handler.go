package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/ats-auth/internal/api/dto"
	"github.com/spec-kit/ats-auth/internal/auth"
	"github.com/spec-kit/ats-auth/internal/service"
	apperrors "github.com/spec-kit/ats-auth/pkg/util"
)

// AuthHandler exposes the /api/auth endpoints.
type AuthHandler struct {
	auth *service.AuthService
}

// NewAuthHandler constructs handler.
func NewAuthHandler(authService *service.AuthService) *AuthHandler {
	return &AuthHandler{auth: authService}
}

// Register handles POST /api/auth/register.
func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req dto.RegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewBadRequest("invalid payload")
	}
	if err := dto.Validate(req); err != nil {
		return err
	}

	res, err := h.auth.Register(c.UserContext(), req.Email, req.Password, req.Role)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(dto.NewAuthResponse(res.User, res.Tokens))
}

// Login handles POST /api/auth/login.
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req dto.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewBadRequest("invalid payload")
	}
	if err := dto.Validate(req); err != nil {
		return err
	}

	res, err := h.auth.Login(c.UserContext(), req.Email, req.Password)
	if err != nil {
		return err
	}
	return c.JSON(dto.NewAuthResponse(res.User, res.Tokens))
}

// Refresh handles POST /api/auth/refresh.
func (h *AuthHandler) Refresh(c *fiber.Ctx) error {
	var req dto.RefreshRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewBadRequest("invalid payload")
	}

	pair, err := h.auth.Refresh(c.UserContext(), req.RefreshToken)
	if err != nil {
		return err
	}
	return c.JSON(dto.TokenPairResponse{AccessToken: pair.AccessToken, RefreshToken: pair.RefreshToken})
}

// Validate handles GET|POST /api/auth/validate for a Bearer access token.
func (h *AuthHandler) Validate(c *fiber.Ctx) error {
	claims, err := h.auth.ValidateToken(auth.BearerToken(c.Get(fiber.HeaderAuthorization)))
	if err != nil {
		return err
	}
	return c.JSON(dto.ValidateResponse{Valid: true, User: claims})
}

// ValidateService handles POST /api/auth/validate-service.
func (h *AuthHandler) ValidateService(c *fiber.Ctx) error {
	var req dto.ValidateServiceRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewBadRequest("invalid payload")
	}

	name, err := h.auth.ValidateServiceToken(req.Token)
	if err != nil {
		return err
	}
	return c.JSON(dto.ValidateServiceResponse{Valid: true, Service: name})
}

// Generate handles POST /api/auth/generate. The route sits behind the
// service-auth middleware; the new token is issued to the caller.
func (h *AuthHandler) Generate(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("Invalid service token")
	}
	var req dto.GenerateTokenRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewBadRequest("invalid payload")
	}

	token, err := h.auth.GenerateToken(principal.Service, req.UserID, req.Role)
	if err != nil {
		return err
	}
	return c.JSON(dto.GenerateTokenResponse{ServiceToken: token, Message: "Service token generated successfully"})
}

// Logout handles POST /api/auth/logout.
func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	var req dto.RefreshRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewBadRequest("invalid payload")
	}
	if err := h.auth.Logout(c.UserContext(), req.RefreshToken); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// Me returns the stored account of the caller.
func (h *AuthHandler) Me(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("No token provided")
	}
	user, err := h.auth.CurrentUser(c.UserContext(), principal.UserID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"user": dto.NewUserResponse(user)})
}
