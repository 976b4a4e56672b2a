package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/ats-auth/internal/auth"
)

// AdminHandler serves the admin gateway. Resources are placeholders until the
// owning services expose their admin APIs.
type AdminHandler struct{}

// NewAdminHandler constructs handler.
func NewAdminHandler() *AdminHandler {
	return &AdminHandler{}
}

func (h *AdminHandler) Companies(c *fiber.Ctx) error {
	return h.list(c, "Admin companies endpoint")
}

func (h *AdminHandler) Applicants(c *fiber.Ctx) error {
	return h.list(c, "Admin applicants endpoint")
}

func (h *AdminHandler) Jobs(c *fiber.Ctx) error {
	return h.list(c, "Admin jobs endpoint")
}

func (h *AdminHandler) Users(c *fiber.Ctx) error {
	return h.list(c, "Admin users endpoint")
}

func (h *AdminHandler) list(c *fiber.Ctx, message string) error {
	resp := fiber.Map{"message": message, "data": []any{}}
	if principal, ok := auth.PrincipalFromContext(c); ok {
		resp["requestedBy"] = principal.UserID
	}
	return c.JSON(resp)
}
