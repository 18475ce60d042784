package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/crossbank/internal/transfer"
)

// RegisterTransferRoutes wires transfer and routing endpoints. guards run in
// front of transfer creation only.
func RegisterTransferRoutes(r fiber.Router, h *transfer.Handler, guards ...fiber.Handler) {
	create := append(guards, h.Create)
	r.Post("/transfers", create...)

	r.Get("/routing", h.Routes)
	r.Post("/routing/refresh", h.Refresh)
	r.Get("/routing/:accountId", h.Route)
}
