package routes

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/etiktak/etiktak_backend/internal/facade"
	"github.com/etiktak/etiktak_backend/internal/middleware"
	"github.com/etiktak/etiktak_backend/internal/model"
)

type deviceRequest struct {
	DeviceType string `json:"deviceType" form:"deviceType"`
}

// RegisterClientRoutes wires client creation, device registration and the
// profile endpoint.
func RegisterClientRoutes(r fiber.Router, f *facade.Facade) {
	// A new client gets its first device straight away; the token is the
	// only way back to the client besides recovery.
	r.Post("/create/", func(c *fiber.Ctx) error {
		var req deviceRequest
		if err := parseOptionalBody(c, &req); err != nil {
			return err
		}
		client, dev, err := f.CreateClientWithDevice(c.UserContext(), model.ParseDeviceType(req.DeviceType))
		if err != nil {
			return err
		}
		return c.Status(http.StatusCreated).JSON(fiber.Map{
			"id":           client.ID,
			"verified":     client.Verified,
			"device_token": dev.Token,
		})
	})

	deviceAuth := middleware.DeviceAuth(f)

	r.Post("/device/create/", deviceAuth, func(c *fiber.Ctx) error {
		var req deviceRequest
		if err := parseOptionalBody(c, &req); err != nil {
			return err
		}
		dev, err := f.CreateDevice(c.UserContext(), middleware.ClientIDFrom(c), model.ParseDeviceType(req.DeviceType))
		if err != nil {
			return err
		}
		return c.Status(http.StatusCreated).JSON(dev)
	})

	r.Get("/me/", deviceAuth, func(c *fiber.Ctx) error {
		client, err := f.GetClient(c.UserContext(), middleware.ClientIDFrom(c))
		if err != nil {
			return err
		}
		return c.JSON(client)
	})
}

func parseOptionalBody(c *fiber.Ctx, out any) error {
	if len(c.Body()) == 0 {
		return nil
	}
	if err := c.BodyParser(out); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	return nil
}
