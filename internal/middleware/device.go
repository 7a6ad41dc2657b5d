package middleware

import (
	"context"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/etiktak/etiktak_backend/internal/model"
)

const (
	deviceTokenHeader = "X-Device-Token"
	clientIDLocal     = "client_id"
)

// DeviceAuthenticator resolves a device token to the owning client.
type DeviceAuthenticator interface {
	AuthenticateDevice(ctx context.Context, token string) (model.Client, error)
}

// DeviceAuth rejects requests without a valid X-Device-Token and stores the
// authenticated client id in the request locals.
func DeviceAuth(auth DeviceAuthenticator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := c.Get(deviceTokenHeader)
		if token == "" {
			return fiber.NewError(http.StatusUnauthorized, "missing device token")
		}
		client, err := auth.AuthenticateDevice(c.UserContext(), token)
		if err != nil {
			return err
		}
		c.Locals(clientIDLocal, client.ID)
		return c.Next()
	}
}

// ClientIDFrom returns the client authenticated by DeviceAuth, or "".
func ClientIDFrom(c *fiber.Ctx) string {
	id, _ := c.Locals(clientIDLocal).(string)
	return id
}
