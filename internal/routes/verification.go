package routes

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/etiktak/etiktak_backend/internal/facade"
	"github.com/etiktak/etiktak_backend/internal/notification"
)

type challengeRequest struct {
	ClientUUID   string `json:"clientUuid" form:"clientUuid"`
	MobileNumber string `json:"mobileNumber" form:"mobileNumber"`
	Password     string `json:"password" form:"password"`
}

type verifyRequest struct {
	MobileNumber    string `json:"mobileNumber" form:"mobileNumber"`
	Password        string `json:"password" form:"password"`
	SmsChallenge    string `json:"smsChallenge" form:"smsChallenge"`
	ClientChallenge string `json:"clientChallenge" form:"clientChallenge"`
}

type reportRequest struct {
	SmsHandle string `json:"smsHandle" form:"smsHandle"`
	Status    string `json:"status" form:"status"`
}

// RegisterVerificationRoutes wires the challenge request, recovery, verify and
// delivery report endpoints.
func RegisterVerificationRoutes(r fiber.Router, f *facade.Facade) {
	r.Post("/request/", func(c *fiber.Ctx) error {
		var req challengeRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(http.StatusBadRequest, err.Error())
		}
		res, err := f.RequestChallenge(c.UserContext(), req.ClientUUID, req.MobileNumber, req.Password)
		if err != nil {
			return err
		}
		return c.JSON(res)
	})

	r.Post("/request/recovery/", func(c *fiber.Ctx) error {
		var req challengeRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(http.StatusBadRequest, err.Error())
		}
		res, err := f.RequestRecoveryChallenge(c.UserContext(), req.MobileNumber, req.Password)
		if err != nil {
			return err
		}
		return c.JSON(res)
	})

	r.Post("/verify/", func(c *fiber.Ctx) error {
		var req verifyRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(http.StatusBadRequest, err.Error())
		}
		res, err := f.VerifyChallenge(c.UserContext(), req.MobileNumber, req.Password, req.SmsChallenge, req.ClientChallenge)
		if err != nil {
			return err
		}
		return c.JSON(res)
	})

	// Delivery reports from gateways that call back over HTTP instead of Kafka.
	r.Post("/report/", func(c *fiber.Ctx) error {
		var req reportRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(http.StatusBadRequest, err.Error())
		}
		if !strings.EqualFold(req.Status, notification.ReportStatusFailed) {
			return c.JSON(fiber.Map{"status": "ignored"})
		}
		if err := f.ReportDeliveryFailure(c.UserContext(), req.SmsHandle); err != nil {
			return err
		}
		return c.JSON(fiber.Map{"status": "recorded"})
	})
}
