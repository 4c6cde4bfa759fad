package mpesa

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/daraja_gateway/internal/response"
)

const (
	b2bStubMessage = "This endpoint initiates a B2B transaction"
	c2bStubMessage = "This endpoint initiates a C2B transaction"
)

// Handler exposes the /mpesa endpoints.
type Handler struct {
	tokens    TokenSource
	creds     CredentialSource
	initiator *Initiator
	receiver  *Receiver
}

// NewHandler constructs an M-Pesa handler.
func NewHandler(tokens TokenSource, creds CredentialSource, initiator *Initiator, receiver *Receiver) *Handler {
	return &Handler{tokens: tokens, creds: creds, initiator: initiator, receiver: receiver}
}

// AccessToken returns a bearer token for the app named in ?app=.
func (h *Handler) AccessToken(c *fiber.Ctx) error {
	app, err := ParseAppType(c.Query("app"))
	if err != nil {
		return httpError(err)
	}
	token, err := h.tokens.AccessToken(c.UserContext(), app)
	if err != nil {
		return httpError(err)
	}
	return response.OK(c, http.StatusOK, "", fiber.Map{"app": app, "access_token": token})
}

// SecurityCredentials returns a freshly encrypted initiator password.
func (h *Handler) SecurityCredentials(c *fiber.Ctx) error {
	credential, err := h.creds.SecurityCredential(c.UserContext())
	if err != nil {
		return httpError(err)
	}
	return response.OK(c, http.StatusOK, "", credential)
}

// InitiatePayout handles POST /init-b2c.
func (h *Handler) InitiatePayout(c *fiber.Ctx) error {
	useStatic, err := hardcodedFlag(c)
	if err != nil {
		return httpError(err)
	}
	var req PayoutRequest
	if err := decodeStrict(c.Body(), &req); err != nil {
		return httpError(err)
	}

	res, err := h.initiator.InitiatePayout(c.UserContext(), req, useStatic)
	if err != nil {
		return httpError(err)
	}
	return response.OK(c, http.StatusCreated, "", res)
}

// PushPayment handles POST /stkpush.
func (h *Handler) PushPayment(c *fiber.Ctx) error {
	var req PushPaymentRequest
	if err := decodeStrict(c.Body(), &req); err != nil {
		return httpError(err)
	}

	res, err := h.initiator.InitiatePushPayment(c.UserContext(), req)
	if err != nil {
		return httpError(err)
	}
	return response.OK(c, http.StatusCreated, "", res)
}

// AccountBalance handles GET /account-balance.
func (h *Handler) AccountBalance(c *fiber.Ctx) error {
	useStatic, err := hardcodedFlag(c)
	if err != nil {
		return httpError(err)
	}

	res, err := h.initiator.QueryBalance(c.UserContext(), useStatic)
	if err != nil {
		return httpError(err)
	}
	return response.OK(c, http.StatusOK, "", res)
}

// PayoutResult receives Daraja's B2C result callback. It always answers 200.
func (h *Handler) PayoutResult(c *fiber.Ctx) error {
	ack := h.receiver.HandlePayoutResult(c.UserContext(), c.Body())
	return c.Status(http.StatusOK).JSON(ack)
}

// PushPaymentResult receives Daraja's STK result callback. It always answers 200.
func (h *Handler) PushPaymentResult(c *fiber.Ctx) error {
	ack := h.receiver.HandlePushPaymentResult(c.UserContext(), c.Body())
	return c.Status(http.StatusOK).JSON(ack)
}

func (h *Handler) B2B(c *fiber.Ctx) error {
	return response.OK(c, http.StatusCreated, "", b2bStubMessage)
}

func (h *Handler) C2B(c *fiber.Ctx) error {
	return response.OK(c, http.StatusCreated, "", c2bStubMessage)
}

func hardcodedFlag(c *fiber.Ctx) (bool, error) {
	raw := c.Query("hardcoded")
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, invalid("hardcoded", "must be true or false")
	}
	return v, nil
}

// decodeStrict rejects unknown fields and trailing data.
func decodeStrict(body []byte, dst any) error {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return invalid("", "request body is required")
		}
		return invalid("", "invalid request body: "+err.Error())
	}
	if dec.More() {
		return invalid("", "request body must contain a single JSON object")
	}
	return nil
}

// httpError maps gateway errors onto HTTP statuses. Unknown errors fall
// through to the generic 500 of the error handler.
func httpError(err error) error {
	var (
		validationErr *ValidationError
		configErr     *ConfigurationError
		cryptoErr     *CryptoError
		upstreamErr   *UpstreamError
	)
	switch {
	case errors.As(err, &validationErr):
		return fiber.NewError(http.StatusBadRequest, validationErr.Error())
	case errors.As(err, &configErr):
		return fiber.NewError(http.StatusInternalServerError, "gateway configuration error: "+configErr.Setting)
	case errors.As(err, &cryptoErr):
		return fiber.NewError(http.StatusInternalServerError, "failed to generate security credential")
	case errors.As(err, &upstreamErr):
		if upstreamErr.Timeout {
			return fiber.NewError(http.StatusGatewayTimeout, upstreamErr.Error())
		}
		return fiber.NewError(http.StatusBadGateway, upstreamErr.Error())
	default:
		return err
	}
}
