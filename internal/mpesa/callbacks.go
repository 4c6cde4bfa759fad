package mpesa

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/congo-pay/daraja_gateway/internal/notification"
)

var (
	ackReceived = Ack{ResultCode: 0, ResultDesc: "Received successfully"}
	ackInvalid  = Ack{ResultCode: 1, ResultDesc: "Invalid payload"}

	errMissingResult   = errors.New("payload has no Result")
	errMissingCallback = errors.New("payload has no Body.stkCallback")
)

// PayoutOutcome is the part of a B2C result callback worth logging.
type PayoutOutcome struct {
	ResultType               int
	ResultCode               int
	ResultDesc               string
	OriginatorConversationID string
	ConversationID           string
	TransactionID            string

	hasResultCode bool
}

// Succeeded reports whether Daraja accepted the transaction. A result
// without a ResultCode counts as a failure.
func (o PayoutOutcome) Succeeded() bool { return o.hasResultCode && o.ResultCode == 0 }

// PushPaymentOutcome is the part of an STK result callback worth logging.
// Metadata fields are only filled for successful prompts.
type PushPaymentOutcome struct {
	MerchantRequestID string
	CheckoutRequestID string
	ResultCode        int
	ResultDesc        string
	Receipt           string
	Amount            decimal.NullDecimal
	PhoneNumber       string
	TransactionDate   string

	hasResultCode bool
}

// Succeeded reports whether the customer completed the prompt. A callback
// without a ResultCode counts as a failure.
func (o PushPaymentOutcome) Succeeded() bool { return o.hasResultCode && o.ResultCode == 0 }

// ParsePayoutResult decodes a B2C result callback body.
func ParsePayoutResult(body []byte) (PayoutOutcome, error) {
	var payload payoutCallback
	if err := json.Unmarshal(body, &payload); err != nil {
		return PayoutOutcome{}, err
	}
	r := payload.Result
	if r == nil {
		return PayoutOutcome{}, errMissingResult
	}
	return PayoutOutcome{
		ResultType:               r.ResultType.Value,
		ResultCode:               r.ResultCode.Value,
		ResultDesc:               r.ResultDesc,
		OriginatorConversationID: r.OriginatorConversationID,
		ConversationID:           r.ConversationID,
		TransactionID:            r.TransactionID,
		hasResultCode:            r.ResultCode.Set,
	}, nil
}

// ParsePushPaymentResult decodes an STK result callback body.
func ParsePushPaymentResult(body []byte) (PushPaymentOutcome, error) {
	var payload stkCallbackEnvelope
	if err := json.Unmarshal(body, &payload); err != nil {
		return PushPaymentOutcome{}, err
	}
	if payload.Body == nil || payload.Body.StkCallback == nil {
		return PushPaymentOutcome{}, errMissingCallback
	}
	cb := payload.Body.StkCallback

	out := PushPaymentOutcome{
		MerchantRequestID: cb.MerchantRequestID,
		CheckoutRequestID: cb.CheckoutRequestID,
		ResultCode:        cb.ResultCode.Value,
		ResultDesc:        cb.ResultDesc,
		hasResultCode:     cb.ResultCode.Set,
	}
	if !out.Succeeded() || cb.CallbackMetadata == nil {
		return out, nil
	}

	for _, item := range cb.CallbackMetadata.Item {
		switch item.Name {
		case "MpesaReceiptNumber":
			out.Receipt = item.text()
		case "Amount":
			if amount, err := decimal.NewFromString(item.text()); err == nil {
				out.Amount = decimal.NewNullDecimal(amount)
			}
		case "PhoneNumber":
			out.PhoneNumber = item.text()
		case "TransactionDate":
			out.TransactionDate = item.text()
		}
	}
	return out, nil
}

// Receiver handles Daraja's asynchronous result callbacks. Outcomes are logged
// and forwarded to the notifier; nothing is stored.
type Receiver struct {
	notifier notification.Notifier
	logger   *slog.Logger
}

// NewReceiver constructs a callback receiver. notifier may be nil.
func NewReceiver(notifier notification.Notifier, logger *slog.Logger) *Receiver {
	return &Receiver{notifier: notifier, logger: logger}
}

// HandlePayoutResult acknowledges a B2C result callback.
func (r *Receiver) HandlePayoutResult(ctx context.Context, body []byte) Ack {
	out, err := ParsePayoutResult(body)
	if err != nil {
		r.logger.ErrorContext(ctx, "invalid payout callback payload", slog.Any("error", err))
		return ackInvalid
	}

	attrs := []any{
		slog.Int("result_code", out.ResultCode),
		slog.String("result_desc", out.ResultDesc),
		slog.String("transaction_id", out.TransactionID),
		slog.String("conversation_id", out.ConversationID),
		slog.String("originator_conversation_id", out.OriginatorConversationID),
	}
	if out.Succeeded() {
		r.logger.InfoContext(ctx, "payout succeeded", attrs...)
	} else {
		r.logger.ErrorContext(ctx, "payout failed", attrs...)
	}

	reference := out.TransactionID
	if reference == "" {
		reference = out.ConversationID
	}
	r.notify(ctx, notification.Message{
		Kind:      notification.KindPayoutResult,
		Reference: reference,
		Success:   out.Succeeded(),
		Body:      out.ResultDesc,
	})
	return ackReceived
}

// HandlePushPaymentResult acknowledges an STK result callback.
func (r *Receiver) HandlePushPaymentResult(ctx context.Context, body []byte) Ack {
	out, err := ParsePushPaymentResult(body)
	if err != nil {
		r.logger.ErrorContext(ctx, "invalid stk push callback payload", slog.Any("error", err))
		return ackInvalid
	}

	if out.Succeeded() {
		r.logger.InfoContext(ctx, "stk push succeeded",
			slog.String("receipt", out.Receipt),
			slog.String("amount", out.Amount.Decimal.String()),
			slog.String("transaction_date", out.TransactionDate),
			slog.String("checkout_request_id", out.CheckoutRequestID),
		)
	} else {
		r.logger.ErrorContext(ctx, "stk push failed",
			slog.Int("result_code", out.ResultCode),
			slog.String("result_desc", out.ResultDesc),
			slog.String("checkout_request_id", out.CheckoutRequestID),
		)
	}

	r.notify(ctx, notification.Message{
		Kind:      notification.KindPushPaymentResult,
		Reference: out.CheckoutRequestID,
		Success:   out.Succeeded(),
		Body:      out.ResultDesc,
	})
	return ackReceived
}

func (r *Receiver) notify(ctx context.Context, msg notification.Message) {
	if r.notifier == nil {
		return
	}
	if err := r.notifier.Send(ctx, msg); err != nil {
		r.logger.WarnContext(ctx, "send notification", slog.String("kind", msg.Kind), slog.Any("error", err))
	}
}
