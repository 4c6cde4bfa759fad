package mpesa

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/congo-pay/daraja_gateway/internal/config"
)

const (
	payoutPath      = "/mpesa/b2c/v1/paymentrequest"
	balancePath     = "/mpesa/accountbalance/v1/query"
	stkPushPath     = "/mpesa/stkpush/v1/processrequest"
	defaultOccasion = "Payment"

	balanceCommandID      = "AccountBalance"
	balanceRemarks        = "Account Balance Check"
	organisationShortCode = "4"
	stkTransactionType    = "CustomerPayBillOnline"
)

// Initiator submits payouts, balance queries and STK push prompts.
type Initiator struct {
	client *Client
	cfg    config.MpesaConfig
	tokens TokenSource
	creds  CredentialSource
	logger *slog.Logger
	now    func() time.Time
}

// NewInitiator wires an Initiator. tokens and creds are usually the same
// CredentialManager.
func NewInitiator(client *Client, cfg config.MpesaConfig, tokens TokenSource, creds CredentialSource, logger *slog.Logger) *Initiator {
	return &Initiator{
		client: client,
		cfg:    cfg,
		tokens: tokens,
		creds:  creds,
		logger: logger,
		now:    time.Now,
	}
}

// InitiatePayout sends a B2C payment request and returns Daraja's
// acknowledgement verbatim.
func (i *Initiator) InitiatePayout(ctx context.Context, req PayoutRequest, useStatic bool) (json.RawMessage, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	token, err := i.tokens.AccessToken(ctx, AppDisbursement)
	if err != nil {
		return nil, err
	}
	credential, err := i.securityCredential(ctx, useStatic)
	if err != nil {
		return nil, err
	}

	occasion := req.Occasion
	if occasion == "" {
		occasion = defaultOccasion
	}
	payload := payoutPayload{
		InitiatorName:      i.cfg.InitiatorName,
		SecurityCredential: credential,
		CommandID:          i.cfg.CommandID,
		Amount:             json.Number(req.Amount.Decimal.String()),
		PartyA:             i.cfg.B2CShortCode,
		PartyB:             req.PhoneNumber,
		Remarks:            req.Remarks,
		QueueTimeOutURL:    i.cfg.TimeoutCallbackURL,
		ResultURL:          i.cfg.ResultCallbackURL,
		Occasion:           occasion,
	}

	res, err := i.client.postJSON(ctx, "initiate payout", payoutPath, token, payload)
	if err != nil {
		return nil, err
	}
	i.logger.InfoContext(ctx, "payout submitted",
		slog.String("amount", req.Amount.Decimal.String()),
		slog.Bool("static_credential", useStatic),
	)
	return res, nil
}

// QueryBalance submits an account balance query. The balance itself arrives
// later on the result callback.
func (i *Initiator) QueryBalance(ctx context.Context, useStatic bool) (json.RawMessage, error) {
	token, err := i.tokens.AccessToken(ctx, AppDisbursement)
	if err != nil {
		return nil, err
	}
	credential, err := i.securityCredential(ctx, useStatic)
	if err != nil {
		return nil, err
	}

	payload := balancePayload{
		Initiator:          i.cfg.InitiatorName,
		SecurityCredential: credential,
		CommandID:          balanceCommandID,
		PartyA:             i.cfg.B2CShortCode,
		IdentifierType:     organisationShortCode,
		Remarks:            balanceRemarks,
		QueueTimeOutURL:    i.cfg.TimeoutCallbackURL,
		ResultURL:          i.cfg.ResultCallbackURL,
	}

	res, err := i.client.postJSON(ctx, "query balance", balancePath, token, payload)
	if err != nil {
		return nil, err
	}
	i.logger.InfoContext(ctx, "balance query submitted", slog.Bool("static_credential", useStatic))
	return res, nil
}

// InitiatePushPayment sends an STK push prompt to the customer's phone.
func (i *Initiator) InitiatePushPayment(ctx context.Context, req PushPaymentRequest) (json.RawMessage, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if i.cfg.C2BShortCode == "" {
		return nil, &ConfigurationError{Setting: "MPESA_C2B_SHORTCODE", Err: errors.New("not set")}
	}
	if i.cfg.Passkey == "" {
		return nil, &ConfigurationError{Setting: "MPESA_PASSKEY", Err: errors.New("not set")}
	}

	token, err := i.tokens.AccessToken(ctx, AppCollection)
	if err != nil {
		return nil, err
	}

	callbackURL := req.CallbackURL
	if callbackURL == "" {
		callbackURL = i.cfg.STKResultCallbackURL
	}
	timestamp := Timestamp(i.now())
	payload := stkPushPayload{
		BusinessShortCode: i.cfg.C2BShortCode,
		Password:          Password(i.cfg.C2BShortCode, i.cfg.Passkey, timestamp),
		Timestamp:         timestamp,
		TransactionType:   stkTransactionType,
		Amount:            json.Number(req.Amount.Decimal.String()),
		PartyA:            req.PhoneNumber,
		PartyB:            i.cfg.C2BShortCode,
		PhoneNumber:       req.PhoneNumber,
		CallBackURL:       callbackURL,
		AccountReference:  req.AccountReference,
		TransactionDesc:   req.TransactionDesc,
	}

	res, err := i.client.postJSON(ctx, "initiate stk push", stkPushPath, token, payload)
	if err != nil {
		return nil, err
	}
	i.logger.InfoContext(ctx, "stk push submitted",
		slog.String("amount", req.Amount.Decimal.String()),
		slog.String("account_reference", req.AccountReference),
	)
	return res, nil
}

func (i *Initiator) securityCredential(ctx context.Context, useStatic bool) (string, error) {
	if useStatic {
		if i.cfg.SecurityCredential == "" {
			return "", &ConfigurationError{Setting: "MPESA_SECURITY_CREDENTIAL", Err: ErrStaticCredentialMissing}
		}
		return i.cfg.SecurityCredential, nil
	}
	return i.creds.SecurityCredential(ctx)
}
