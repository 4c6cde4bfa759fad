package mpesa

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// AppType selects which Daraja app's consumer key pair is used for a token.
type AppType string

const (
	AppCollection   AppType = "collection"
	AppDisbursement AppType = "disbursement"
)

// ParseAppType accepts the canonical names plus the c2b/b2c aliases. An empty
// value selects the disbursement app.
func ParseAppType(s string) (AppType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "disbursement", "b2c":
		return AppDisbursement, nil
	case "collection", "c2b":
		return AppCollection, nil
	default:
		return "", invalid("app", "must be one of collection, disbursement, c2b, b2c")
	}
}

// Amount is a caller supplied amount. It must be a JSON number; quoted
// values are rejected. A null or absent amount leaves Valid false.
type Amount struct {
	decimal.NullDecimal
}

// NewAmount wraps d as a present amount.
func NewAmount(d decimal.Decimal) Amount {
	return Amount{NullDecimal: decimal.NewNullDecimal(d)}
}

func (a *Amount) UnmarshalJSON(b []byte) error {
	raw := bytes.TrimSpace(b)
	if bytes.Equal(raw, []byte("null")) {
		a.NullDecimal = decimal.NullDecimal{}
		return nil
	}
	if len(raw) > 0 && raw[0] == '"' {
		return errors.New("amount must be a number, not a string")
	}
	return a.NullDecimal.UnmarshalJSON(raw)
}

// PayoutRequest is the caller input for a B2C payout.
type PayoutRequest struct {
	Amount      Amount `json:"amount"`
	PhoneNumber string `json:"phoneNumber"`
	Remarks     string `json:"remarks"`
	Occasion    string `json:"occasion,omitempty"`
}

// PushPaymentRequest is the caller input for an STK push prompt.
type PushPaymentRequest struct {
	Amount           Amount `json:"amount"`
	PhoneNumber      string `json:"phoneNumber"`
	AccountReference string `json:"accountReference"`
	TransactionDesc  string `json:"transactionDesc"`
	CallbackURL      string `json:"callbackURL,omitempty"`
}

type tokenResponse struct {
	AccessToken string  `json:"access_token"`
	ExpiresIn   flexInt `json:"expires_in"`
}

type payoutPayload struct {
	InitiatorName      string      `json:"InitiatorName"`
	SecurityCredential string      `json:"SecurityCredential"`
	CommandID          string      `json:"CommandID"`
	Amount             json.Number `json:"Amount"`
	PartyA             string      `json:"PartyA"`
	PartyB             string      `json:"PartyB"`
	Remarks            string      `json:"Remarks"`
	QueueTimeOutURL    string      `json:"QueueTimeOutURL"`
	ResultURL          string      `json:"ResultURL"`
	Occasion           string      `json:"Occasion"`
}

type balancePayload struct {
	Initiator          string `json:"Initiator"`
	SecurityCredential string `json:"SecurityCredential"`
	CommandID          string `json:"CommandID"`
	PartyA             string `json:"PartyA"`
	IdentifierType     string `json:"IdentifierType"`
	Remarks            string `json:"Remarks"`
	QueueTimeOutURL    string `json:"QueueTimeOutURL"`
	ResultURL          string `json:"ResultURL"`
}

type stkPushPayload struct {
	BusinessShortCode string      `json:"BusinessShortCode"`
	Password          string      `json:"Password"`
	Timestamp         string      `json:"Timestamp"`
	TransactionType   string      `json:"TransactionType"`
	Amount            json.Number `json:"Amount"`
	PartyA            string      `json:"PartyA"`
	PartyB            string      `json:"PartyB"`
	PhoneNumber       string      `json:"PhoneNumber"`
	CallBackURL       string      `json:"CallBackURL"`
	AccountReference  string      `json:"AccountReference"`
	TransactionDesc   string      `json:"TransactionDesc"`
}

// Ack is the body Daraja expects back from a callback endpoint.
type Ack struct {
	ResultCode int    `json:"ResultCode"`
	ResultDesc string `json:"ResultDesc"`
}

type payoutCallback struct {
	Result *payoutResult `json:"Result"`
}

type payoutResult struct {
	ResultType               flexInt         `json:"ResultType"`
	ResultCode               flexInt         `json:"ResultCode"`
	ResultDesc               string          `json:"ResultDesc"`
	OriginatorConversationID string          `json:"OriginatorConversationID"`
	ConversationID           string          `json:"ConversationID"`
	TransactionID            string          `json:"TransactionID"`
	ResultParameters         json.RawMessage `json:"ResultParameters,omitempty"`
}

type stkCallbackEnvelope struct {
	Body *struct {
		StkCallback *stkCallback `json:"stkCallback"`
	} `json:"Body"`
}

type stkCallback struct {
	MerchantRequestID string  `json:"MerchantRequestID"`
	CheckoutRequestID string  `json:"CheckoutRequestID"`
	ResultCode        flexInt `json:"ResultCode"`
	ResultDesc        string  `json:"ResultDesc"`
	CallbackMetadata  *struct {
		Item []metadataItem `json:"Item"`
	} `json:"CallbackMetadata"`
}

type metadataItem struct {
	Name  string          `json:"Name"`
	Value json.RawMessage `json:"Value"`
}

// text renders the item value without JSON quoting. Numbers keep their exact
// literal form.
func (i metadataItem) text() string {
	raw := bytes.TrimSpace(i.Value)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s
		}
	}
	return string(raw)
}

// flexInt decodes an integer sent either as a JSON number or a numeric
// string. Set is false when the field was absent or null.
type flexInt struct {
	Value int
	Set   bool
}

func (f *flexInt) UnmarshalJSON(b []byte) error {
	raw := bytes.TrimSpace(b)
	if bytes.Equal(raw, []byte("null")) {
		return nil
	}
	if len(raw) > 0 && raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return err
		}
		raw = []byte(strings.TrimSpace(s))
	}
	n, err := strconv.Atoi(string(raw))
	if err != nil {
		return fmt.Errorf("expected integer, got %s", b)
	}
	f.Value, f.Set = n, true
	return nil
}
