// Package mpesa talks to Safaricom's Daraja API: it initiates STK push
// payments and normalizes the callbacks Daraja sends back.
package mpesa

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/modern-bank-ledger/internal/domain/shared"
	"github.com/modern-bank-ledger/internal/platform/money"
)

// Daraja reports times as YYYYMMDDHHMMSS in East Africa Time
const timestampLayout = "20060102150405"

var eastAfricaTime = time.FixedZone("EAT", 3*60*60)

// ErrPaymentFailed is returned when Daraja reports a payment as not completed
var ErrPaymentFailed = shared.NewValidationError("payment", "Payment Failed")

// Callback metadata item names
const (
	itemAmount          = "Amount"
	itemReceiptNumber   = "MpesaReceiptNumber"
	itemTransactionDate = "TransactionDate"
	itemPhoneNumber     = "PhoneNumber"
)

// Payment is a normalized STK push result
type Payment struct {
	MerchantRequestID string
	CheckoutRequestID string
	ResultCode        int
	ResultDesc        string
	Amount            int64 // minor units
	PhoneNumber       string
	ReceiptNumber     string
	TransactionDate   time.Time // UTC
}

// Succeeded reports whether the customer completed the payment
func (p *Payment) Succeeded() bool {
	return p.ResultCode == 0
}

type callbackEnvelope struct {
	Body *struct {
		StkCallback *stkCallback `json:"stkCallback"`
	} `json:"Body"`
}

type stkCallback struct {
	MerchantRequestID string       `json:"MerchantRequestID"`
	CheckoutRequestID string       `json:"CheckoutRequestID"`
	ResultCode        *json.Number `json:"ResultCode"`
	ResultDesc        string       `json:"ResultDesc"`
	CallbackMetadata  *struct {
		Item []metadataItem `json:"Item"`
	} `json:"CallbackMetadata"`
}

type metadataItem struct {
	Name  string          `json:"Name"`
	Value json.RawMessage `json:"Value"`
}

// InvalidCallbackError describes why a callback payload was rejected
type InvalidCallbackError struct {
	Reason string
}

func (e InvalidCallbackError) Error() string {
	return "invalid callback data: " + e.Reason
}

func (e InvalidCallbackError) Unwrap() error {
	return shared.ErrInvalidCallback
}

func invalid(format string, args ...any) error {
	return InvalidCallbackError{Reason: fmt.Sprintf(format, args...)}
}

// ParseCallback decodes a Daraja STK callback body. A failed payment parses
// successfully with a non-zero ResultCode and no metadata.
func ParseCallback(raw []byte) (*Payment, error) {
	var envelope callbackEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, invalid("malformed json: %v", err)
	}
	if envelope.Body == nil || envelope.Body.StkCallback == nil {
		return nil, invalid("missing Body.stkCallback")
	}

	cb := envelope.Body.StkCallback
	if cb.ResultCode == nil {
		return nil, invalid("missing ResultCode")
	}
	code, err := strconv.Atoi(cb.ResultCode.String())
	if err != nil {
		return nil, invalid("ResultCode %q is not an integer", cb.ResultCode.String())
	}

	payment := &Payment{
		MerchantRequestID: cb.MerchantRequestID,
		CheckoutRequestID: cb.CheckoutRequestID,
		ResultCode:        code,
		ResultDesc:        cb.ResultDesc,
	}
	if !payment.Succeeded() {
		return payment, nil
	}

	if cb.CallbackMetadata == nil {
		return nil, invalid("missing CallbackMetadata")
	}
	items := make(map[string]string, len(cb.CallbackMetadata.Item))
	for _, item := range cb.CallbackMetadata.Item {
		if value, ok := scalar(item.Value); ok {
			items[item.Name] = value
		}
	}

	for _, name := range []string{itemAmount, itemPhoneNumber, itemReceiptNumber, itemTransactionDate} {
		if items[name] == "" {
			return nil, invalid("missing %s", name)
		}
	}

	amount, err := decimal.NewFromString(items[itemAmount])
	if err != nil {
		return nil, invalid("Amount %q is not a number", items[itemAmount])
	}
	if payment.Amount, err = money.ToMinor(amount); err != nil {
		return nil, invalid("Amount %q: %v", items[itemAmount], err)
	}
	if payment.Amount <= 0 {
		return nil, invalid("Amount %q must be positive", items[itemAmount])
	}

	if payment.TransactionDate, err = ParseTimestamp(items[itemTransactionDate]); err != nil {
		return nil, invalid("TransactionDate %q: %v", items[itemTransactionDate], err)
	}

	payment.PhoneNumber = items[itemPhoneNumber]
	payment.ReceiptNumber = items[itemReceiptNumber]
	return payment, nil
}

// ParseTimestamp reads a Daraja YYYYMMDDHHMMSS East Africa timestamp as UTC
func ParseTimestamp(s string) (time.Time, error) {
	t, err := time.ParseInLocation(timestampLayout, s, eastAfricaTime)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

// FormatTimestamp renders t the way Daraja expects it in requests
func FormatTimestamp(t time.Time) string {
	return t.In(eastAfricaTime).Format(timestampLayout)
}

// scalar renders a JSON string or number as text. Daraja sends phone numbers
// and dates as bare numbers.
func scalar(raw json.RawMessage) (string, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", false
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", false
		}
		return strings.TrimSpace(s), true
	}

	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", false
	}
	return n.String(), true
}

