package mpesa

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/modern-bank-ledger/internal/config"
	"github.com/modern-bank-ledger/internal/logger"
)

const (
	tokenPath    = "/oauth/v1/generate?grant_type=client_credentials"
	stkPushPath  = "/mpesa/stkpush/v1/processrequest"
	transactType = "CustomerPayBillOnline"

	// Daraja tokens last an hour; refresh a little early
	tokenRefreshMargin = time.Minute
)

// ErrProviderUnavailable means Daraja could not be reached or answered with a
// server error, or the circuit breaker is open.
var ErrProviderUnavailable = errors.New("payment provider unavailable")

// PaymentInitiator starts customer payments
type PaymentInitiator interface {
	STKPush(ctx context.Context, req STKPushRequest) (*STKPushResponse, error)
}

// STKPushRequest asks a customer's phone to approve a PayBill payment
type STKPushRequest struct {
	PhoneNumber   string
	Amount        int64 // whole shillings
	CorrelationID string
}

// STKPushResponse is Daraja's acknowledgement of an STK push
type STKPushResponse struct {
	MerchantRequestID   string `json:"MerchantRequestID"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	CustomerMessage     string `json:"CustomerMessage"`
}

// Accepted reports whether Daraja queued the push
func (r *STKPushResponse) Accepted() bool {
	return r.ResponseCode == "0"
}

type stkPushPayload struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	TransactionType   string `json:"TransactionType"`
	Amount            int64  `json:"Amount"`
	PartyA            string `json:"PartyA"`
	PartyB            string `json:"PartyB"`
	PhoneNumber       string `json:"PhoneNumber"`
	CallBackURL       string `json:"CallBackURL"`
	AccountReference  string `json:"AccountReference"`
	TransactionDesc   string `json:"TransactionDesc"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   string `json:"expires_in"`
}

type errorResponse struct {
	RequestID    string `json:"requestId"`
	ErrorCode    string `json:"errorCode"`
	ErrorMessage string `json:"errorMessage"`
}

// rejectedError is a 4xx answer from Daraja. It does not count against the breaker.
type rejectedError struct {
	status int
	body   errorResponse
}

func (e rejectedError) Error() string {
	return fmt.Sprintf("daraja rejected request (status %d, code %s): %s", e.status, e.body.ErrorCode, e.body.ErrorMessage)
}

func (e rejectedError) Unwrap() error {
	return ErrPaymentFailed
}

// Client is a Daraja API client guarded by a circuit breaker
type Client struct {
	cfg        config.MpesaConfig
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	logger     *slog.Logger
	now        func() time.Time

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

func NewClient(cfg config.MpesaConfig, logger *slog.Logger) *Client {
	c := &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
		now:        time.Now,
	}

	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "daraja",
		MaxRequests: cfg.BreakerMaxRequests,
		Interval:    cfg.BreakerInterval,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerMaxFailures
		},
		IsSuccessful: func(err error) bool {
			var rejected rejectedError
			return err == nil || errors.As(err, &rejected)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
	return c
}

// Password builds the STK password: base64(shortcode + passkey + timestamp)
func Password(shortCode, passkey, timestamp string) string {
	return base64.StdEncoding.EncodeToString([]byte(shortCode + passkey + timestamp))
}

// STKPush sends an STK push for req. A 4xx answer is ErrPaymentFailed;
// transport failures, 5xx answers and an open breaker are ErrProviderUnavailable.
func (c *Client) STKPush(ctx context.Context, req STKPushRequest) (*STKPushResponse, error) {
	log := logger.WithCorrelationID(c.logger, req.CorrelationID)

	result, err := c.breaker.Execute(func() (interface{}, error) {
		token, err := c.accessToken(ctx)
		if err != nil {
			return nil, err
		}
		return c.processRequest(ctx, token, req)
	})
	if err != nil {
		var rejected rejectedError
		switch {
		case errors.As(err, &rejected):
			log.Warn("STK push rejected", "status", rejected.status, "error_code", rejected.body.ErrorCode)
			return nil, err
		case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
			log.Warn("STK push short-circuited", "state", c.breaker.State().String())
			return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
		default:
			log.Error("STK push failed", "error", err)
			if errors.Is(err, ErrProviderUnavailable) {
				return nil, err
			}
			return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
		}
	}

	resp := result.(*STKPushResponse)
	log.Info("STK push sent",
		"checkout_request_id", resp.CheckoutRequestID,
		"response_code", resp.ResponseCode,
	)
	return resp, nil
}

func (c *Client) processRequest(ctx context.Context, token string, req STKPushRequest) (*STKPushResponse, error) {
	timestamp := FormatTimestamp(c.now())
	payload := stkPushPayload{
		BusinessShortCode: c.cfg.ShortCode,
		Password:          Password(c.cfg.ShortCode, c.cfg.Passkey, timestamp),
		Timestamp:         timestamp,
		TransactionType:   transactType,
		Amount:            req.Amount,
		PartyA:            req.PhoneNumber,
		PartyB:            c.cfg.ShortCode,
		PhoneNumber:       req.PhoneNumber,
		CallBackURL:       c.cfg.CallbackURL,
		AccountReference:  c.cfg.AccountReference,
		TransactionDesc:   c.cfg.TransactionDesc,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode stk push: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url(stkPushPath), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+token)
	httpReq.Header.Set("Content-Type", "application/json")

	var resp STKPushResponse
	if err := c.do(httpReq, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && c.now().Before(c.tokenExpiry) {
		return c.token, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url(tokenPath), nil)
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(c.cfg.ConsumerKey, c.cfg.ConsumerSecret)

	var tok tokenResponse
	if err := c.do(req, &tok); err != nil {
		return "", fmt.Errorf("failed to fetch access token: %w", err)
	}
	if tok.AccessToken == "" {
		return "", fmt.Errorf("%w: empty access token", ErrProviderUnavailable)
	}

	ttl := time.Hour
	if seconds, err := strconv.Atoi(tok.ExpiresIn); err == nil && seconds > 0 {
		ttl = time.Duration(seconds) * time.Second
	}
	c.token = tok.AccessToken
	c.tokenExpiry = c.now().Add(ttl - tokenRefreshMargin)
	return c.token, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}

	switch {
	case resp.StatusCode >= http.StatusInternalServerError:
		return fmt.Errorf("%w: status %d", ErrProviderUnavailable, resp.StatusCode)
	case resp.StatusCode >= http.StatusBadRequest:
		var errBody errorResponse
		_ = json.Unmarshal(body, &errBody)
		return rejectedError{status: resp.StatusCode, body: errBody}
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode daraja response: %w", err)
	}
	return nil
}

func (c *Client) url(path string) string {
	return strings.TrimRight(c.cfg.BaseURL, "/") + path
}
