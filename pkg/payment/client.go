package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// EnvironmentURLs maps environment names to API base URLs
var EnvironmentURLs = map[string]string{
	"sandbox": "https://sandbox-api.fedapay.com",
	"live":    "https://api.fedapay.com",
}

// Config holds the HTTP client settings
type Config struct {
	Environment string
	SecretKey   string
	BaseURL     string // overrides Environment when set
	Timeout     time.Duration
}

// HTTPClient talks to the gateway REST API
type HTTPClient struct {
	baseURL   string
	secretKey string
	client    *http.Client
	logger    *logrus.Logger
}

// NewHTTPClient creates a new gateway client
func NewHTTPClient(cfg Config, logger *logrus.Logger) *HTTPClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		var ok bool
		baseURL, ok = EnvironmentURLs[cfg.Environment]
		if !ok {
			baseURL = EnvironmentURLs["sandbox"]
		}
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &HTTPClient{
		baseURL:   strings.TrimRight(baseURL, "/"),
		secretKey: cfg.SecretKey,
		client:    &http.Client{Timeout: timeout},
		logger:    logger,
	}
}

type customerPayload struct {
	FirstName   string        `json:"firstname"`
	LastName    string        `json:"lastname"`
	Email       string        `json:"email,omitempty"`
	PhoneNumber *phonePayload `json:"phone_number,omitempty"`
}

type phonePayload struct {
	Number  string `json:"number"`
	Country string `json:"country"`
}

type createTransactionPayload struct {
	Description    string            `json:"description"`
	Amount         int64             `json:"amount"`
	Currency       map[string]string `json:"currency"`
	CallbackURL    string            `json:"callback_url"`
	Customer       customerPayload   `json:"customer"`
	CustomMetadata map[string]string `json:"custom_metadata,omitempty"`
}

type transactionEnvelope struct {
	Transaction Transaction `json:"v1/transaction"`
}

type errorEnvelope struct {
	Message string                 `json:"message"`
	Errors  map[string]interface{} `json:"errors,omitempty"`
}

// CreateTransaction implements Gateway
func (c *HTTPClient) CreateTransaction(ctx context.Context, req TransactionRequest) (*Transaction, error) {
	payload := createTransactionPayload{
		Description:    req.Description,
		Amount:         req.Amount,
		Currency:       map[string]string{"iso": req.Currency},
		CallbackURL:    req.CallbackURL,
		CustomMetadata: req.Metadata,
		Customer: customerPayload{
			FirstName: req.Customer.FirstName,
			LastName:  req.Customer.LastName,
			Email:     req.Customer.Email,
		},
	}
	if req.Customer.Phone != "" {
		payload.Customer.PhoneNumber = &phonePayload{Number: req.Customer.Phone, Country: req.Customer.Country}
	}

	var envelope transactionEnvelope
	if err := c.do(ctx, "create_transaction", http.MethodPost, "/v1/transactions", payload, &envelope); err != nil {
		return nil, err
	}

	c.logger.WithFields(logrus.Fields{
		"transaction_id": envelope.Transaction.ID,
		"reference":      envelope.Transaction.Reference,
		"amount":         req.Amount,
	}).Info("Gateway transaction created")

	return &envelope.Transaction, nil
}

// GenerateCheckoutToken implements Gateway
func (c *HTTPClient) GenerateCheckoutToken(ctx context.Context, transactionID string) (*CheckoutToken, error) {
	var token CheckoutToken
	path := fmt.Sprintf("/v1/transactions/%s/token", transactionID)
	if err := c.do(ctx, "generate_token", http.MethodPost, path, struct{}{}, &token); err != nil {
		return nil, err
	}
	return &token, nil
}

// PushToPhone implements Gateway. mode is the mobile-money operator (mtn_open, moov).
func (c *HTTPClient) PushToPhone(ctx context.Context, mode string, token string) error {
	path := fmt.Sprintf("/v1/%s", mode)
	return c.do(ctx, "push_"+mode, http.MethodPost, path, map[string]string{"token": token}, nil)
}

// Retrieve implements Gateway
func (c *HTTPClient) Retrieve(ctx context.Context, transactionID string) (*Transaction, error) {
	var envelope transactionEnvelope
	path := fmt.Sprintf("/v1/transactions/%s", transactionID)
	if err := c.do(ctx, "retrieve_transaction", http.MethodGet, path, nil, &envelope); err != nil {
		return nil, err
	}
	return &envelope.Transaction, nil
}

func (c *HTTPClient) do(ctx context.Context, operation, method, path string, body interface{}, out interface{}) error {
	var reader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(jsonBody)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.secretKey)
	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.client.Do(httpReq)
	if err != nil {
		c.logger.WithError(err).WithField("operation", operation).Error("Gateway call failed")
		return &Error{Operation: operation, Message: err.Error()}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &Error{Operation: operation, StatusCode: resp.StatusCode, Message: "failed to read response"}
	}

	c.logger.WithFields(logrus.Fields{
		"operation":   operation,
		"status_code": resp.StatusCode,
		"duration_ms": time.Since(start).Milliseconds(),
	}).Debug("Gateway response received")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr errorEnvelope
		message := strings.TrimSpace(string(respBody))
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Message != "" {
			message = apiErr.Message
		}
		return &Error{Operation: operation, StatusCode: resp.StatusCode, Message: message}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return &Error{Operation: operation, StatusCode: resp.StatusCode, Message: "unparsable response: " + err.Error()}
	}
	return nil
}
