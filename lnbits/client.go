// Package lnbits implements the InvoiceProvider capability against an LNbits
// node's HTTP API.
package lnbits

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	lnhunt "github.com/lnhunt/lnhunt"
)

// Config configures the LNbits client.
type Config struct {
	// URL is the base URL of the LNbits API (e.g. https://node.example/api/v1).
	URL string

	// APIKey and WalletID authenticate requests against the wallet.
	APIKey   string
	WalletID string

	// HTTPClient is the HTTP client to use (optional).
	HTTPClient *http.Client

	// Timeout for requests (optional, defaults to 30s).
	Timeout time.Duration
}

// Client talks to an LNbits node. It performs no retries of its own; retry
// policy belongs to the poller and the session state machine.
type Client struct {
	url        string
	apiKey     string
	walletID   string
	httpClient *http.Client
}

// defaultRetryAfter is used when a 429 response carries no usable interval.
const defaultRetryAfter = 30 * time.Second

// NewClient creates a new LNbits client. Missing configuration is a fatal
// configuration error, not a per-call failure.
func NewClient(config *Config) (*Client, error) {
	if config == nil {
		config = &Config{}
	}

	switch {
	case config.URL == "":
		return nil, lnhunt.NewError(lnhunt.ErrCodeConfiguration, "LNbits URL is required", nil)
	case config.APIKey == "":
		return nil, lnhunt.NewError(lnhunt.ErrCodeConfiguration, "LNbits API key is required", nil)
	case config.WalletID == "":
		return nil, lnhunt.NewError(lnhunt.ErrCodeConfiguration, "LNbits wallet id is required", nil)
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		timeout := config.Timeout
		if timeout == 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{
			Timeout: timeout,
		}
	}

	return &Client{
		url:        config.URL,
		apiKey:     config.APIKey,
		walletID:   config.WalletID,
		httpClient: httpClient,
	}, nil
}

type createInvoiceRequest struct {
	Out    bool   `json:"out"`
	Amount int64  `json:"amount"`
	Unit   string `json:"unit"`
	Memo   string `json:"memo"`
}

type createInvoiceResponse struct {
	PaymentRequest string `json:"payment_request"`
	Bolt11         string `json:"bolt11"`
	PaymentHash    string `json:"payment_hash"`
}

// CreateInvoice creates an incoming invoice for unlocking a question. The
// memo references the question id for provider-side auditability.
func (c *Client) CreateInvoice(ctx context.Context, questionID string, amountSats int64) (lnhunt.Invoice, error) {
	body, err := json.Marshal(createInvoiceRequest{
		Out:    false,
		Amount: amountSats,
		Unit:   "sat",
		Memo:   fmt.Sprintf("LNHunt - unlock question %s", questionID),
	})
	if err != nil {
		return lnhunt.Invoice{}, fmt.Errorf("failed to marshal invoice request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.url+"/payments", bytes.NewReader(body))
	if err != nil {
		return lnhunt.Invoice{}, fmt.Errorf("failed to create invoice request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return lnhunt.Invoice{}, lnhunt.NewError(lnhunt.ErrCodeProvider, "invoice request failed", map[string]interface{}{
			"cause": err.Error(),
		})
	}
	defer resp.Body.Close()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return lnhunt.Invoice{}, lnhunt.NewError(lnhunt.ErrCodeProvider, "failed to read invoice response", map[string]interface{}{
			"cause": err.Error(),
		})
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return lnhunt.Invoice{}, lnhunt.NewError(lnhunt.ErrCodeProvider,
			fmt.Sprintf("LNbits invoice creation failed (%d)", resp.StatusCode),
			map[string]interface{}{"body": string(responseBody)},
		)
	}

	var decoded createInvoiceResponse
	if err := json.Unmarshal(responseBody, &decoded); err != nil {
		return lnhunt.Invoice{}, lnhunt.NewError(lnhunt.ErrCodeProvider, "malformed invoice response", map[string]interface{}{
			"cause": err.Error(),
		})
	}

	// Some LNbits versions return bolt11 instead of payment_request.
	paymentRequest := decoded.PaymentRequest
	if paymentRequest == "" {
		paymentRequest = decoded.Bolt11
	}
	if paymentRequest == "" || decoded.PaymentHash == "" {
		return lnhunt.Invoice{}, lnhunt.NewError(lnhunt.ErrCodeProvider, "invoice response missing payment_request or payment_hash", nil)
	}

	return lnhunt.Invoice{
		PaymentHash:    decoded.PaymentHash,
		PaymentRequest: paymentRequest,
	}, nil
}

type paymentStatusResponse struct {
	Paid       bool `json:"paid"`
	RetryAfter int  `json:"retryAfter"`
}

// CheckPayment queries settlement status for a payment hash. All failure
// modes map to the typed PaymentStatus variants: 429 to PaymentRateLimited
// with the provider interval, everything else transient to
// PaymentProviderUnavailable.
func (c *Client) CheckPayment(ctx context.Context, paymentHash string) (lnhunt.PaymentStatus, error) {
	if !lnhunt.ValidPaymentHash(paymentHash) {
		return lnhunt.PaymentStatus{}, lnhunt.NewError(lnhunt.ErrCodeValidation, "invalid payment hash format", nil)
	}

	req, err := http.NewRequestWithContext(ctx, "GET", c.url+"/payments/"+paymentHash, nil)
	if err != nil {
		return lnhunt.PaymentStatus{}, fmt.Errorf("failed to create status request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return lnhunt.PaymentStatus{State: lnhunt.PaymentProviderUnavailable},
			lnhunt.NewError(lnhunt.ErrCodeProvider, "status request failed", map[string]interface{}{
				"cause": err.Error(),
			})
	}
	defer resp.Body.Close()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return lnhunt.PaymentStatus{State: lnhunt.PaymentProviderUnavailable},
			lnhunt.NewError(lnhunt.ErrCodeProvider, "failed to read status response", map[string]interface{}{
				"cause": err.Error(),
			})
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return lnhunt.PaymentStatus{
			State:      lnhunt.PaymentRateLimited,
			RetryAfter: retryAfterFrom(resp, responseBody),
		}, nil
	}

	if resp.StatusCode != http.StatusOK {
		return lnhunt.PaymentStatus{State: lnhunt.PaymentProviderUnavailable},
			lnhunt.NewError(lnhunt.ErrCodeProvider,
				fmt.Sprintf("LNbits status check failed (%d)", resp.StatusCode),
				map[string]interface{}{"body": string(responseBody)},
			)
	}

	var decoded paymentStatusResponse
	if err := json.Unmarshal(responseBody, &decoded); err != nil {
		// Malformed bodies are transient, the poller will retry.
		return lnhunt.PaymentStatus{State: lnhunt.PaymentProviderUnavailable},
			lnhunt.NewError(lnhunt.ErrCodeProvider, "malformed status response", map[string]interface{}{
				"cause": err.Error(),
			})
	}

	if decoded.Paid {
		return lnhunt.PaymentStatus{State: lnhunt.PaymentPaid}, nil
	}
	return lnhunt.PaymentStatus{State: lnhunt.PaymentPending}, nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Api-Key", c.apiKey)
	req.Header.Set("X-Wallet-Id", c.walletID)
}

// retryAfterFrom extracts the retry interval from a 429 response, preferring
// the Retry-After header over the body field.
func retryAfterFrom(resp *http.Response, body []byte) time.Duration {
	if header := resp.Header.Get("Retry-After"); header != "" {
		if secs, err := strconv.Atoi(header); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}

	var decoded paymentStatusResponse
	if err := json.Unmarshal(body, &decoded); err == nil && decoded.RetryAfter > 0 {
		return time.Duration(decoded.RetryAfter) * time.Second
	}

	return defaultRetryAfter
}

// Ensure Client implements InvoiceProvider
var _ lnhunt.InvoiceProvider = (*Client)(nil)
