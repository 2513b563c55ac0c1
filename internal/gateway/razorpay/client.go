// Package razorpay talks to the Razorpay Orders API over HTTPS with basic
// auth. Amounts cross the wire in minor units.
package razorpay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"confdesk/internal/model"
)

const (
	defaultBaseURL = "https://api.razorpay.com"
	defaultTimeout = 10 * time.Second
)

type Client struct {
	baseURL   string
	keyID     string
	keySecret string
	http      *http.Client
}

func New(baseURL, keyID, keySecret string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		keyID:     keyID,
		keySecret: keySecret,
		http:      &http.Client{Timeout: timeout},
	}
}

func (c *Client) Name() string { return "razorpay" }

type orderRequest struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
}

type orderResponse struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
	Status   string `json:"status"`
}

type paymentItem struct {
	ID      string `json:"id"`
	OrderID string `json:"order_id"`
	Status  string `json:"status"`
	Amount  int64  `json:"amount"`
}

type paymentList struct {
	Count int           `json:"count"`
	Items []paymentItem `json:"items"`
}

type apiError struct {
	Error struct {
		Code        string `json:"code"`
		Description string `json:"description"`
	} `json:"error"`
}

func (c *Client) CreateOrder(ctx context.Context, amount decimal.Decimal, currency, receipt string) (model.GatewayOrder, error) {
	body, err := json.Marshal(orderRequest{
		Amount:   ToMinor(amount),
		Currency: currency,
		Receipt:  receipt,
	})
	if err != nil {
		return model.GatewayOrder{}, err
	}

	var out orderResponse
	if err := c.do(ctx, http.MethodPost, "/v1/orders", body, &out); err != nil {
		return model.GatewayOrder{}, &model.GatewayError{Op: "create order", Err: err}
	}
	return model.GatewayOrder{
		ID:       out.ID,
		Receipt:  out.Receipt,
		Amount:   FromMinor(out.Amount),
		Currency: out.Currency,
		Status:   out.Status,
	}, nil
}

func (c *Client) FetchPayments(ctx context.Context, orderID string) ([]model.GatewayPayment, error) {
	var out paymentList
	path := "/v1/orders/" + url.PathEscape(orderID) + "/payments"
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, &model.GatewayError{Op: "fetch payments", Err: err}
	}
	payments := make([]model.GatewayPayment, 0, len(out.Items))
	for _, it := range out.Items {
		payments = append(payments, model.GatewayPayment{
			ID:      it.ID,
			OrderID: it.OrderID,
			Status:  it.Status,
			Amount:  FromMinor(it.Amount),
		})
	}
	return payments, nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.SetBasicAuth(c.keyID, c.keySecret)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode >= 300 {
		var ae apiError
		if json.Unmarshal(raw, &ae) == nil && ae.Error.Description != "" {
			return fmt.Errorf("status %d: %s: %s", resp.StatusCode, ae.Error.Code, ae.Error.Description)
		}
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return errors.Join(errors.New("decode response"), err)
	}
	return nil
}

// ToMinor converts 12.34 to 1234.
func ToMinor(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}

func FromMinor(v int64) decimal.Decimal {
	return decimal.New(v, -2)
}
