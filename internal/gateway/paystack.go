package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
)

// PaystackClient implements PaymentGateway against the Paystack API.
type PaystackClient struct {
	SecretKey  string
	BaseURL    string
	HTTPClient *http.Client
}

// NewPaystackClient creates a new Paystack client. The timeout bounds every
// call; a timed-out request surfaces as an unknown-outcome error.
func NewPaystackClient(secretKey, baseURL string, timeout time.Duration) *PaystackClient {
	return &PaystackClient{
		SecretKey:  secretKey,
		BaseURL:    baseURL,
		HTTPClient: &http.Client{Timeout: timeout},
	}
}

// Paystack API response envelopes
type paystackEnvelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type paystackCharge struct {
	ID               int64  `json:"id"`
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code"`
	Reference        string `json:"reference"`
	Status           string `json:"status"`
	Amount           int64  `json:"amount"`
	Currency         string `json:"currency"`
}

type paystackTransfer struct {
	ID           int64  `json:"id"`
	Amount       int64  `json:"amount"`
	Currency     string `json:"currency"`
	Status       string `json:"status"`
	TransferCode string `json:"transfer_code"`
	Reference    string `json:"reference"`
}

type paystackRefund struct {
	ID     int64  `json:"id"`
	Amount int64  `json:"amount"`
	Status string `json:"status"`
}

type paystackRecipient struct {
	Active        bool   `json:"active"`
	RecipientCode string `json:"recipient_code"`
	Details       struct {
		AccountNumber string `json:"account_number"`
		AccountName   string `json:"account_name"`
		BankCode      string `json:"bank_code"`
	} `json:"details"`
}

type paystackBalance []struct {
	Currency string `json:"currency"`
	Balance  int64  `json:"balance"`
}

// makeRequest makes an HTTP request to the Paystack API and decodes the
// envelope. Network timeouts come back as unknown-outcome errors.
func (ps *PaystackClient) makeRequest(ctx context.Context, method, endpoint string, payload interface{}, out interface{}) error {
	var body io.Reader
	if payload != nil {
		jsonData, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal payload: %w", err)
		}
		body = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, ps.BaseURL+endpoint, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+ps.SecretKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := ps.HTTPClient.Do(req)
	if err != nil {
		if isTimeoutErr(err) {
			return &Error{Code: "timeout", Message: err.Error(), Timeout: true}
		}
		return &Error{Code: "network_error", Message: err.Error()}
	}
	defer resp.Body.Close()

	var envelope paystackEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return &Error{StatusCode: resp.StatusCode, Code: "bad_response", Message: fmt.Sprintf("failed to decode response: %v", err)}
	}
	if !envelope.Status {
		return &Error{StatusCode: resp.StatusCode, Code: "declined", Message: envelope.Message}
	}
	if out != nil && len(envelope.Data) > 0 {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return &Error{StatusCode: resp.StatusCode, Code: "bad_response", Message: fmt.Sprintf("failed to decode data: %v", err)}
		}
	}
	return nil
}

func isTimeoutErr(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// CreateCharge initializes a payment for the buyer to complete.
func (ps *PaystackClient) CreateCharge(ctx context.Context, req ChargeRequest) (*Charge, error) {
	payload := map[string]interface{}{
		"email":     req.Email,
		"amount":    req.Amount,
		"reference": req.Reference,
		"currency":  strings.ToUpper(req.Currency),
		"metadata":  req.Metadata,
	}

	var data paystackCharge
	if err := ps.makeRequest(ctx, http.MethodPost, "/transaction/initialize", payload, &data); err != nil {
		return nil, err
	}
	return &Charge{
		Ref:          data.Reference,
		ClientSecret: data.AccessCode,
		Status:       "pending",
		Amount:       req.Amount,
		Currency:     req.Currency,
	}, nil
}

// VerifyCharge confirms whether the buyer's payment actually settled.
func (ps *PaystackClient) VerifyCharge(ctx context.Context, chargeRef string) (*Charge, error) {
	var data paystackCharge
	if err := ps.makeRequest(ctx, http.MethodGet, "/transaction/verify/"+chargeRef, nil, &data); err != nil {
		return nil, err
	}
	return &Charge{
		Ref:      data.Reference,
		Status:   data.Status,
		Amount:   data.Amount,
		Currency: strings.ToLower(data.Currency),
		Paid:     data.Status == "success",
	}, nil
}

// Transfer moves funds to a payee's settlement account. The idempotency key
// is sent as the transfer reference, which Paystack deduplicates on.
func (ps *PaystackClient) Transfer(ctx context.Context, req TransferRequest) (*Transfer, error) {
	payload := map[string]interface{}{
		"source":    "balance",
		"amount":    req.Amount,
		"currency":  strings.ToUpper(req.Currency),
		"recipient": req.RecipientCode,
		"reason":    req.Reason,
		"reference": req.IdempotencyKey,
	}

	var data paystackTransfer
	if err := ps.makeRequest(ctx, http.MethodPost, "/transfer", payload, &data); err != nil {
		return nil, err
	}
	return &Transfer{
		Ref:      data.TransferCode,
		Amount:   data.Amount,
		Currency: strings.ToLower(data.Currency),
		Status:   data.Status,
	}, nil
}

// Refund returns funds on a charge to the buyer. Amount 0 refunds the full charge.
func (ps *PaystackClient) Refund(ctx context.Context, req RefundRequest) (*Refund, error) {
	payload := map[string]interface{}{
		"transaction":   req.ChargeRef,
		"merchant_note": "escrow refund " + req.IdempotencyKey,
	}
	if req.Amount > 0 {
		payload["amount"] = req.Amount
	}

	var data paystackRefund
	if err := ps.makeRequest(ctx, http.MethodPost, "/refund", payload, &data); err != nil {
		return nil, err
	}
	return &Refund{
		Ref:    fmt.Sprintf("refund_%d", data.ID),
		Amount: data.Amount,
		Status: data.Status,
	}, nil
}

// CreateRecipient registers a payee's bank account as a transfer recipient.
func (ps *PaystackClient) CreateRecipient(ctx context.Context, req RecipientRequest) (*Recipient, error) {
	payload := map[string]interface{}{
		"type":           "nuban",
		"name":           req.AccountName,
		"account_number": req.AccountNumber,
		"bank_code":      req.BankCode,
		"currency":       strings.ToUpper(req.Currency),
	}

	var data paystackRecipient
	if err := ps.makeRequest(ctx, http.MethodPost, "/transferrecipient", payload, &data); err != nil {
		return nil, err
	}
	return &Recipient{Code: data.RecipientCode, Active: data.Active}, nil
}

// GetAccountStatus reports whether a payee can receive payouts.
func (ps *PaystackClient) GetAccountStatus(ctx context.Context, recipientCode string) (*AccountStatus, error) {
	var data paystackRecipient
	if err := ps.makeRequest(ctx, http.MethodGet, "/transferrecipient/"+recipientCode, nil, &data); err != nil {
		return nil, err
	}

	status := &AccountStatus{
		PayoutsEnabled:   data.Active,
		ChargesEnabled:   true,
		DetailsSubmitted: data.Details.AccountNumber != "",
	}
	if !data.Active {
		status.OutstandingRequirements = append(status.OutstandingRequirements, "recipient_disabled")
	}
	if !status.DetailsSubmitted {
		status.OutstandingRequirements = append(status.OutstandingRequirements, "bank_details_missing")
	}
	return status, nil
}

// GetBalance returns the settlement balance per currency. Paystack's
// /balance endpoint covers the whole integration and has no
// pending/available split, so Pending stays empty.
func (ps *PaystackClient) GetBalance(ctx context.Context) (*AccountBalance, error) {
	var data paystackBalance
	if err := ps.makeRequest(ctx, http.MethodGet, "/balance", nil, &data); err != nil {
		return nil, err
	}

	out := &AccountBalance{
		Available: make(map[string]int64, len(data)),
		Pending:   map[string]int64{},
	}
	for _, b := range data {
		out.Available[strings.ToLower(b.Currency)] = b.Balance
	}
	return out, nil
}
