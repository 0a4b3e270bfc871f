package payment

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
	"sync"
	"time"
)

// PayPalAdapter drives the redirect-based wallet gateway. Payments are
// two-phase: the buyer approves at the gateway, then we capture.
type PayPalAdapter struct {
	cfg        PayPalConfig
	httpClient *http.Client

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

func NewPayPalAdapter(cfg PayPalConfig, timeout time.Duration) *PayPalAdapter {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultPayPalBaseURL
	}
	if timeout <= 0 {
		timeout = defaultGatewayTimeout
	}
	return &PayPalAdapter{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (a *PayPalAdapter) Gateway() Gateway { return GatewayPayPal }

type paypalOrder struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Links  []struct {
		Href string `json:"href"`
		Rel  string `json:"rel"`
	} `json:"links"`
	PurchaseUnits []struct {
		ReferenceID string `json:"reference_id"`
	} `json:"purchase_units"`
}

func (a *PayPalAdapter) CreateIntent(ctx context.Context, req CreateIntentRequest) (*IntentHandle, error) {
	payload := map[string]interface{}{
		"intent": "CAPTURE",
		"purchase_units": []map[string]interface{}{
			{
				"reference_id": req.OrderID,
				"custom_id":    req.OrderID,
				"description":  req.Description,
				"amount": map[string]string{
					"currency_code": strings.ToUpper(req.Currency),
					"value":         formatMajorUnits(req.AmountMinor),
				},
			},
		},
	}

	var order paypalOrder
	if err := a.do(ctx, http.MethodPost, "/v2/checkout/orders", payload, req.IdempotencyKey, &order, ErrCodeCreationFailed); err != nil {
		return nil, err
	}
	if order.ID == "" {
		return nil, NewGatewayError(ErrCodeCreationFailed, "Payment could not be created.", "gateway returned empty order id")
	}

	approval := ""
	for _, l := range order.Links {
		if l.Rel == "approve" || l.Rel == "payer-action" {
			approval = l.Href
			break
		}
	}

	return &IntentHandle{
		IntentID:       order.ID,
		NativeStatus:   order.Status,
		ApprovalURL:    approval,
		RequiresAction: approval != "",
	}, nil
}

// ConfirmIntent re-reads the gateway order. The wallet flow has no direct
// confirm call; approval happens on the gateway's own pages.
func (a *PayPalAdapter) ConfirmIntent(ctx context.Context, intentID, methodRef, returnURL string) (*ConfirmOutcome, error) {
	_ = methodRef
	_ = returnURL
	var order paypalOrder
	path := "/v2/checkout/orders/" + url.PathEscape(intentID)
	if err := a.do(ctx, http.MethodGet, path, nil, "", &order, ErrCodeConfirmationFailed); err != nil {
		return nil, err
	}
	return &ConfirmOutcome{IntentID: order.ID, NativeStatus: order.Status}, nil
}

func (a *PayPalAdapter) CaptureOrder(ctx context.Context, intentID string) (*ConfirmOutcome, error) {
	if strings.TrimSpace(intentID) == "" {
		return nil, NewValidationError(ErrCodeConfirmationFailed, "Transaction id is required.")
	}
	var order paypalOrder
	path := "/v2/checkout/orders/" + url.PathEscape(intentID) + "/capture"
	if err := a.do(ctx, http.MethodPost, path, map[string]interface{}{}, "", &order, ErrCodeConfirmationFailed); err != nil {
		return nil, err
	}
	return &ConfirmOutcome{IntentID: order.ID, NativeStatus: order.Status}, nil
}

func (a *PayPalAdapter) ListMethods(ctx context.Context, providerCustomerID string) ([]Method, error) {
	if strings.TrimSpace(providerCustomerID) == "" {
		return nil, nil
	}

	var out struct {
		PaymentTokens []struct {
			ID            string `json:"id"`
			PaymentSource struct {
				Card *struct {
					Brand      string `json:"brand"`
					LastDigits string `json:"last_digits"`
				} `json:"card"`
				PayPal *struct {
					EmailAddress string `json:"email_address"`
				} `json:"paypal"`
			} `json:"payment_source"`
		} `json:"payment_tokens"`
	}
	path := "/v3/vault/payment-tokens?customer_id=" + url.QueryEscape(providerCustomerID)
	if err := a.do(ctx, http.MethodGet, path, nil, "", &out, ErrCodeCreationFailed); err != nil {
		return nil, err
	}

	methods := make([]Method, 0, len(out.PaymentTokens))
	for _, t := range out.PaymentTokens {
		m := Method{ID: t.ID}
		if t.PaymentSource.Card != nil {
			m.Brand = t.PaymentSource.Card.Brand
			m.Last4 = t.PaymentSource.Card.LastDigits
		} else if t.PaymentSource.PayPal != nil {
			m.Brand = "paypal"
		}
		methods = append(methods, m)
	}
	return methods, nil
}

func (a *PayPalAdapter) AttachMethod(ctx context.Context, providerCustomerID, methodRef string, asDefault bool) error {
	_ = asDefault // the vault has no default flag; first token wins
	payload := map[string]interface{}{
		"customer":       map[string]string{"id": providerCustomerID},
		"payment_source": map[string]interface{}{"token": map[string]string{"id": methodRef, "type": "SETUP_TOKEN"}},
	}
	return a.do(ctx, http.MethodPost, "/v3/vault/payment-tokens", payload, "", &struct{}{}, ErrCodeMethodAttachFailed)
}

func (a *PayPalAdapter) DetachMethod(ctx context.Context, methodRef string) error {
	path := "/v3/vault/payment-tokens/" + url.PathEscape(methodRef)
	return a.do(ctx, http.MethodDelete, path, nil, "", &struct{}{}, ErrCodeMethodDetachFailed)
}

// VerifyWebhook checks an HMAC-SHA256 of the raw body against the shared
// webhook secret (simplified from the provider's certificate-chain scheme;
// the secret is provisioned alongside the webhook subscription).
func (a *PayPalAdapter) VerifyWebhook(headers map[string]string, rawBody []byte) (*VerifiedEvent, error) {
	sig := headerValue(headers, "Paypal-Transmission-Sig")
	if !VerifyHMACSignature(rawBody, sig, a.cfg.WebhookSecret) {
		return nil, NewGatewayError(ErrCodeInvalidSignature, "Webhook signature verification failed.", "paypal signature mismatch")
	}

	var event struct {
		ID        string `json:"id"`
		EventType string `json:"event_type"`
		Resource  struct {
			ID            string `json:"id"`
			Status        string `json:"status"`
			CustomID      string `json:"custom_id"`
			PurchaseUnits []struct {
				ReferenceID string `json:"reference_id"`
			} `json:"purchase_units"`
		} `json:"resource"`
	}
	if err := json.Unmarshal(rawBody, &event); err != nil {
		return nil, fmt.Errorf("invalid paypal webhook payload: %w", err)
	}
	if event.Resource.ID == "" {
		return nil, errors.New("paypal webhook payload missing resource id")
	}

	orderID := event.Resource.CustomID
	if orderID == "" && len(event.Resource.PurchaseUnits) > 0 {
		orderID = event.Resource.PurchaseUnits[0].ReferenceID
	}

	return &VerifiedEvent{
		Gateway:       GatewayPayPal,
		EventID:       event.ID,
		EventType:     event.EventType,
		TransactionID: event.Resource.ID,
		OrderID:       orderID,
		NativeStatus:  event.Resource.Status,
		RawBody:       rawBody,
	}, nil
}

// token returns a cached client-credentials access token, refreshing it
// shortly before expiry.
func (a *PayPalAdapter) token(ctx context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.accessToken != "" && time.Now().Before(a.tokenExpiry.Add(-30*time.Second)) {
		return a.accessToken, nil
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(a.cfg.BaseURL, "/")+"/v1/oauth2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(a.cfg.ClientID, a.cfg.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return "", NewUnavailableError(ErrCodeCreationFailed, "The payment service is temporarily unavailable.", err.Error())
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", NewUnavailableError(ErrCodeCreationFailed, "The payment service is temporarily unavailable.",
			fmt.Sprintf("paypal token request failed: status=%d", resp.StatusCode))
	}

	var out struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", err
	}
	if out.AccessToken == "" {
		return "", errors.New("paypal token response missing access_token")
	}

	a.accessToken = out.AccessToken
	a.tokenExpiry = time.Now().Add(time.Duration(out.ExpiresIn) * time.Second)
	return a.accessToken, nil
}

func (a *PayPalAdapter) do(ctx context.Context, method, path string, payload interface{}, requestID string, out interface{}, failCode ErrorCode) error {
	token, err := a.token(ctx)
	if err != nil {
		if pe, ok := err.(*Error); ok {
			return pe
		}
		return NewUnavailableError(failCode, "The payment service is temporarily unavailable.", err.Error())
	}

	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(a.cfg.BaseURL, "/")+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if requestID != "" {
		req.Header.Set("PayPal-Request-Id", requestID)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return NewUnavailableError(failCode, "The payment service is temporarily unavailable.", err.Error())
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return a.mapError(resp.StatusCode, raw, failCode)
	}
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, out)
}

func (a *PayPalAdapter) mapError(status int, raw []byte, failCode ErrorCode) error {
	var er struct {
		Name    string `json:"name"`
		Message string `json:"message"`
		Details []struct {
			Issue string `json:"issue"`
		} `json:"details"`
	}
	_ = json.Unmarshal(raw, &er)

	issue := ""
	if len(er.Details) > 0 {
		issue = er.Details[0].Issue
	}
	detail := fmt.Sprintf("status=%d name=%s issue=%s", status, er.Name, issue)

	if status == http.StatusTooManyRequests {
		return NewUnavailableError(failCode, "Too many payment attempts. Please wait a moment and try again.", detail)
	}
	if status >= 500 {
		return NewUnavailableError(failCode, "The payment service is temporarily unavailable.", detail)
	}

	switch issue {
	case "INSTRUMENT_DECLINED":
		return NewGatewayError(failCode, "Your payment method was declined.", detail)
	case "PAYER_CANNOT_PAY", "PAYER_ACCOUNT_RESTRICTED":
		return NewGatewayError(failCode, "This wallet account cannot complete the payment.", detail)
	case "ORDER_NOT_APPROVED":
		return NewGatewayError(failCode, "The payment has not been approved yet.", detail)
	case "ORDER_ALREADY_CAPTURED":
		return NewGatewayError(failCode, "This payment was already captured.", detail)
	default:
		return NewGatewayError(failCode, "Payment could not be processed.", detail)
	}
}

// formatMajorUnits renders minor units as the decimal string the wallet API
// expects ("5000" -> "50.00").
func formatMajorUnits(minor int64) string {
	sign := ""
	if minor < 0 {
		sign = "-"
		minor = -minor
	}
	return fmt.Sprintf("%s%d.%02d", sign, minor/100, minor%100)
}
