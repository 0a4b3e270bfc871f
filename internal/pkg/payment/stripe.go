package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// StripeAdapter drives the card-processor gateway over its form-encoded
// REST API.
type StripeAdapter struct {
	cfg        StripeConfig
	httpClient *http.Client
}

func NewStripeAdapter(cfg StripeConfig, timeout time.Duration) *StripeAdapter {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultStripeBaseURL
	}
	if timeout <= 0 {
		timeout = defaultGatewayTimeout
	}
	return &StripeAdapter{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (a *StripeAdapter) Gateway() Gateway { return GatewayStripe }

type stripeIntent struct {
	ID           string `json:"id"`
	Status       string `json:"status"`
	ClientSecret string `json:"client_secret"`
	NextAction   *struct {
		RedirectToURL *struct {
			URL string `json:"url"`
		} `json:"redirect_to_url"`
	} `json:"next_action"`
}

type stripeErrorResponse struct {
	Error struct {
		Type        string `json:"type"`
		Code        string `json:"code"`
		DeclineCode string `json:"decline_code"`
		Message     string `json:"message"`
	} `json:"error"`
}

func (a *StripeAdapter) CreateIntent(ctx context.Context, req CreateIntentRequest) (*IntentHandle, error) {
	form := url.Values{}
	form.Set("amount", strconv.FormatInt(req.AmountMinor, 10))
	form.Set("currency", strings.ToLower(req.Currency))
	form.Set("description", req.Description)
	if req.ProviderCustomerID != "" {
		form.Set("customer", req.ProviderCustomerID)
	}
	form.Set("metadata[order_id]", req.OrderID)
	for k, v := range req.Metadata {
		form.Set("metadata["+k+"]", v)
	}

	var intent stripeIntent
	if err := a.do(ctx, http.MethodPost, "/v1/payment_intents", form, req.IdempotencyKey, &intent, ErrCodeCreationFailed); err != nil {
		return nil, err
	}
	if intent.ID == "" {
		return nil, NewGatewayError(ErrCodeCreationFailed, "Payment could not be created.", "gateway returned empty intent id")
	}

	return &IntentHandle{
		IntentID:       intent.ID,
		NativeStatus:   intent.Status,
		ClientSecret:   intent.ClientSecret,
		RequiresAction: intent.Status == "requires_action",
	}, nil
}

func (a *StripeAdapter) ConfirmIntent(ctx context.Context, intentID, methodRef, returnURL string) (*ConfirmOutcome, error) {
	if strings.TrimSpace(intentID) == "" {
		return nil, NewValidationError(ErrCodeConfirmationFailed, "Transaction id is required.")
	}
	form := url.Values{}
	if methodRef != "" {
		form.Set("payment_method", methodRef)
	}
	if returnURL != "" {
		form.Set("return_url", returnURL)
	}

	var intent stripeIntent
	path := "/v1/payment_intents/" + url.PathEscape(intentID) + "/confirm"
	if err := a.do(ctx, http.MethodPost, path, form, "", &intent, ErrCodeConfirmationFailed); err != nil {
		return nil, err
	}
	return intentToOutcome(&intent), nil
}

func (a *StripeAdapter) CaptureOrder(ctx context.Context, intentID string) (*ConfirmOutcome, error) {
	var intent stripeIntent
	path := "/v1/payment_intents/" + url.PathEscape(intentID) + "/capture"
	if err := a.do(ctx, http.MethodPost, path, url.Values{}, "", &intent, ErrCodeConfirmationFailed); err != nil {
		return nil, err
	}
	return intentToOutcome(&intent), nil
}

func (a *StripeAdapter) ListMethods(ctx context.Context, providerCustomerID string) ([]Method, error) {
	if strings.TrimSpace(providerCustomerID) == "" {
		return nil, nil
	}

	var out struct {
		Data []struct {
			ID   string `json:"id"`
			Card struct {
				Brand    string `json:"brand"`
				Last4    string `json:"last4"`
				ExpMonth int    `json:"exp_month"`
				ExpYear  int    `json:"exp_year"`
			} `json:"card"`
		} `json:"data"`
	}
	path := "/v1/payment_methods?customer=" + url.QueryEscape(providerCustomerID) + "&type=card"
	if err := a.do(ctx, http.MethodGet, path, nil, "", &out, ErrCodeCreationFailed); err != nil {
		return nil, err
	}

	methods := make([]Method, 0, len(out.Data))
	for _, m := range out.Data {
		methods = append(methods, Method{
			ID:       m.ID,
			Brand:    m.Card.Brand,
			Last4:    m.Card.Last4,
			ExpMonth: m.Card.ExpMonth,
			ExpYear:  m.Card.ExpYear,
		})
	}
	return methods, nil
}

func (a *StripeAdapter) AttachMethod(ctx context.Context, providerCustomerID, methodRef string, asDefault bool) error {
	form := url.Values{}
	form.Set("customer", providerCustomerID)
	path := "/v1/payment_methods/" + url.PathEscape(methodRef) + "/attach"
	if err := a.do(ctx, http.MethodPost, path, form, "", &struct{}{}, ErrCodeMethodAttachFailed); err != nil {
		return err
	}
	if !asDefault {
		return nil
	}
	defForm := url.Values{}
	defForm.Set("invoice_settings[default_payment_method]", methodRef)
	return a.do(ctx, http.MethodPost, "/v1/customers/"+url.PathEscape(providerCustomerID), defForm, "", &struct{}{}, ErrCodeMethodAttachFailed)
}

func (a *StripeAdapter) DetachMethod(ctx context.Context, methodRef string) error {
	path := "/v1/payment_methods/" + url.PathEscape(methodRef) + "/detach"
	return a.do(ctx, http.MethodPost, path, url.Values{}, "", &struct{}{}, ErrCodeMethodDetachFailed)
}

func (a *StripeAdapter) VerifyWebhook(headers map[string]string, rawBody []byte) (*VerifiedEvent, error) {
	sig := headerValue(headers, "Stripe-Signature")
	if !VerifyStripeSignature(rawBody, sig, a.cfg.WebhookSecret, time.Now()) {
		return nil, NewGatewayError(ErrCodeInvalidSignature, "Webhook signature verification failed.", "stripe signature mismatch")
	}

	var event struct {
		ID   string `json:"id"`
		Type string `json:"type"`
		Data struct {
			Object struct {
				ID       string            `json:"id"`
				Status   string            `json:"status"`
				Metadata map[string]string `json:"metadata"`
			} `json:"object"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rawBody, &event); err != nil {
		return nil, fmt.Errorf("invalid stripe webhook payload: %w", err)
	}
	if event.Data.Object.ID == "" {
		return nil, errors.New("stripe webhook payload missing intent id")
	}

	native := event.Data.Object.Status
	// Event types carry the terminal states the object status field lacks.
	switch {
	case strings.HasSuffix(event.Type, "payment_failed"):
		native = "failed"
	case strings.HasPrefix(event.Type, "charge.refunded"):
		native = "refunded"
	case strings.HasPrefix(event.Type, "charge.dispute"):
		native = "disputed"
	}

	return &VerifiedEvent{
		Gateway:       GatewayStripe,
		EventID:       event.ID,
		EventType:     event.Type,
		TransactionID: event.Data.Object.ID,
		OrderID:       event.Data.Object.Metadata["order_id"],
		NativeStatus:  native,
		RawBody:       rawBody,
	}, nil
}

func intentToOutcome(intent *stripeIntent) *ConfirmOutcome {
	out := &ConfirmOutcome{
		IntentID:       intent.ID,
		NativeStatus:   intent.Status,
		RequiresAction: intent.Status == "requires_action",
	}
	if intent.NextAction != nil && intent.NextAction.RedirectToURL != nil {
		out.ActionURL = intent.NextAction.RedirectToURL.URL
	}
	return out
}

// do executes one API call and decodes the response into out. Gateway
// failures come back as typed payment errors; the raw card data never
// appears in them.
func (a *StripeAdapter) do(ctx context.Context, method, path string, form url.Values, idempotencyKey string, out interface{}, failCode ErrorCode) error {
	var body io.Reader
	if form != nil && method != http.MethodGet {
		body = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(a.cfg.BaseURL, "/")+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+a.cfg.SecretKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
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
	return json.Unmarshal(raw, out)
}

// mapError translates the gateway's error vocabulary into the small fixed
// set of user-facing messages.
func (a *StripeAdapter) mapError(status int, raw []byte, failCode ErrorCode) error {
	var er stripeErrorResponse
	_ = json.Unmarshal(raw, &er)
	detail := fmt.Sprintf("status=%d type=%s code=%s decline_code=%s", status, er.Error.Type, er.Error.Code, er.Error.DeclineCode)

	if status == http.StatusTooManyRequests {
		return NewUnavailableError(failCode, "Too many payment attempts. Please wait a moment and try again.", detail)
	}
	if status >= 500 {
		return NewUnavailableError(failCode, "The payment service is temporarily unavailable.", detail)
	}

	code := er.Error.Code
	if er.Error.DeclineCode != "" {
		code = er.Error.DeclineCode
	}
	switch code {
	case "card_declined", "generic_decline", "do_not_honor":
		return NewGatewayError(failCode, "Your card was declined.", detail)
	case "insufficient_funds":
		return NewGatewayError(failCode, "Your card has insufficient funds.", detail)
	case "expired_card":
		return NewGatewayError(failCode, "Your card has expired.", detail)
	case "incorrect_cvc", "invalid_cvc":
		return NewGatewayError(failCode, "The card security code is invalid.", detail)
	case "incorrect_number", "invalid_number":
		return NewGatewayError(failCode, "The card number is invalid.", detail)
	case "processing_error":
		return NewUnavailableError(failCode, "An error occurred while processing your card. Please try again.", detail)
	case "authentication_required":
		return NewGatewayError(failCode, "This payment requires additional authentication.", detail)
	default:
		return NewGatewayError(failCode, "Payment could not be processed.", detail)
	}
}

func headerValue(headers map[string]string, key string) string {
	if v, ok := headers[key]; ok {
		return v
	}
	// Header maps from different transports disagree on casing.
	lower := strings.ToLower(key)
	for k, v := range headers {
		if strings.ToLower(k) == lower {
			return v
		}
	}
	return ""
}
