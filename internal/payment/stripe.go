package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"

	"github.com/wichananm65/smart-cart-backend/internal/address"
)

const (
	metadataUserID     = "userId"
	metadataProductID  = "productId"
	metadataProductIDs = "productIds"

	EventSessionCompleted    = "checkout.session.completed"
	EventAsyncPaymentSucceed = "checkout.session.async_payment_succeeded"
)

// StripeProvider implements Provider and CallbackParser on Stripe Checkout
// sessions. The API client is owned by the provider instead of the package
// level stripe.Key.
type StripeProvider struct {
	api           *client.API
	webhookSecret string
}

type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	Timeout       time.Duration
	// BaseURL overrides the API endpoint, used by tests.
	BaseURL string
}

func NewStripeProvider(cfg StripeConfig) *StripeProvider {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	backendCfg := &stripe.BackendConfig{
		HTTPClient:        &http.Client{Timeout: timeout},
		MaxNetworkRetries: stripe.Int64(0),
		LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelError},
	}
	if cfg.BaseURL != "" {
		backendCfg.URL = stripe.String(cfg.BaseURL)
	}
	backend := stripe.GetBackendWithConfig(stripe.APIBackend, backendCfg)
	backends := &stripe.Backends{API: backend, Connect: backend, Uploads: backend}

	return &StripeProvider{
		api:           client.New(cfg.SecretKey, backends),
		webhookSecret: cfg.WebhookSecret,
	}
}

func (p *StripeProvider) CreateSession(ctx context.Context, req SessionRequest) (Session, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(req.SuccessURL),
		CancelURL:         stripe.String(req.CancelURL),
		ClientReferenceID: stripe.String(strconv.Itoa(req.UserID)),
		ShippingAddressCollection: &stripe.CheckoutSessionShippingAddressCollectionParams{
			AllowedCountries: stripe.StringSlice(req.AllowedCountries),
		},
		PhoneNumberCollection: &stripe.CheckoutSessionPhoneNumberCollectionParams{
			Enabled: stripe.Bool(true),
		},
		ShippingOptions: []*stripe.CheckoutSessionShippingOptionParams{{
			ShippingRateData: &stripe.CheckoutSessionShippingOptionShippingRateDataParams{
				Type:        stripe.String("fixed_amount"),
				DisplayName: stripe.String("Shipping & handling"),
				FixedAmount: &stripe.CheckoutSessionShippingOptionShippingRateDataFixedAmountParams{
					Amount:   stripe.Int64(req.Surcharge),
					Currency: stripe.String(req.Currency),
				},
			},
		}},
	}
	if req.Email != "" {
		params.CustomerEmail = stripe.String(req.Email)
	}

	ids := make([]string, 0, len(req.Lines))
	for _, l := range req.Lines {
		pid := strconv.Itoa(l.ProductID)
		ids = append(ids, pid)
		productData := &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
			Name:     stripe.String(l.Name),
			Metadata: map[string]string{metadataProductID: pid},
		}
		if l.ImageURL != "" {
			productData.Images = stripe.StringSlice([]string{l.ImageURL})
		}
		params.LineItems = append(params.LineItems, &stripe.CheckoutSessionLineItemParams{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:    stripe.String(req.Currency),
				UnitAmount:  stripe.Int64(l.UnitPrice),
				ProductData: productData,
			},
			Quantity: stripe.Int64(int64(l.Quantity)),
		})
	}

	params.AddMetadata(metadataUserID, strconv.Itoa(req.UserID))
	params.AddMetadata(metadataProductIDs, strings.Join(ids, ","))
	params.AddMetadata("subtotal", strconv.FormatInt(req.Subtotal, 10))
	params.AddMetadata("surcharge", strconv.FormatInt(req.Surcharge, 10))
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}
	params.Context = ctx

	s, err := p.api.CheckoutSessions.New(params)
	if err != nil {
		return Session{}, classifyStripe(err)
	}
	return Session{ID: s.ID, RedirectURL: s.URL}, nil
}

func (p *StripeProvider) RetrieveSession(ctx context.Context, reference string) (VerifiedPayment, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	params.AddExpand("payment_intent")
	s, err := p.api.CheckoutSessions.Get(reference, params)
	if err != nil {
		return VerifiedPayment{}, classifyStripe(err)
	}

	listParams := &stripe.CheckoutSessionListLineItemsParams{Session: stripe.String(reference)}
	listParams.Context = ctx
	listParams.Limit = stripe.Int64(100)
	listParams.AddExpand("data.price.product")
	it := p.api.CheckoutSessions.ListLineItems(listParams)
	items := make([]*stripe.LineItem, 0)
	for it.Next() {
		items = append(items, it.LineItem())
	}
	if err := it.Err(); err != nil {
		return VerifiedPayment{}, classifyStripe(err)
	}

	return verifiedFromSession(s, items), nil
}

// ParseCallback checks the Stripe-Signature header and extracts the session
// reference from checkout session events.
func (p *StripeProvider) ParseCallback(payload []byte, signature string) (Callback, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, p.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return Callback{}, fmt.Errorf("%w: %v", ErrInvalidCallback, err)
	}

	cb := Callback{ID: event.ID, Type: string(event.Type)}
	if !strings.HasPrefix(cb.Type, "checkout.session.") || event.Data == nil {
		return cb, nil
	}
	var s stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &s); err != nil {
		return Callback{}, fmt.Errorf("%w: %v", ErrInvalidCallback, err)
	}
	cb.Reference = s.ID
	cb.UserID = sessionUserID(&s)
	return cb, nil
}

// verifiedFromSession maps a session and its line items. A line whose product
// carries no productId metadata keeps ProductID 0 and is rejected downstream.
func verifiedFromSession(s *stripe.CheckoutSession, items []*stripe.LineItem) VerifiedPayment {
	vp := VerifiedPayment{
		Reference:      s.ID,
		Status:         string(s.PaymentStatus),
		AmountCaptured: s.AmountTotal,
		Currency:       string(s.Currency),
		UserID:         sessionUserID(s),
	}
	if s.PaymentIntent != nil {
		vp.PaymentIntentID = s.PaymentIntent.ID
	}

	if s.ShippingDetails != nil && s.ShippingDetails.Address != nil {
		a := s.ShippingDetails.Address
		addr := address.ShippingAddress{
			FullName:        s.ShippingDetails.Name,
			AddressLine1:    a.Line1,
			AddressLine2:    a.Line2,
			City:            a.City,
			StateOrProvince: a.State,
			PostalCode:      a.PostalCode,
			Country:         a.Country,
		}
		if s.CustomerDetails != nil {
			addr.PhoneNumber = s.CustomerDetails.Phone
		}
		vp.Shipping = &addr
	}

	for _, li := range items {
		item := LineItem{Name: li.Description, Quantity: int(li.Quantity)}
		if li.Price != nil {
			item.UnitPrice = li.Price.UnitAmount
			if li.Price.Product != nil {
				if pid, err := strconv.Atoi(li.Price.Product.Metadata[metadataProductID]); err == nil {
					item.ProductID = pid
				}
				if len(li.Price.Product.Images) > 0 {
					item.ImageURL = li.Price.Product.Images[0]
				}
			}
		}
		vp.LineItems = append(vp.LineItems, item)
	}
	return vp
}

func sessionUserID(s *stripe.CheckoutSession) int {
	raw := s.ClientReferenceID
	if raw == "" {
		raw = s.Metadata[metadataUserID]
	}
	id, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return id
}

func classifyStripe(err error) error {
	var se *stripe.Error
	if errors.As(err, &se) {
		switch {
		case se.HTTPStatusCode == http.StatusNotFound, se.Code == stripe.ErrorCodeResourceMissing:
			return fmt.Errorf("%w: %s", ErrNotFound, se.Msg)
		default:
			return fmt.Errorf("%w: stripe %d %s: %s", ErrProviderUnavailable, se.HTTPStatusCode, se.Type, se.Msg)
		}
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
}
