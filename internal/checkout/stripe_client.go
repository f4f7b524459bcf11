package checkout

import (
	"context"

	"github.com/sony/gobreaker/v2"
	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/checkout/session"

	pkgstripe "github.com/gracechapelhq/gracechapel-backend/pkg/stripe"
)

// SessionClient exposes the subset of provider operations the checkout
// service needs, so it can be stubbed in tests.
type SessionClient interface {
	CreateSession(ctx context.Context, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

// breakerClient wraps the provider call in a circuit breaker with the
// client's timeout ceiling, so a failing or slow upstream sheds load fast
// instead of stalling every checkout request.
type breakerClient struct {
	api     *pkgstripe.Client
	breaker *gobreaker.CircuitBreaker[*stripe.CheckoutSession]
}

// NewSessionClient wraps the configured Stripe client.
func NewSessionClient(api *pkgstripe.Client) SessionClient {
	if api == nil {
		return nil
	}
	settings := gobreaker.Settings{
		Name: "stripe-checkout",
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	}
	return &breakerClient{
		api:     api,
		breaker: gobreaker.NewCircuitBreaker[*stripe.CheckoutSession](settings),
	}
}

func (c *breakerClient) CreateSession(ctx context.Context, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	callCtx, cancel := c.api.CallContext(ctx)
	defer cancel()

	if params != nil {
		params.Context = callCtx
	}
	return c.breaker.Execute(func() (*stripe.CheckoutSession, error) {
		return session.New(params)
	})
}
