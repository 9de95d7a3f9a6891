// Package billing reads subscription state and the product catalogue from
// Stripe. Customers are linked to users through metadata.externalId.
package billing

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/stripe/stripe-go/v84"
)

var ErrProductNotFound = errors.New("product not found")

type Options struct {
	SecretKey string
	// BaseURL overrides the Stripe API endpoint.
	BaseURL    string
	HTTPClient *http.Client
}

type Client struct {
	sc *stripe.Client
}

func New(opts Options) (*Client, error) {
	key := strings.TrimSpace(opts.SecretKey)
	if key == "" {
		return nil, errors.New("billing: stripe secret key is required")
	}
	var clientOpts []stripe.ClientOption
	if opts.BaseURL != "" || opts.HTTPClient != nil {
		cfg := &stripe.BackendConfig{HTTPClient: opts.HTTPClient}
		if opts.BaseURL != "" {
			cfg.URL = stripe.String(strings.TrimRight(opts.BaseURL, "/"))
		}
		clientOpts = append(clientOpts, stripe.WithBackends(stripe.NewBackendsWithConfig(cfg)))
	}
	return &Client{sc: stripe.NewClient(key, clientOpts...)}, nil
}

type Subscription struct {
	ID        string `json:"id"`
	ProductID string `json:"productId"`
	Status    string `json:"status"`
}

type Product struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Active      bool   `json:"active"`
	PriceID     string `json:"priceId,omitempty"`
	PriceAmount int64  `json:"priceAmount"`
	Currency    string `json:"currency,omitempty"`
	Interval    string `json:"interval,omitempty"`
}

// ActiveSubscription returns the user's first active subscription, or nil
// when the user has no customer record or no active subscription.
func (c *Client) ActiveSubscription(ctx context.Context, externalID string) (*Subscription, error) {
	customerID, err := c.customerID(ctx, externalID)
	if err != nil || customerID == "" {
		return nil, err
	}

	params := &stripe.SubscriptionListParams{
		Customer: stripe.String(customerID),
		Status:   stripe.String(string(stripe.SubscriptionStatusActive)),
	}
	params.Limit = stripe.Int64(1)
	for sub, err := range c.sc.V1Subscriptions.List(ctx, params) {
		if err != nil {
			return nil, fmt.Errorf("billing: list subscriptions: %w", err)
		}
		return subscriptionFrom(sub), nil
	}
	return nil, nil
}

func (c *Client) Product(ctx context.Context, id string) (*Product, error) {
	p, err := c.sc.V1Products.Retrieve(ctx, id, nil)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.HTTPStatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("billing: product %s: %w", id, ErrProductNotFound)
		}
		return nil, fmt.Errorf("billing: retrieve product %s: %w", id, err)
	}
	out := productFrom(p)
	return &out, nil
}

// Products lists active products with a recurring price, cheapest first.
func (c *Client) Products(ctx context.Context) ([]Product, error) {
	params := &stripe.PriceListParams{
		Active: stripe.Bool(true),
		Type:   stripe.String(string(stripe.PriceTypeRecurring)),
	}
	params.Limit = stripe.Int64(100)
	params.AddExpand("data.product")

	var prices []*stripe.Price
	for price, err := range c.sc.V1Prices.List(ctx, params) {
		if err != nil {
			return nil, fmt.Errorf("billing: list prices: %w", err)
		}
		prices = append(prices, price)
	}
	return catalogue(prices), nil
}

func (c *Client) customerID(ctx context.Context, externalID string) (string, error) {
	if strings.TrimSpace(externalID) == "" {
		return "", errors.New("billing: external id is required")
	}
	params := &stripe.CustomerSearchParams{
		SearchParams: stripe.SearchParams{Query: customerQuery(externalID)},
	}
	for cust, err := range c.sc.V1Customers.Search(ctx, params) {
		if err != nil {
			return "", fmt.Errorf("billing: search customers: %w", err)
		}
		return cust.ID, nil
	}
	return "", nil
}

// customerQuery builds a search query matching metadata.externalId exactly.
func customerQuery(externalID string) string {
	escaped := strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(externalID)
	return "metadata['externalId']:'" + escaped + "'"
}

func subscriptionFrom(sub *stripe.Subscription) *Subscription {
	out := &Subscription{ID: sub.ID, Status: string(sub.Status)}
	if sub.Items != nil {
		for _, item := range sub.Items.Data {
			if item != nil && item.Price != nil && item.Price.Product != nil {
				out.ProductID = item.Price.Product.ID
				break
			}
		}
	}
	return out
}

func productFrom(p *stripe.Product) Product {
	out := Product{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Active:      p.Active,
	}
	if p.DefaultPrice != nil {
		applyPrice(&out, p.DefaultPrice)
	}
	return out
}

func applyPrice(out *Product, price *stripe.Price) {
	out.PriceID = price.ID
	out.PriceAmount = price.UnitAmount
	out.Currency = string(price.Currency)
	if price.Recurring != nil {
		out.Interval = string(price.Recurring.Interval)
	}
}

// catalogue folds prices into one entry per active product, keeping the
// cheapest price, sorted by amount then name.
func catalogue(prices []*stripe.Price) []Product {
	byID := make(map[string]Product)
	for _, price := range prices {
		if price == nil || price.Product == nil || price.Product.ID == "" {
			continue
		}
		if price.Product.Deleted || !price.Product.Active {
			continue
		}
		if existing, ok := byID[price.Product.ID]; ok && existing.PriceAmount <= price.UnitAmount {
			continue
		}
		p := Product{
			ID:          price.Product.ID,
			Name:        price.Product.Name,
			Description: price.Product.Description,
			Active:      price.Product.Active,
		}
		applyPrice(&p, price)
		byID[p.ID] = p
	}

	out := make([]Product, 0, len(byID))
	for _, p := range byID {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].PriceAmount != out[j].PriceAmount {
			return out[i].PriceAmount < out[j].PriceAmount
		}
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out
}
