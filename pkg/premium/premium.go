// Package premium answers subscription and free-tier usage questions for a
// signed-in user.
package premium

import (
	"context"
	"errors"
	"fmt"

	"github.com/Sahoo999/meeting-ai/pkg/billing"
	"github.com/Sahoo999/meeting-ai/pkg/meetings"
	"golang.org/x/sync/errgroup"
)

type Billing interface {
	ActiveSubscription(ctx context.Context, externalID string) (*billing.Subscription, error)
	Product(ctx context.Context, id string) (*billing.Product, error)
	Products(ctx context.Context) ([]billing.Product, error)
}

type Usage struct {
	MeetingCount int `json:"meetingCount"`
	AgentCount   int `json:"agentCount"`
}

type Service struct {
	Billing Billing
	Usage   meetings.UsageCounter
}

// CurrentSubscription returns the product behind the user's first active
// subscription, or nil when there is none.
func (s *Service) CurrentSubscription(ctx context.Context, userID string) (*billing.Product, error) {
	sub, err := s.Billing.ActiveSubscription(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("current subscription: %w", err)
	}
	if sub == nil || sub.ProductID == "" {
		return nil, nil
	}
	p, err := s.Billing.Product(ctx, sub.ProductID)
	if err != nil {
		if errors.Is(err, billing.ErrProductNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("current subscription: %w", err)
	}
	return p, nil
}

func (s *Service) Products(ctx context.Context) ([]billing.Product, error) {
	products, err := s.Billing.Products(ctx)
	if err != nil {
		return nil, fmt.Errorf("products: %w", err)
	}
	if products == nil {
		products = []billing.Product{}
	}
	return products, nil
}

// FreeUsage returns nil for subscribed users and the user's meeting and agent
// counts otherwise.
func (s *Service) FreeUsage(ctx context.Context, userID string) (*Usage, error) {
	sub, err := s.Billing.ActiveSubscription(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("free usage: %w", err)
	}
	if sub != nil {
		return nil, nil
	}

	var usage Usage
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, err := s.Usage.CountMeetings(gctx, userID)
		if err != nil {
			return fmt.Errorf("count meetings: %w", err)
		}
		usage.MeetingCount = n
		return nil
	})
	g.Go(func() error {
		n, err := s.Usage.CountAgents(gctx, userID)
		if err != nil {
			return fmt.Errorf("count agents: %w", err)
		}
		usage.AgentCount = n
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("free usage: %w", err)
	}
	return &usage, nil
}
