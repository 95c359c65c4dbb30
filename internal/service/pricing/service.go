package pricing

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"github.com/jwalitptl/clinic-desk/internal/model"
	"github.com/jwalitptl/clinic-desk/internal/repository"
	"github.com/jwalitptl/clinic-desk/internal/service"
	"github.com/jwalitptl/clinic-desk/internal/service/audit"
	"github.com/jwalitptl/clinic-desk/pkg/metrics"
)

type PricingService interface {
	ResolvePrice(ctx context.Context, itemType model.ItemType, itemID uuid.UUID, tierID *uuid.UUID) (*model.PriceResolution, error)
	ListTiers(ctx context.Context) ([]*model.PriceTier, error)
	GetTier(ctx context.Context, id uuid.UUID) (*model.PriceTier, error)
	SetOverride(ctx context.Context, itemType model.ItemType, itemID, tierID uuid.UUID, price model.Money) error
	RemoveOverride(ctx context.Context, itemType model.ItemType, itemID, tierID uuid.UUID) error
}

type Service struct {
	store   repository.Store
	cache   *cache.Cache
	metrics *metrics.Metrics
}

// NewService caches resolutions in c. Pass nil metrics to skip counting.
func NewService(store repository.Store, c *cache.Cache, m *metrics.Metrics) *Service {
	return &Service{store: store, cache: c, metrics: m}
}

func cacheKey(itemType model.ItemType, itemID uuid.UUID, tierID *uuid.UUID) string {
	tier := "none"
	if tierID != nil {
		tier = tierID.String()
	}
	return fmt.Sprintf("%s:%s:%s", itemType, itemID, tier)
}

// ResolvePrice applies the tier override if one exists and falls back to
// the item's base price otherwise.
func (s *Service) ResolvePrice(ctx context.Context, itemType model.ItemType, itemID uuid.UUID, tierID *uuid.UUID) (*model.PriceResolution, error) {
	if !itemType.Valid() {
		return nil, fmt.Errorf("unknown item type %q: %w", itemType, service.ErrInvalidInput)
	}

	key := cacheKey(itemType, itemID, tierID)
	if cached, ok := s.cache.Get(key); ok {
		s.count("hit")
		res := cached.(model.PriceResolution)
		return &res, nil
	}
	s.count("miss")

	res, err := s.resolve(ctx, itemType, itemID, tierID)
	if err != nil {
		return nil, err
	}
	s.cache.SetDefault(key, *res)
	return res, nil
}

func (s *Service) resolve(ctx context.Context, itemType model.ItemType, itemID uuid.UUID, tierID *uuid.UUID) (*model.PriceResolution, error) {
	repo := s.store.Repos().Pricing
	res := &model.PriceResolution{ItemID: itemID, ItemType: itemType, TierID: tierID}

	if tierID != nil {
		price, err := repo.GetOverride(ctx, itemType, itemID, *tierID)
		switch {
		case err == nil:
			res.Price, res.Source = price, model.PriceSourceTier
			return res, nil
		case !errors.Is(err, repository.ErrNotFound):
			return nil, fmt.Errorf("failed to get tier price: %w", err)
		}
	} else {
		res.Warning = model.TierWarningNoTierAssigned
	}

	item, err := repo.GetCatalogItem(ctx, itemType, itemID)
	if err != nil {
		return nil, fmt.Errorf("failed to get %s: %w", itemType, err)
	}
	if item.BasePrice == nil {
		return nil, fmt.Errorf("%s %q: %w", itemType, item.Name, service.ErrPriceUndefined)
	}
	res.Price, res.Source = *item.BasePrice, model.PriceSourceBase
	return res, nil
}

func (s *Service) ListTiers(ctx context.Context) ([]*model.PriceTier, error) {
	tiers, err := s.store.Repos().Pricing.ListTiers(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list tiers: %w", err)
	}
	return tiers, nil
}

func (s *Service) GetTier(ctx context.Context, id uuid.UUID) (*model.PriceTier, error) {
	tier, err := s.store.Repos().Pricing.GetTier(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get tier: %w", err)
	}
	return tier, nil
}

func (s *Service) SetOverride(ctx context.Context, itemType model.ItemType, itemID, tierID uuid.UUID, price model.Money) error {
	if price < 0 {
		return fmt.Errorf("price must not be negative: %w", service.ErrInvalidInput)
	}
	err := s.store.WithTx(ctx, func(r repository.Repositories) error {
		if _, err := r.Pricing.GetCatalogItem(ctx, itemType, itemID); err != nil {
			return fmt.Errorf("failed to get %s: %w", itemType, err)
		}
		if _, err := r.Pricing.GetTier(ctx, tierID); err != nil {
			return fmt.Errorf("failed to get tier: %w", err)
		}
		if err := r.Pricing.UpsertOverride(ctx, itemType, itemID, tierID, price); err != nil {
			return fmt.Errorf("failed to set tier price: %w", err)
		}
		return audit.Record(ctx, r.Audit, model.AuditActionUpdate, model.AuditEntityPricing, itemID, map[string]interface{}{
			"tier_id": tierID,
			"price":   price,
		})
	})
	if err != nil {
		return err
	}
	s.invalidate(itemType, itemID, tierID)
	return nil
}

func (s *Service) RemoveOverride(ctx context.Context, itemType model.ItemType, itemID, tierID uuid.UUID) error {
	err := s.store.WithTx(ctx, func(r repository.Repositories) error {
		if err := r.Pricing.DeleteOverride(ctx, itemType, itemID, tierID); err != nil {
			return fmt.Errorf("failed to remove tier price: %w", err)
		}
		return audit.Record(ctx, r.Audit, model.AuditActionUpdate, model.AuditEntityPricing, itemID, map[string]interface{}{
			"tier_id": tierID,
			"removed": true,
		})
	})
	if err != nil {
		return err
	}
	s.invalidate(itemType, itemID, tierID)
	return nil
}

func (s *Service) invalidate(itemType model.ItemType, itemID, tierID uuid.UUID) {
	s.cache.Delete(cacheKey(itemType, itemID, &tierID))
}

func (s *Service) count(result string) {
	if s.metrics != nil {
		s.metrics.PriceLookups.WithLabelValues(result).Inc()
	}
}
