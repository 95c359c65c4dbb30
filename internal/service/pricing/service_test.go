package pricing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/clinic-desk/internal/model"
	"github.com/jwalitptl/clinic-desk/internal/repository"
	"github.com/jwalitptl/clinic-desk/internal/repository/memory"
	"github.com/jwalitptl/clinic-desk/internal/service"
	"github.com/jwalitptl/clinic-desk/pkg/metrics"
)

func money(s string) *model.Money {
	m := model.MustMoney(s)
	return &m
}

func newTestService() (*Service, *memory.Store) {
	store := memory.NewStore()
	return NewService(store, cache.New(time.Minute, time.Minute), metrics.New("test")), store
}

func TestResolvePrice(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService()
	selfPay := store.AddTier("Self-Pay")
	insurance := store.AddTier("Insurance")
	med := store.AddCatalogItem(model.ItemTypeMedication, "Paracetamol 500mg", money("10.00"))

	t.Run("tier assigned without override falls back to base", func(t *testing.T) {
		res, err := svc.ResolvePrice(ctx, model.ItemTypeMedication, med.ID, &selfPay.ID)
		require.NoError(t, err)
		assert.Equal(t, model.MustMoney("10.00"), res.Price)
		assert.Equal(t, model.PriceSourceBase, res.Source)
		assert.Empty(t, res.Warning)
	})

	t.Run("no tier warns", func(t *testing.T) {
		res, err := svc.ResolvePrice(ctx, model.ItemTypeMedication, med.ID, nil)
		require.NoError(t, err)
		assert.Equal(t, model.MustMoney("10.00"), res.Price)
		assert.Equal(t, model.PriceSourceBase, res.Source)
		assert.Equal(t, model.TierWarningNoTierAssigned, res.Warning)
	})

	t.Run("override applies to its tier only", func(t *testing.T) {
		require.NoError(t, svc.SetOverride(ctx, model.ItemTypeMedication, med.ID, insurance.ID, model.MustMoney("7.50")))

		res, err := svc.ResolvePrice(ctx, model.ItemTypeMedication, med.ID, &insurance.ID)
		require.NoError(t, err)
		assert.Equal(t, model.MustMoney("7.50"), res.Price)
		assert.Equal(t, model.PriceSourceTier, res.Source)

		res, err = svc.ResolvePrice(ctx, model.ItemTypeMedication, med.ID, &selfPay.ID)
		require.NoError(t, err)
		assert.Equal(t, model.MustMoney("10.00"), res.Price)
		assert.Equal(t, model.PriceSourceBase, res.Source)
	})

	t.Run("removing override invalidates cached resolution", func(t *testing.T) {
		require.NoError(t, svc.RemoveOverride(ctx, model.ItemTypeMedication, med.ID, insurance.ID))

		res, err := svc.ResolvePrice(ctx, model.ItemTypeMedication, med.ID, &insurance.ID)
		require.NoError(t, err)
		assert.Equal(t, model.MustMoney("10.00"), res.Price)
		assert.Equal(t, model.PriceSourceBase, res.Source)
	})
}

func TestResolvePriceUndefinedBase(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService()
	tier := store.AddTier("Corporate")
	item := store.AddCatalogItem(model.ItemTypeService, "Dressing", nil)
	free := store.AddCatalogItem(model.ItemTypeService, "Advice", money("0"))

	_, err := svc.ResolvePrice(ctx, model.ItemTypeService, item.ID, &tier.ID)
	assert.ErrorIs(t, err, service.ErrPriceUndefined)

	res, err := svc.ResolvePrice(ctx, model.ItemTypeService, free.ID, &tier.ID)
	require.NoError(t, err)
	assert.Equal(t, model.Money(0), res.Price)
}

func TestResolvePriceUnknownItem(t *testing.T) {
	svc, _ := newTestService()
	_, err := svc.ResolvePrice(context.Background(), model.ItemTypeMedication, uuid.New(), nil)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestResolvePriceBackendFailure(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService()
	tier := store.AddTier("Insurance")
	med := store.AddCatalogItem(model.ItemTypeMedication, "Amoxicillin", money("12.00"))
	boom := errors.New("connection reset")
	store.FailOn("pricing.override", boom)

	_, err := svc.ResolvePrice(ctx, model.ItemTypeMedication, med.ID, &tier.ID)
	assert.ErrorIs(t, err, boom)
}

func TestSetOverrideValidation(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService()
	tier := store.AddTier("Insurance")
	med := store.AddCatalogItem(model.ItemTypeMedication, "Amoxicillin", money("12.00"))

	assert.Error(t, svc.SetOverride(ctx, model.ItemTypeMedication, med.ID, tier.ID, model.MustMoney("-1")))
	assert.ErrorIs(t, svc.SetOverride(ctx, model.ItemTypeMedication, med.ID, uuid.New(), model.MustMoney("1")), repository.ErrNotFound)
	assert.ErrorIs(t, svc.SetOverride(ctx, model.ItemTypeService, med.ID, tier.ID, model.MustMoney("1")), repository.ErrNotFound)
	assert.ErrorIs(t, svc.RemoveOverride(ctx, model.ItemTypeMedication, med.ID, tier.ID), repository.ErrNotFound)

	require.NoError(t, svc.SetOverride(ctx, model.ItemTypeMedication, med.ID, tier.ID, model.MustMoney("9.90")))
	logs := store.AuditLogs()
	require.Len(t, logs, 1)
	assert.Equal(t, model.AuditEntityPricing, logs[0].EntityType)
}
