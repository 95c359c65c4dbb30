package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/clinic-desk/internal/model"
	"github.com/jwalitptl/clinic-desk/internal/repository"
)

// catalogTables maps an item type to its catalogue table, the override
// table and the override table's item column.
var catalogTables = map[model.ItemType]struct {
	catalog, pricing, itemColumn, unit string
}{
	model.ItemTypeMedication: {"medications", "medication_pricing", "medication_id", "unit"},
	model.ItemTypeService:    {"services", "service_pricing", "service_id", "NULL"},
}

type pricingRepository struct {
	BaseRepository
}

func NewPricingRepository(base BaseRepository) repository.PricingRepository {
	return &pricingRepository{base}
}

func (r *pricingRepository) ListTiers(ctx context.Context) ([]*model.PriceTier, error) {
	query := `SELECT id, name, active FROM price_tiers ORDER BY name ASC`

	var tiers []*model.PriceTier
	if err := sqlx.SelectContext(ctx, r.db, &tiers, query); err != nil {
		return nil, mapError(err, "list price tiers")
	}
	return tiers, nil
}

func (r *pricingRepository) GetTier(ctx context.Context, id uuid.UUID) (*model.PriceTier, error) {
	query := `SELECT id, name, active FROM price_tiers WHERE id = $1`

	var tier model.PriceTier
	if err := sqlx.GetContext(ctx, r.db, &tier, query, id); err != nil {
		return nil, mapError(err, "get price tier")
	}
	return &tier, nil
}

func (r *pricingRepository) GetCatalogItem(ctx context.Context, itemType model.ItemType, id uuid.UUID) (*model.CatalogItem, error) {
	t, ok := catalogTables[itemType]
	if !ok {
		return nil, fmt.Errorf("unknown item type %q", itemType)
	}
	query := fmt.Sprintf(
		`SELECT id, $2::text AS item_type, name, %s AS unit, base_price FROM %s WHERE id = $1`,
		t.unit, t.catalog,
	)

	var item model.CatalogItem
	if err := sqlx.GetContext(ctx, r.db, &item, query, id, string(itemType)); err != nil {
		return nil, mapError(err, "get catalog item")
	}
	return &item, nil
}

func (r *pricingRepository) GetOverride(ctx context.Context, itemType model.ItemType, itemID, tierID uuid.UUID) (model.Money, error) {
	t, ok := catalogTables[itemType]
	if !ok {
		return 0, fmt.Errorf("unknown item type %q", itemType)
	}
	query := fmt.Sprintf(`SELECT price FROM %s WHERE %s = $1 AND tier_id = $2`, t.pricing, t.itemColumn)

	var price model.Money
	if err := sqlx.GetContext(ctx, r.db, &price, query, itemID, tierID); err != nil {
		return 0, mapError(err, "get tier price")
	}
	return price, nil
}

func (r *pricingRepository) UpsertOverride(ctx context.Context, itemType model.ItemType, itemID, tierID uuid.UUID, price model.Money) error {
	t, ok := catalogTables[itemType]
	if !ok {
		return fmt.Errorf("unknown item type %q", itemType)
	}
	query := fmt.Sprintf(`
		INSERT INTO %[1]s (%[2]s, tier_id, price, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (%[2]s, tier_id) DO UPDATE
		SET price = EXCLUDED.price, updated_at = NOW()
	`, t.pricing, t.itemColumn)

	_, err := r.db.ExecContext(ctx, query, itemID, tierID, price)
	return mapError(err, "set tier price")
}

func (r *pricingRepository) DeleteOverride(ctx context.Context, itemType model.ItemType, itemID, tierID uuid.UUID) error {
	t, ok := catalogTables[itemType]
	if !ok {
		return fmt.Errorf("unknown item type %q", itemType)
	}
	query := fmt.Sprintf(`DELETE FROM %s WHERE %s = $1 AND tier_id = $2`, t.pricing, t.itemColumn)

	res, err := r.db.ExecContext(ctx, query, itemID, tierID)
	if err != nil {
		return mapError(err, "remove tier price")
	}
	return affected(res, "tier price")
}
