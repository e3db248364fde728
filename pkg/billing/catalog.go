package billing

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// MemoryCatalog is an immutable PlanCatalog held in memory.
type MemoryCatalog struct {
	plans map[string]Plan
}

// NewMemoryCatalog validates and indexes the plans.
func NewMemoryCatalog(plans ...Plan) (*MemoryCatalog, error) {
	c := &MemoryCatalog{plans: make(map[string]Plan, len(plans))}
	for _, p := range plans {
		if err := p.Validate(); err != nil {
			return nil, err
		}
		if _, dup := c.plans[p.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate plan id %s", ErrInvalidPlan, p.ID)
		}
		c.plans[p.ID] = p
	}
	return c, nil
}

// GetPlan implements PlanCatalog.
func (c *MemoryCatalog) GetPlan(_ context.Context, id string) (*Plan, error) {
	p, ok := c.plans[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPlanNotFound, id)
	}
	return &p, nil
}

// ListPlans implements PlanCatalog. Plans are ordered by price, then id.
func (c *MemoryCatalog) ListPlans(context.Context) ([]Plan, error) {
	out := make([]Plan, 0, len(c.plans))
	for _, p := range c.plans {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if cmp := out[i].Price.Cmp(out[j].Price); cmp != 0 {
			return cmp < 0
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// catalogFile is the on-disk layout. Money is written as strings so no float
// parsing is involved.
type catalogFile struct {
	Plans []struct {
		ID            string `yaml:"id"`
		Name          string `yaml:"name"`
		Currency      string `yaml:"currency"`
		Price         string `yaml:"price"`
		DurationDays  int    `yaml:"duration_days"`
		OfferMonths   int    `yaml:"offer_months"`
		OfferDiscount string `yaml:"offer_discount"`
	} `yaml:"plans"`
}

// ParseCatalog decodes a YAML plan catalog.
//
//	plans:
//	  - id: basic
//	    name: Basic
//	    price: "50"
//	    duration_days: 30
//	    offer_months: 12
//	    offer_discount: "20"
func ParseCatalog(data []byte) (*MemoryCatalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPlan, err)
	}

	plans := make([]Plan, 0, len(f.Plans))
	for _, raw := range f.Plans {
		price, err := decimal.NewFromString(strings.TrimSpace(raw.Price))
		if err != nil {
			return nil, fmt.Errorf("%w: plan %s price %q", ErrInvalidPlan, raw.ID, raw.Price)
		}
		discount := decimal.Zero
		if s := strings.TrimSpace(raw.OfferDiscount); s != "" {
			if discount, err = decimal.NewFromString(s); err != nil {
				return nil, fmt.Errorf("%w: plan %s discount %q", ErrInvalidPlan, raw.ID, raw.OfferDiscount)
			}
		}
		plans = append(plans, Plan{
			ID:            raw.ID,
			Name:          raw.Name,
			Currency:      strings.ToLower(raw.Currency),
			Price:         price,
			DurationDays:  raw.DurationDays,
			OfferMonths:   raw.OfferMonths,
			OfferDiscount: discount,
		})
	}
	return NewMemoryCatalog(plans...)
}

// LoadCatalogFile reads a YAML plan catalog from disk.
func LoadCatalogFile(path string) (*MemoryCatalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plan catalog: %w", err)
	}
	return ParseCatalog(data)
}
