package city

import "fmt"

// DefaultDemolitionCost is charged for clearing an occupied tile.
const DefaultDemolitionCost = 20

// BuildingConfig holds the static cost and yields of one building type.
type BuildingConfig struct {
	Cost          int `json:"cost" yaml:"cost"`
	PopGen        int `json:"popGen" yaml:"pop_gen"`
	IncomeGen     int `json:"incomeGen" yaml:"income_gen"`
	MaxPopPerUnit int `json:"maxPopPerUnit,omitempty" yaml:"max_pop_per_unit"` // Residential only
}

// Catalog is the process-wide building table. Build it once and treat it as read-only.
type Catalog struct {
	configs        [len(buildingNames)]BuildingConfig
	DemolitionCost int
}

// DefaultCatalog returns the reference building table.
func DefaultCatalog() *Catalog {
	c := &Catalog{DemolitionCost: DefaultDemolitionCost}
	c.configs[Road] = BuildingConfig{Cost: 10}
	c.configs[Residential] = BuildingConfig{Cost: 100, PopGen: 5, MaxPopPerUnit: 50}
	c.configs[Commercial] = BuildingConfig{Cost: 200, IncomeGen: 15}
	c.configs[Industrial] = BuildingConfig{Cost: 400, IncomeGen: 30}
	c.configs[Park] = BuildingConfig{Cost: 50, PopGen: 1}
	return c
}

// NewCatalog builds a catalog from per-type configs. Types missing from the
// map get a zero config; None is always zero.
func NewCatalog(configs map[BuildingType]BuildingConfig, demolitionCost int) (*Catalog, error) {
	c := &Catalog{DemolitionCost: demolitionCost}
	for b, cfg := range configs {
		if !b.Valid() {
			return nil, fmt.Errorf("catalog: invalid building type %d", uint8(b))
		}
		if b == None {
			continue
		}
		c.configs[b] = cfg
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks every value is non-negative and only Residential houses people.
func (c *Catalog) Validate() error {
	if c.DemolitionCost < 0 {
		return fmt.Errorf("catalog: demolition cost %d is negative", c.DemolitionCost)
	}
	for _, b := range PlaceableTypes {
		cfg := c.configs[b]
		if cfg.Cost < 0 || cfg.PopGen < 0 || cfg.IncomeGen < 0 || cfg.MaxPopPerUnit < 0 {
			return fmt.Errorf("catalog: %s has a negative value", b)
		}
		if b != Residential && cfg.MaxPopPerUnit != 0 {
			return fmt.Errorf("catalog: max_pop_per_unit is only meaningful for residential, got it on %s", b)
		}
	}
	return nil
}

// Config returns the static config for a building type.
func (c *Catalog) Config(b BuildingType) BuildingConfig {
	if !b.Valid() {
		return BuildingConfig{}
	}
	return c.configs[b]
}

// MaxPopPerUnit is the housing capacity of one Residential tile.
func (c *Catalog) MaxPopPerUnit() int {
	return c.configs[Residential].MaxPopPerUnit
}

// Costs returns the price list used by the goal request and the catalog endpoint.
func (c *Catalog) Costs() map[BuildingType]int {
	costs := make(map[BuildingType]int, len(PlaceableTypes))
	for _, b := range PlaceableTypes {
		costs[b] = c.configs[b].Cost
	}
	return costs
}

// CanAfford reports whether money covers the given action. None means demolish
// and is compared against the demolition cost.
func (c *Catalog) CanAfford(money int, b BuildingType) bool {
	if b == None {
		return money >= c.DemolitionCost
	}
	return money >= c.Config(b).Cost
}

// PriceOf returns what the action costs. None is the demolition cost.
func (c *Catalog) PriceOf(b BuildingType) int {
	if b == None {
		return c.DemolitionCost
	}
	return c.Config(b).Cost
}
