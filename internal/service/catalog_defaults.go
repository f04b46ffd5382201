package service

import (
	"context"

	"github.com/noah-isme/campus-timetable-api/internal/models"
)

// WorkingDaysCatalog fills in the configured working days when the catalog source has none.
type WorkingDaysCatalog struct {
	source catalogReader
	days   []models.Weekday
}

// NewWorkingDaysCatalog decorates source with default working days. Names are passed through
// unparsed so that validation reports misspelt days instead of silently shrinking the week.
func NewWorkingDaysCatalog(source catalogReader, days []string) *WorkingDaysCatalog {
	names := make([]models.Weekday, 0, len(days))
	for _, raw := range days {
		names = append(names, models.Weekday(raw))
	}
	return &WorkingDaysCatalog{source: source, days: names}
}

// LoadCatalog delegates to the wrapped source.
func (c *WorkingDaysCatalog) LoadCatalog(ctx context.Context, filter models.CatalogFilter) (models.Catalog, error) {
	catalog, err := c.source.LoadCatalog(ctx, filter)
	if err != nil {
		return models.Catalog{}, err
	}
	if len(catalog.Days) == 0 && len(c.days) > 0 {
		catalog.Days = append([]models.Weekday(nil), c.days...)
	}
	return catalog, nil
}
