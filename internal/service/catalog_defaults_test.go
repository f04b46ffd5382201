package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/campus-timetable-api/internal/models"
	"github.com/noah-isme/campus-timetable-api/internal/scheduler"
)

func TestWorkingDaysCatalogFillsMissingDays(t *testing.T) {
	catalog := smallCatalog()
	catalog.Days = nil
	source := NewWorkingDaysCatalog(&stubCatalogReader{catalog: catalog}, []string{"wed", "Monday"})

	loaded, err := source.LoadCatalog(context.Background(), models.CatalogFilter{})
	require.NoError(t, err)
	assert.Equal(t, []models.Weekday{models.Monday, models.Wednesday}, loaded.WorkingDays())
}

func TestWorkingDaysCatalogKeepsSourceDays(t *testing.T) {
	source := NewWorkingDaysCatalog(&stubCatalogReader{catalog: smallCatalog()}, []string{"Friday"})

	loaded, err := source.LoadCatalog(context.Background(), models.CatalogFilter{})
	require.NoError(t, err)
	assert.Equal(t, []models.Weekday{models.Monday, models.Tuesday}, loaded.Days)
}

func TestWorkingDaysCatalogSurfacesUnknownDays(t *testing.T) {
	catalog := smallCatalog()
	catalog.Days = nil
	source := NewWorkingDaysCatalog(&stubCatalogReader{catalog: catalog}, []string{"Monday", "Mondy"})

	loaded, err := source.LoadCatalog(context.Background(), models.CatalogFilter{})
	require.NoError(t, err)
	_, _, err = scheduler.Validate(loaded)
	var vErr *scheduler.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Contains(t, vErr.Issues, `unknown working day "Mondy"`)
}
