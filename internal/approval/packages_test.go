package approval

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPackageSet(t *testing.T) {
	pkgs := Packages()
	require.Len(t, pkgs, 3)

	assert.Equal(t, "1_day", pkgs[0].ID)
	assert.Equal(t, 10, pkgs[0].PriceBDT)
	assert.Equal(t, "7_days", pkgs[1].ID)
	assert.Equal(t, 30, pkgs[1].PriceBDT)
	assert.Equal(t, "30_days", pkgs[2].ID)
	assert.Equal(t, 100, pkgs[2].PriceBDT)
}

func TestPackageByID(t *testing.T) {
	p, ok := PackageByID("7_days")
	require.True(t, ok)
	assert.Equal(t, 7, p.Days)

	// Lookup normalizes case and whitespace.
	p, ok = PackageByID("  30_DAYS ")
	require.True(t, ok)
	assert.Equal(t, 30, p.Days)

	_, ok = PackageByID("2_weeks")
	assert.False(t, ok)
}

func TestPackageExpiry(t *testing.T) {
	p, ok := PackageByID("1_day")
	require.True(t, ok)

	start := time.Date(2025, 6, 22, 13, 0, 0, 0, time.UTC)
	assert.Equal(t, start.Add(24*time.Hour), p.ExpiryFrom(start))
}

func TestPackageProfileMatchesID(t *testing.T) {
	for _, p := range Packages() {
		assert.Equal(t, p.ID, p.Profile())
	}
}
