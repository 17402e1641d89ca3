// Package approval implements the pending-activation workflow: a guest
// submits a payment proof, a disabled hotspot account is provisioned,
// and an admin decision later enables or rejects it.
package approval

import (
	"strings"
	"time"
)

// Package is a fixed-duration access tier sold through the portal.
// The ID doubles as the controller-side hotspot profile name.
type Package struct {
	ID       string
	Label    string
	Days     int
	PriceBDT int
}

// The enumerated package set. Prices are in Bangladeshi Taka, paid
// through a mobile wallet outside this system.
var packages = []Package{
	{ID: "1_day", Label: "1 Day", Days: 1, PriceBDT: 10},
	{ID: "7_days", Label: "7 Days", Days: 7, PriceBDT: 30},
	{ID: "30_days", Label: "30 Days", Days: 30, PriceBDT: 100},
}

// Packages returns the enumerated package set.
func Packages() []Package {
	out := make([]Package, len(packages))
	copy(out, packages)
	return out
}

// PackageByID looks up a package case-insensitively.
func PackageByID(id string) (Package, bool) {
	id = strings.ToLower(strings.TrimSpace(id))
	for _, p := range packages {
		if p.ID == id {
			return p, true
		}
	}
	return Package{}, false
}

// Profile returns the hotspot profile name for this package.
func (p Package) Profile() string {
	return p.ID
}

// Duration returns the access period the package buys.
func (p Package) Duration() time.Duration {
	return time.Duration(p.Days) * 24 * time.Hour
}

// ExpiryFrom computes the expiry timestamp for an approval at t.
func (p Package) ExpiryFrom(t time.Time) time.Time {
	return t.Add(p.Duration())
}
