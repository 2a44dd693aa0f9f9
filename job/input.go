package job

import (
	"fmt"
	"strings"

	"github.com/storeforge/provision"
)

// Product count bounds accepted for a single provisioning request.
const (
	MinProductCount = 5
	MaxProductCount = 50
)

// categoryAliases maps every accepted product_category value to its
// canonical catalog group. Requests may use any alias; Category() resolves
// the group the import stage actually queries.
var categoryAliases = map[string]string{
	// Phone cases.
	"phone case":  "cases",
	"phone_case":  "cases",
	"phone cases": "cases",
	"case":        "cases",
	"cases":       "cases",
	"cover":       "cases",

	// Chargers and adapters.
	"charger":  "chargers",
	"chargers": "chargers",
	"adapter":  "chargers",
	"charging": "chargers",

	// Cables.
	"cable":  "cables",
	"cables": "cables",

	// Audio.
	"airpods":    "audio",
	"earbuds":    "audio",
	"earphones":  "audio",
	"headphones": "audio",
	"audio":      "audio",

	// Watches.
	"watch":       "watches",
	"watches":     "watches",
	"smartwatch":  "watches",
	"apple watch": "watches",

	// Phones.
	"phone":      "phones",
	"phones":     "phones",
	"iphone":     "phones",
	"samsung":    "phones",
	"mobile":     "phones",
	"smartphone": "phones",
	"android":    "phones",

	// Tablets.
	"tablet":  "tablets",
	"tablets": "tablets",
	"ipad":    "tablets",

	// Screen protectors.
	"screen protector": "screen_protectors",
	"tempered glass":   "screen_protectors",

	// Catch-alls.
	"accessories": "accessories",
	"electronics": "accessories",
}

// Input holds the validated parameters of a provisioning request.
type Input struct {
	ClientName      string `json:"client_name"`
	StoreName       string `json:"store_name"`
	Email           string `json:"email"`
	BusinessType    string `json:"business_type"`
	ProductCategory string `json:"product_category"`
	ProductCount    int    `json:"product_count"`
}

// Validate normalizes the input in place and reports the first violation.
// All returned errors wrap provision.ErrInvalidInput so callers can reject
// the request synchronously, before any job record exists.
func (in *Input) Validate() error {
	in.ClientName = strings.TrimSpace(in.ClientName)
	in.StoreName = strings.TrimSpace(in.StoreName)
	in.Email = strings.TrimSpace(in.Email)
	in.BusinessType = strings.TrimSpace(in.BusinessType)
	in.ProductCategory = strings.ToLower(strings.TrimSpace(in.ProductCategory))

	switch {
	case in.ClientName == "":
		return fmt.Errorf("%w: client_name is required", provision.ErrInvalidInput)
	case in.StoreName == "":
		return fmt.Errorf("%w: store_name is required", provision.ErrInvalidInput)
	case in.Email == "":
		return fmt.Errorf("%w: email is required", provision.ErrInvalidInput)
	case !strings.Contains(in.Email, "@") || !strings.Contains(in.Email, "."):
		return fmt.Errorf("%w: invalid email format %q", provision.ErrInvalidInput, in.Email)
	case in.BusinessType == "":
		return fmt.Errorf("%w: business_type is required", provision.ErrInvalidInput)
	}

	if _, ok := categoryAliases[in.ProductCategory]; !ok {
		return fmt.Errorf("%w: unknown product_category %q", provision.ErrInvalidInput, in.ProductCategory)
	}

	if in.ProductCount < MinProductCount || in.ProductCount > MaxProductCount {
		return fmt.Errorf("%w: product_count must be between %d and %d, got %d",
			provision.ErrInvalidInput, MinProductCount, MaxProductCount, in.ProductCount)
	}

	return nil
}

// Category resolves the canonical catalog group for the validated
// product_category. Returns "" if the category is unknown.
func (in *Input) Category() string {
	return categoryAliases[in.ProductCategory]
}
