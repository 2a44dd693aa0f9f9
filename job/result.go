package job

// Result accumulates stage outputs needed by later stages and by the
// caller. Every field is write-once: Merge never overwrites a value that
// has already been set, so a later stage can never erase an earlier
// stage's output.
type Result struct {
	StoreURL             string   `json:"store_url,omitempty"`
	StoreID              string   `json:"store_id,omitempty"`
	AdminURL             string   `json:"admin_url,omitempty"`
	AccessToken          string   `json:"access_token,omitempty"`
	ProductIDs           []string `json:"product_ids,omitempty"`
	TransferConfirmation string   `json:"transfer_confirmation,omitempty"`
}

// Merge copies each set field of patch into r, skipping fields r already
// carries.
func (r *Result) Merge(patch Result) {
	if r.StoreURL == "" {
		r.StoreURL = patch.StoreURL
	}
	if r.StoreID == "" {
		r.StoreID = patch.StoreID
	}
	if r.AdminURL == "" {
		r.AdminURL = patch.AdminURL
	}
	if r.AccessToken == "" {
		r.AccessToken = patch.AccessToken
	}
	if len(r.ProductIDs) == 0 {
		r.ProductIDs = patch.ProductIDs
	}
	if r.TransferConfirmation == "" {
		r.TransferConfirmation = patch.TransferConfirmation
	}
}
