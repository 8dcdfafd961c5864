/*

This is a custom type for assets which contains the external token identity and
the decimal precision needed for USD normalization.

*/

package types

// Asset describes an external fungible token referenced by the vault.
// The vault never owns the token definition; it is referenced by address.
type Asset struct {
	Symbol   string `json:"symbol"`   // e.g., "usdc"
	Address  string `json:"address"`  // address-equivalent external handle
	Decimals int    `json:"decimals"` // e.g., 6 means 1000000 = 1 token
}

// Identity is an address-equivalent caller handle. Authorization in the core
// is an equality check against a registered Identity, not a role hierarchy.
type Identity string

// IsZero reports whether the identity is unset.
func (id Identity) IsZero() bool {
	return id == ""
}
