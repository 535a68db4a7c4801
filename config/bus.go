package config

type Bus struct {
	// Backend selects the bus implementation: "physical" (default) or "none".
	Backend string `yaml:"backend,omitempty"`
	// VendorAllowList restricts enumeration to the listed vendor IDs when
	// non-empty.
	VendorAllowList []uint16 `yaml:"vendorAllowList,omitempty"`
}
