package config

type Permissions struct {
	// Broker selects the permission broker: "allow" (default) or "grants".
	// "grants" answers exclusively from the persistent grant store.
	Broker string `yaml:"broker,omitempty"`
	// CacheTTLSeconds bounds how long a positive broker decision is reused.
	// Zero disables the decision cache.
	CacheTTLSeconds int `yaml:"cacheTTLSeconds,omitempty"`
}
