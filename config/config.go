package config

type Config struct {
	Bus           Bus         `yaml:"bus,omitempty"`
	Permissions   Permissions `yaml:"permissions,omitempty"`
	RPCAddress    string      `yaml:"rpc,omitempty"`
	StatusAddress string      `yaml:"status,omitempty"`
	LogLevel      string      `yaml:"logLevel,omitempty"`
	RescanSpec    string      `yaml:"rescan,omitempty"`
}
