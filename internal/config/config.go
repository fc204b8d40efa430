package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// DefaultPath is where the daemon looks for its configuration unless
// overridden on the command line.
const DefaultPath = "config.toml"

// Config is the daemon configuration, stored as TOML on disk.
type Config struct {
	Network  Network  `toml:"network"`
	Transfer Transfer `toml:"transfer"`
	UI       UI       `toml:"ui"`
}

// Network holds the three listener ports and the advertisement cadence.
type Network struct {
	DiscoveryPort     int `toml:"discovery_port"`     // UDP
	TransferPort      int `toml:"transfer_port"`      // TCP
	WebPort           int `toml:"web_port"`           // HTTP/WebSocket
	BroadcastInterval int `toml:"broadcast_interval"` // seconds
}

// Transfer holds the file-transfer tuning knobs.
type Transfer struct {
	ChunkSize     int `toml:"chunk_size"`     // bytes per chunk
	MaxConcurrent int `toml:"max_concurrent"` // shared sender+receiver permits
}

// UI is passed through to clients untouched.
type UI struct {
	Theme string `toml:"theme"`
}

// Default returns the configuration the daemon ships with.
func Default() Config {
	return Config{
		Network: Network{
			DiscoveryPort:     7878,
			TransferPort:      7879,
			WebPort:           3030,
			BroadcastInterval: 2,
		},
		Transfer: Transfer{
			ChunkSize:     64 * 1024,
			MaxConcurrent: 5,
		},
		UI: UI{
			Theme: "dark",
		},
	}
}

// Load reads the TOML config at path. A missing file is not an error: the
// default configuration is written there and returned, so a first run leaves
// an editable config behind.
func Load(path string) (Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := Default()
		if err := cfg.Save(path); err != nil {
			return Config{}, fmt.Errorf("write default config: %w", err)
		}
		return cfg, nil
	}

	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.setDefaults()
	return cfg, nil
}

// Save writes the configuration as TOML to path.
func (c Config) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(c)
}

// setDefaults back-fills any field a hand-edited config left zero.
func (c *Config) setDefaults() {
	def := Default()
	if c.Network.DiscoveryPort == 0 {
		c.Network.DiscoveryPort = def.Network.DiscoveryPort
	}
	if c.Network.TransferPort == 0 {
		c.Network.TransferPort = def.Network.TransferPort
	}
	if c.Network.WebPort == 0 {
		c.Network.WebPort = def.Network.WebPort
	}
	if c.Network.BroadcastInterval <= 0 {
		c.Network.BroadcastInterval = def.Network.BroadcastInterval
	}
	if c.Transfer.ChunkSize <= 0 {
		c.Transfer.ChunkSize = def.Transfer.ChunkSize
	}
	if c.Transfer.MaxConcurrent <= 0 {
		c.Transfer.MaxConcurrent = def.Transfer.MaxConcurrent
	}
	if c.UI.Theme == "" {
		c.UI.Theme = def.UI.Theme
	}
}
