package cluster

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/archivekit/objectarchive/archive"
)

// Config holds cluster node initialization parameters. Archive configures
// the local backing store every node keeps. Rank and Peers configure an
// RPC-backed transport, where Peers[Rank] is this node's own listen
// address; they are unused when a caller constructs its own
// transport.Transport (such as transport.NewLocalBus) directly.
type Config struct {
	Archive archive.Config `json:"archive,omitempty"`
	Rank    int            `json:"rank"`
	Peers   []string       `json:"peers,omitempty"`
}

// DefaultConfig returns the default cluster configuration.
func DefaultConfig() Config {
	return Config{Archive: archive.DefaultConfig()}
}

// Merge applies non-zero values from source into c.
func (c *Config) Merge(source *Config) {
	c.Archive.Merge(&source.Archive)
	if source.Rank != 0 {
		c.Rank = source.Rank
	}
	if len(source.Peers) > 0 {
		c.Peers = source.Peers
	}
}

// LoadConfig reads a JSON config file, merges it with defaults, and
// returns the resulting Config.
func LoadConfig(filename string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("cluster: read config file: %w", err)
	}

	var loaded Config
	if err := json.Unmarshal(data, &loaded); err != nil {
		return nil, fmt.Errorf("cluster: parse config file: %w", err)
	}

	cfg.Merge(&loaded)
	return &cfg, nil
}
