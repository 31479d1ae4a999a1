package config

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// File represents the optional ectar configuration file.
type File struct {
	Defaults DefaultsConfig `toml:"defaults"`
}

// DefaultsConfig holds persistent flag defaults applied when the
// corresponding flag is not set on the command line.
type DefaultsConfig struct {
	DataShards       *int    `toml:"data_shards"`
	ParityShards     *int    `toml:"parity_shards"`
	ChunkSize        *string `toml:"chunk_size"`
	CompressionLevel *int    `toml:"compression_level"`
}

// Path returns the resolved path to the config file.
func Path() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "ectar", "config.toml")
}

// Load reads the config file from the XDG path. Returns a zero File
// (no error) if the file does not exist. Config is always optional.
func Load() (File, error) {
	path := Path()
	if path == "" {
		return File{}, nil
	}

	var cfg File
	_, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return File{}, nil
		}
		return File{}, err
	}
	return cfg, nil
}
