//go:build !rp2040 && !rp2350

package config

import (
	"io"
	"os"

	"github.com/BurntSushi/toml"
)

// Load reads path over the defaults. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	defer f.Close()
	return LoadFromReader(f)
}

// LoadFromReader decodes TOML over the preset named by its device key, or
// over Default when the key is absent or unknown, then validates.
func LoadFromReader(r io.Reader) (*Config, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	var head struct {
		Device string `toml:"device"`
	}
	if _, err := toml.Decode(string(raw), &head); err != nil {
		return nil, err
	}
	cfg, ok := PresetLookup(head.Device)
	if !ok {
		cfg = Default()
	}
	md, err := toml.Decode(string(raw), cfg)
	if err != nil {
		return nil, err
	}
	if keys := md.Undecoded(); len(keys) > 0 {
		return nil, &UnknownKeysError{Keys: keys}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// UnknownKeysError lists keys the file set that no field matches.
type UnknownKeysError struct {
	Keys []toml.Key
}

func (e *UnknownKeysError) Error() string {
	s := "config: unknown keys:"
	for _, k := range e.Keys {
		s += " " + k.String()
	}
	return s
}

// Encode writes c as TOML, for `panelsim -dump-config`.
func Encode(w io.Writer, c *Config) error {
	return toml.NewEncoder(w).Encode(c)
}
