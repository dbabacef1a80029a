// Package deviceconfig loads the construction parameters of a device
// from YAML, the way pack configs are loaded with gopkg.in/yaml.v3
// rather than hand-rolled flag parsing.
package deviceconfig

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the YAML-serializable construction parameters for a device.
type Config struct {
	Dies                 int `yaml:"dies"`
	Planes               int `yaml:"planes"`
	Blocks               int `yaml:"blocks"`
	Pages                int `yaml:"pages"`
	ReservedWritePerPlane int `yaml:"reserved_write_per_plane"`
	ReservedSparePerPlane int `yaml:"reserved_spare_per_plane"`
	TotalLBAs            int `yaml:"total_lbas"`
}

// Load reads and validates a Config from path.
func Load(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("deviceconfig: read %s: %w", path, err)
	}
	return Parse(raw)
}

// Parse validates and returns a Config from raw YAML bytes.
func Parse(raw []byte) (Config, error) {
	var c Config
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return Config{}, fmt.Errorf("deviceconfig: parse: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate rejects non-positive geometry and clamps reserved_write
// against reserved_spare per the documented precedence rule: if the two
// reserves together exceed blocks-per-plane, reserved_spare wins.
func (c *Config) Validate() error {
	if c.Dies <= 0 || c.Planes <= 0 || c.Blocks <= 0 || c.Pages <= 0 {
		return fmt.Errorf("deviceconfig: dies=%d planes=%d blocks=%d pages=%d must all be positive", c.Dies, c.Planes, c.Blocks, c.Pages)
	}
	if c.TotalLBAs <= 0 {
		return fmt.Errorf("deviceconfig: total_lbas=%d must be positive", c.TotalLBAs)
	}
	if c.ReservedSparePerPlane < 0 {
		c.ReservedSparePerPlane = 0
	}
	if c.ReservedWritePerPlane < 0 {
		c.ReservedWritePerPlane = 0
	}
	if c.ReservedSparePerPlane > c.Blocks {
		c.ReservedSparePerPlane = c.Blocks
	}
	if c.ReservedWritePerPlane+c.ReservedSparePerPlane > c.Blocks {
		c.ReservedWritePerPlane = c.Blocks - c.ReservedSparePerPlane
	}
	return nil
}
