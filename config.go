package main

import (
	"fmt"
	"os"

	"github.com/jopdesign/wcet/analysis/absint"
	"github.com/jopdesign/wcet/analysis/cfg"
	"github.com/jopdesign/wcet/analysis/cost"
	"github.com/jopdesign/wcet/analysis/ipet"

	"gopkg.in/yaml.v3"
)

// Config is the processor model and the parameters of every analysis stage.
type Config struct {
	Processor cost.Config    `yaml:"processor"`
	Dataflow  absint.Options `yaml:"dataflow"`
	CFG       cfg.Options    `yaml:"cfg"`
	IPET      ipet.Options   `yaml:"ipet"`
}

func DefaultConfig() Config {
	return Config{
		Processor: cost.DefaultConfig(),
		Dataflow:  absint.DefaultOptions(),
		IPET:      ipet.DefaultOptions(),
	}
}

// LoadConfig decodes a YAML configuration over the defaults. An empty path
// yields the defaults.
func LoadConfig(path string) (Config, error) {
	c := DefaultConfig()
	if path == "" {
		return c, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return c, err
	}
	if err := c.decode(data); err != nil {
		return c, err
	}
	return c, nil
}

func (c *Config) decode(data []byte) error {
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("decoding configuration: %w", err)
	}
	return nil
}

// override applies the command line options that shadow the configuration.
func (c *Config) override() {
	if cs := opts.CallString(); cs >= 0 {
		c.Dataflow.CallStringLength = cs
		c.IPET.CallStringLength = cs
	}
	if p := opts.CachePolicy(); p != "" {
		c.Processor.Policy = p
	}
	if opts.UnsafeCosts() {
		c.Processor.UnsafeFallback = true
	}
	if dir := opts.ResultCacheDir(); dir != "" {
		c.Dataflow.ResultCacheDir = dir
	}
	c.IPET.Jobs = opts.Jobs()
}
