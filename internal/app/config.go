package app

import (
	"fmt"
	"os"
	"time"

	"go.yaml.in/yaml/v3"

	"github.com/pranshuparmar/sockwatch/internal/aggregator"
	"github.com/pranshuparmar/sockwatch/internal/filter"
	"github.com/pranshuparmar/sockwatch/internal/meter"
	"github.com/pranshuparmar/sockwatch/internal/proc"
	"github.com/pranshuparmar/sockwatch/internal/query"
)

// Config is the merged result of the config file and command line flags.
type Config struct {
	Interval       time.Duration `yaml:"interval"`
	Family         string        `yaml:"family"`
	Protocol       string        `yaml:"protocol"`
	CurrentUser    bool          `yaml:"current_user"`
	CurrentProcess bool          `yaml:"current_process"`
	Filter         string        `yaml:"filter"`
	ProcRoot       string        `yaml:"proc_root"`
	Listen         string        `yaml:"listen"`
	Statsd         string        `yaml:"statsd"`
	LogLevel       string        `yaml:"log_level"`
	Match          *MatchConfig  `yaml:"match"`
}

// MatchConfig selects which fetched sockets get meters. Without it every
// socket does.
type MatchConfig struct {
	Mode      string        `yaml:"mode"`
	Refresh   time.Duration `yaml:"refresh"`
	Addresses []string      `yaml:"addresses"`
	Files     []string      `yaml:"files"`
}

func DefaultConfig() Config {
	return Config{
		Interval: 10 * time.Second,
		Protocol: "tcp",
		ProcRoot: proc.DefaultRoot,
		Listen:   ":9465",
		LogLevel: "info",
	}
}

// LoadConfigFile overlays the YAML file at path onto cfg.
func LoadConfigFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

func (c Config) Validate() error {
	if c.Interval <= 0 {
		return fmt.Errorf("interval must be positive, got %s", c.Interval)
	}
	if _, err := c.QuerySpec(); err != nil {
		return err
	}
	if _, err := c.Matcher(); err != nil {
		return err
	}
	return nil
}

// QuerySpec builds the assembled probe query.
func (c Config) QuerySpec() (*query.Spec, error) {
	family, err := query.ParseFamily(c.Family)
	if err != nil {
		return nil, err
	}
	protocol, err := query.ParseProtocol(c.Protocol)
	if err != nil {
		return nil, err
	}
	expr, err := filter.Parse(c.Filter)
	if err != nil {
		return nil, err
	}
	spec, err := query.Assemble(&query.Spec{
		Family:         family,
		Protocol:       protocol,
		CurrentUser:    c.CurrentUser,
		CurrentProcess: c.CurrentProcess,
		Filter:         expr,
	})
	if err != nil {
		return nil, err
	}
	return &spec, nil
}

// Matcher builds the admission matcher for meters.
func (c Config) Matcher() (meter.Matcher, error) {
	if c.Match == nil {
		return meter.MatchAll, nil
	}

	mode, err := aggregator.ParseMode(c.Match.Mode)
	if err != nil {
		return nil, err
	}
	static, err := aggregator.ParseStatic(c.Match.Addresses)
	if err != nil {
		return nil, err
	}
	sources := []aggregator.Source{static}
	for _, path := range c.Match.Files {
		sources = append(sources, aggregator.FileSource{Path: path})
	}

	refresh := c.Match.Refresh
	if refresh <= 0 {
		refresh = time.Second
	}
	return aggregator.New(mode, refresh, aggregator.Sources(sources...)), nil
}
