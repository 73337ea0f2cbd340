// Package config holds the immutable harvest run configuration.
//
// Values come from an optional YAML file, then SW_* environment
// overrides, then defaults. The resulting Config is constructed once
// at startup and passed to every component; nothing reads the
// environment after load.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level harvest configuration.
type Config struct {
	Site    SiteConfig    `yaml:"site"`
	Browser BrowserConfig `yaml:"browser"`
	Walk    WalkConfig    `yaml:"walk"`
	Output  OutputConfig  `yaml:"output"`
}

// SiteConfig pins the target site and branch.
type SiteConfig struct {
	// BaseURL is the site origin; relative product links resolve against it.
	BaseURL string `yaml:"base_url"`
	// StartURL is the catalog start view (page 1).
	StartURL string `yaml:"start_url"`
	// StoreLocatorURL is the locator view pre-filtered by the branch search term.
	StoreLocatorURL string `yaml:"store_locator_url"`
	// Branch is the branch label stamped on every harvested row.
	Branch string `yaml:"branch"`
	// BranchPattern is a case-insensitive regex matching the branch name,
	// tolerant of diacritic spelling variants.
	BranchPattern string `yaml:"branch_pattern"`
	// FallbackFilters are alternate catalog filter URLs tried when the
	// start view yields nothing.
	FallbackFilters []string `yaml:"fallback_filters"`
	// Keywords admit background responses whose URL contains one of them.
	Keywords []string `yaml:"keywords"`
}

// BrowserConfig controls the rendering session.
type BrowserConfig struct {
	Headless   bool          `yaml:"headless"`
	UserAgent  string        `yaml:"user_agent"`
	NavTimeout time.Duration `yaml:"nav_timeout"`
	// ResourceBlocking lists resource types to block (images, fonts, media).
	ResourceBlocking []string `yaml:"resource_blocking"`
}

// WalkConfig tunes the traversal and retry behaviour.
type WalkConfig struct {
	MaxPages       int           `yaml:"max_pages"`
	StagnantLimit  int           `yaml:"stagnant_limit"`
	ScrollCycles   int           `yaml:"scroll_cycles"`
	ScrollWait     time.Duration `yaml:"scroll_wait"`
	ScrollStable   int           `yaml:"scroll_stable"`
	DOMNodeCap     int           `yaml:"dom_node_cap"`
	RetryWaitBase  time.Duration `yaml:"retry_wait_base"`
	MaxRetries     int           `yaml:"max_retries"`
	PageDelay      time.Duration `yaml:"page_delay"`
	StoreRetries   int           `yaml:"store_retries"`
	IncludeNoPrice bool          `yaml:"include_no_price"`
}

// OutputConfig controls persistence and debug artifacts.
type OutputConfig struct {
	Dir     string `yaml:"dir"`      // artifact directory; raw/ lives under it
	CSVPath string `yaml:"csv_path"` // empty = <dir>/catalog.csv
	DBPath  string `yaml:"db_path"`  // empty = <dir>/catalog.db
	Debug   bool   `yaml:"debug"`    // dump raw responses and page HTML
}

// LoadFile reads a YAML configuration file, then applies environment
// overrides and defaults.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := Config{Browser: BrowserConfig{Headless: true}}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.applyEnv()
	cfg.applyDefaults()
	return &cfg, nil
}

// Default returns a Config built from environment overrides and defaults
// only (no file).
func Default() *Config {
	cfg := Config{Browser: BrowserConfig{Headless: true}}
	cfg.applyEnv()
	cfg.applyDefaults()
	return &cfg
}

func (c *Config) applyEnv() {
	envStr("SW_BASE_URL", &c.Site.BaseURL)
	envStr("SW_START_URL", &c.Site.StartURL)
	envStr("SW_STORE_LOCATOR_URL", &c.Site.StoreLocatorURL)
	envStr("SW_BRANCH", &c.Site.Branch)
	envStr("SW_BRANCH_PATTERN", &c.Site.BranchPattern)
	envStr("SW_UA", &c.Browser.UserAgent)
	envBool("SW_HEADLESS", &c.Browser.Headless)
	envInt("SW_MAX_PAGES", &c.Walk.MaxPages)
	envInt("SW_STAGNANT_LIMIT", &c.Walk.StagnantLimit)
	envInt("SW_SCROLL_CYCLES", &c.Walk.ScrollCycles)
	envMs("SW_SCROLL_WAIT_MS", &c.Walk.ScrollWait)
	envInt("SW_DOM_NODE_CAP", &c.Walk.DOMNodeCap)
	envMs("SW_RETRY_WAIT_BASE_MS", &c.Walk.RetryWaitBase)
	envInt("SW_MAX_RETRIES", &c.Walk.MaxRetries)
	envMs("SW_PAGE_DELAY_MS", &c.Walk.PageDelay)
	envStr("SW_OUT_DIR", &c.Output.Dir)
}

func (c *Config) applyDefaults() {
	if c.Site.Keywords == nil {
		c.Site.Keywords = []string{
			"freshop", "products", "search", "department",
			"category", "aisle", "browse", "catalog", "items",
		}
	}
	if c.Site.BranchPattern == "" && c.Site.Branch != "" {
		c.Site.BranchPattern = "(?i)" + c.Site.Branch
	}
	if c.Browser.UserAgent == "" {
		c.Browser.UserAgent = "PriceCheckPH-Shelfwatch/1.0 (+contact: ops@pricecheck.ph)"
	}
	if c.Browser.NavTimeout <= 0 {
		c.Browser.NavTimeout = 90 * time.Second
	}
	if c.Walk.MaxPages <= 0 {
		c.Walk.MaxPages = 50
	}
	if c.Walk.StagnantLimit <= 0 {
		c.Walk.StagnantLimit = 4
	}
	if c.Walk.ScrollCycles <= 0 {
		c.Walk.ScrollCycles = 20
	}
	if c.Walk.ScrollWait <= 0 {
		c.Walk.ScrollWait = 750 * time.Millisecond
	}
	if c.Walk.ScrollStable <= 0 {
		c.Walk.ScrollStable = 3
	}
	if c.Walk.DOMNodeCap <= 0 {
		c.Walk.DOMNodeCap = 1000
	}
	if c.Walk.RetryWaitBase <= 0 {
		c.Walk.RetryWaitBase = time.Second
	}
	if c.Walk.MaxRetries <= 0 {
		c.Walk.MaxRetries = 3
	}
	if c.Walk.PageDelay <= 0 {
		c.Walk.PageDelay = 2 * time.Second
	}
	if c.Walk.StoreRetries <= 0 {
		c.Walk.StoreRetries = 2
	}
	if c.Output.Dir == "" {
		c.Output.Dir = "data"
	}
	if c.Output.CSVPath == "" {
		c.Output.CSVPath = c.Output.Dir + "/catalog.csv"
	}
	if c.Output.DBPath == "" {
		c.Output.DBPath = c.Output.Dir + "/catalog.db"
	}
}

func envStr(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envMs(key string, dst *time.Duration) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = time.Duration(n) * time.Millisecond
		}
	}
}

func envBool(key string, dst *bool) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	switch v {
	case "0", "false", "False", "no":
		*dst = false
	default:
		*dst = true
	}
}
