package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"ordersync/internal/models"
)

// Credential is the refreshable OAuth state a platform section carries. The
// document is the single durable home for tokens: every refresh writes it
// back before the token is used.
type Credential struct {
	ClientID     string    `yaml:"client_id"`
	ClientSecret string    `yaml:"client_secret"`
	Scope        string    `yaml:"scope,omitempty"`
	RefreshURL   string    `yaml:"refresh_url"`
	AccessToken  string    `yaml:"access_token"`
	RefreshToken string    `yaml:"refresh_token"`
	BestBefore   time.Time `yaml:"best_before"`
}

type EbayConfig struct {
	Credential `yaml:",inline"`
	APIURL     string `yaml:"api_url"`
	AuthURL    string `yaml:"auth_url"`
	TokenURL   string `yaml:"token_url"`
	AuthSlug   string `yaml:"auth_slug"`
}

type AmazonConfig struct {
	Credential    `yaml:",inline"`
	APIURL        string `yaml:"api_url"`
	MarketplaceID string `yaml:"marketplace_id"`
	Region        string `yaml:"region"`
	Service       string `yaml:"service"`
	SigningKey    string `yaml:"signing_key"`
	SigningSecret string `yaml:"signing_secret"`
	// High-water mark for the CreatedAfter filter, advanced after each
	// successful run.
	OrdersAfter string `yaml:"get_orders_after"`
}

type WooConfig struct {
	URL            string `yaml:"url"`
	ConsumerKey    string `yaml:"consumer_key"`
	ConsumerSecret string `yaml:"consumer_secret"`
	PageSize       int    `yaml:"page_size"`
}

type Config struct {
	Server struct {
		Addr        string `yaml:"addr"`
		RedirectURI string `yaml:"redirect_uri"`
	} `yaml:"server"`
	DB struct {
		DSN string `yaml:"dsn"`
	} `yaml:"db"`
	Ebay   EbayConfig   `yaml:"ebay"`
	Amazon AmazonConfig `yaml:"amazon"`
	Woo    WooConfig    `yaml:"wc"`

	path string
}

func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	if path == "" {
		path = "configs/config.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.path = path

	if v := os.Getenv("DB_DSN"); v != "" {
		cfg.DB.DSN = v
	}

	if cfg.DB.DSN == "" {
		return nil, errors.New("db.dsn is required")
	}
	return &cfg, nil
}

// Path reports the backing file the config was loaded from.
func (c *Config) Path() string { return c.path }

// Save rewrites the document atomically: a partially written config after a
// crash would lose freshly rotated refresh tokens for good.
func (c *Config) Save() error {
	if c.path == "" {
		return errors.New("config has no backing file")
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(c.path), ".config-*.yaml")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), c.path)
}

// PlatformCredential returns the refreshable credential for a platform, or
// nil for platforms authenticated per-request (WooCommerce key pair).
func (c *Config) PlatformCredential(p models.Platform) *Credential {
	switch p {
	case models.PlatformEbay:
		return &c.Ebay.Credential
	case models.PlatformAmazon:
		return &c.Amazon.Credential
	default:
		return nil
	}
}

// SetWatermark records a platform's advanced high-water mark. Only Amazon
// keeps one; the other platforms dedupe against stored order ids.
func (c *Config) SetWatermark(p models.Platform, watermark string) error {
	if p != models.PlatformAmazon {
		return fmt.Errorf("platform %s keeps no watermark", p)
	}
	c.Amazon.OrdersAfter = watermark
	return nil
}
