// Package config reads the TOML configuration of the service.
package config

import (
	"fmt"
	"strings"
	"time"

	"code.cloudfoundry.org/bytefmt"
	"github.com/BurntSushi/toml"
	"github.com/creasty/defaults"
	validatorV10 "github.com/go-playground/validator/v10"
)

var validator = validatorV10.New()

// Config of the whole service, loaded once at startup.
type Config struct {
	Host          string   `toml:"host" default:"localhost"`
	Port          int      `toml:"port" default:"8080" validate:"gt=0,lt=65536"`
	Prefix        string   `toml:"prefix" default:"iiif" validate:"required"`
	BaseURL       string   `toml:"baseURL"`
	TileSize      int      `toml:"tileSize" default:"1024" validate:"gt=0"`
	ThumbnailSize int      `toml:"thumbnailSize" default:"150" validate:"gt=0"`
	Workers       int      `toml:"workers" default:"4" validate:"gt=0"`
	SendTimeout   Duration `toml:"sendTimeout"`
	Engine        string   `toml:"engine" default:"auto" validate:"oneof=auto native portable"`
	Prober        string   `toml:"prober" default:"decoder" validate:"oneof=decoder exiftool"`
	MaxArea       int      `toml:"maxArea" validate:"gte=0"`
	JPEGQuality   int      `toml:"jpegQuality" default:"85" validate:"gte=1,lte=100"`
	Catalog       string   `toml:"catalog" default:"catalog.db"`
	Peers         []string `toml:"peers"`
	Store         Store    `toml:"store"`
	Cache         Cache    `toml:"cache"`
	Watch         Watch    `toml:"watch"`
	Log           Log      `toml:"log"`
}

// Store selects where the derivatives are persisted.
type Store struct {
	Kind  string `toml:"kind" default:"disk" validate:"oneof=memory disk redis oss"`
	Path  string `toml:"path" default:"derivatives"`
	Redis Redis  `toml:"redis"`
	OSS   OSS    `toml:"oss"`
}

// Redis connection settings.
type Redis struct {
	Addr     string `toml:"addr" default:"localhost:6379"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
	Prefix   string `toml:"prefix" default:"iiif:"`
}

// OSS bucket settings.
type OSS struct {
	Endpoint        string `toml:"endpoint"`
	AccessKeyID     string `toml:"accessKeyID"`
	AccessKeySecret string `toml:"accessKeySecret"`
	Bucket          string `toml:"bucket"`
}

// Cache sizes of the groupcache groups, such as 128M.
type Cache struct {
	Derivatives string `toml:"derivatives" default:"128M"`
	Info        string `toml:"info" default:"8M"`
	HTTP        int64  `toml:"http" default:"3600"`
	Plans       int    `toml:"plans" default:"256"`

	DerivativesSize int64 `toml:"-"`
	InfoSize        int64 `toml:"-"`
}

// Watch folder settings.
type Watch struct {
	Folder  string   `toml:"folder"`
	Retries int      `toml:"retries" default:"3" validate:"gte=0"`
	Delay   Duration `toml:"delay"`
	Cleanup bool     `toml:"cleanup"`
}

// Log settings, file being empty means stderr.
type Log struct {
	Level      string `toml:"level" default:"info" validate:"oneof=debug info warn error"`
	File       string `toml:"file"`
	MaxSize    int    `toml:"maxSize" default:"100"`
	MaxBackups int    `toml:"maxBackups" default:"3"`
	MaxAge     int    `toml:"maxAge" default:"28"`
}

// SetDefaults fills the values struct tags cannot express.
func (c *Config) SetDefaults() {
	if defaults.CanUpdate(c.SendTimeout.Duration) {
		c.SendTimeout.Duration = 30 * time.Second
	}
	if defaults.CanUpdate(c.Watch.Delay.Duration) {
		c.Watch.Delay.Duration = 2 * time.Second
	}
}

// Duration is a time.Duration written as a string, like 30s.
type Duration struct {
	time.Duration
}

// UnmarshalText parses the duration.
func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText formats the duration.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// New returns the configuration with every default set.
func New() (*Config, error) {
	c := &Config{}
	if err := c.finish(); err != nil {
		return nil, err
	}
	return c, nil
}

// Load reads the configuration file.
func Load(filename string) (*Config, error) {
	c := &Config{}
	if err := defaults.Set(c); err != nil {
		return nil, fmt.Errorf("cannot set defaults: %w", err)
	}
	if _, err := toml.DecodeFile(filename, c); err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", filename, err)
	}
	if err := c.finish(); err != nil {
		return nil, fmt.Errorf("invalid configuration %s: %w", filename, err)
	}
	return c, nil
}

// Decode reads the configuration from a TOML document.
func Decode(data string) (*Config, error) {
	c := &Config{}
	if err := defaults.Set(c); err != nil {
		return nil, fmt.Errorf("cannot set defaults: %w", err)
	}
	if _, err := toml.Decode(data, c); err != nil {
		return nil, err
	}
	if err := c.finish(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) finish() error {
	if err := defaults.Set(c); err != nil {
		return err
	}

	c.Prefix = strings.Trim(c.Prefix, "/")
	if c.BaseURL == "" {
		c.BaseURL = fmt.Sprintf("http://%s:%d", c.Host, c.Port)
	}

	var err error
	if c.Cache.DerivativesSize, err = toBytes(c.Cache.Derivatives); err != nil {
		return fmt.Errorf("cache.derivatives: %w", err)
	}
	if c.Cache.InfoSize, err = toBytes(c.Cache.Info); err != nil {
		return fmt.Errorf("cache.info: %w", err)
	}

	return validator.Struct(c)
}

func toBytes(s string) (int64, error) {
	if s == "" || s == "0" {
		return 0, nil
	}
	n, err := bytefmt.ToBytes(s)
	return int64(n), err
}

// Listen is the address the HTTP server binds to.
func (c *Config) Listen() string {
	return fmt.Sprintf("%v:%v", c.Host, c.Port)
}
