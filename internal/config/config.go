// Package config loads the JSON(+comments/trailing-commas/BOM-tolerant)
// configuration file of spec.md §6, using github.com/tailscale/hujson to
// preprocess before decoding with encoding/json.
package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/tailscale/hujson"

	"github.com/zsiec/reflect/internal/option"
)

// Config is the top-level document.
type Config struct {
	Name        string        `json:"name"`
	Logger      LoggerConfig  `json:"logger"`
	SRTLogLevel string        `json:"srtloglevel"`
	CAInfo      string        `json:"cainfo"`
	Reflects    []ReflectSpec `json:"reflects"`
}

// LoggerConfig is the `logger` block.
type LoggerConfig struct {
	Target   string `json:"target"`    // directory; empty disables the file sink
	MaxSize  int    `json:"max_size"`  // MB
	MaxFiles int    `json:"max_files"` // retained rotated files
	Level    string `json:"level"`     // trace|debug|info|warning|error|fatal
}

// ReflectSpec is one `reflects[]` entry: one listening endpoint plus its
// publish/play policy and archival configuration.
type ReflectSpec struct {
	App        string         `json:"app"`
	Host       string         `json:"host"`
	Port       int            `json:"port"`
	Backlog    int            `json:"backlog"`
	EpollTimeo int            `json:"epolltimeo"`
	URI        string         `json:"uri"`
	Option     map[string]any `json:"option"`

	Publish HookSpec `json:"publish"`
	Play    HookSpec `json:"play"`

	CacheAge int `json:"cacheAge"` // authorizer cache TTL, seconds, default 10

	LoopRecs []LoopRecSpec `json:"loopRecs"`
}

// HookSpec is the `publish`/`play` sub-object.
type HookSpec struct {
	Option       map[string]any `json:"option"`
	Access       []AccessSpec   `json:"access"`
	OnPreAccept  string         `json:"on_pre_accept"`
	OnAccept     string         `json:"on_accept"`
	Stats        int            `json:"stats"` // seconds, publish-only; 0 disables
}

// AccessSpec is one `{name, allow, deny}` rule.
type AccessSpec struct {
	Name  string `json:"name"`
	Allow string `json:"allow"`
	Deny  string `json:"deny"`
}

// LoopRecSpec is one `loopRecs[]` entry.
type LoopRecSpec struct {
	Name            string `json:"name"`
	Dir             string `json:"dir"`
	DataExtension   string `json:"data_extension"`
	IndexExtension  string `json:"index_extension"`
	SegmentDuration int    `json:"segment_duration"` // seconds
	TotalDuration   int    `json:"total_duration"`   // seconds
	IndexInterval   int    `json:"index_interval"`   // ms
	IndexEndian     string `json:"index_endian"`     // native|big|little
	Prefetch        int    `json:"prefetch"`         // ms
	Queue           int    `json:"queue"`            // ms; 0 disables
	QueueLimitMin   int    `json:"queue_limit_min"`
	QueueLimitMax   int    `json:"queue_limit_max"`
	S3              S3Spec `json:"s3"`
}

// S3Spec is the `s3` sub-object of a LoopRecSpec.
type S3Spec struct {
	Bucket string `json:"bucket"`
	Folder string `json:"folder"`
	Bufsiz int    `json:"bufsiz"`
}

// Load reads, BOM/comment/trailing-comma-tolerantly parses, and decodes the
// config file at path.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	std, err := hujson.Standardize(raw)
	if err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	var cfg Config
	if err := json.Unmarshal(std, &cfg); err != nil {
		return nil, fmt.Errorf("decode config %s: %w", path, err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// ToOptionMap renders a JSON option sub-object (`option`, `publish.option`,
// ...) into an option.Map, used when wiring pre-bind/pre-accept/post-accept
// defaults.
func ToOptionMap(m map[string]any) *option.Map {
	out := option.New()
	for k, v := range m {
		out.Set(k, fmt.Sprintf("%v", v))
	}
	return out
}

func (c *Config) applyDefaults() {
	if c.Name == "" {
		c.Name = "srt-live-reflect"
	}
	for i := range c.Reflects {
		if c.Reflects[i].App == "" {
			c.Reflects[i].App = "live"
		}
		if c.Reflects[i].Backlog == 0 {
			c.Reflects[i].Backlog = 10
		}
		if c.Reflects[i].EpollTimeo == 0 {
			c.Reflects[i].EpollTimeo = 100
		}
		if c.Reflects[i].CacheAge == 0 {
			c.Reflects[i].CacheAge = 10
		}
	}
}
