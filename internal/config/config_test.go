package config

import (
	"os"
	"path/filepath"
	"testing"
)

const sampleConf = `{
  // trailing comment support via hujson
  "logger": { "target": "/var/log/reflect", "level": "info" },
  "reflects": [
    {
      "host": "0.0.0.0",
      "port": 6000,
      "publish": {
        "access": [
          { "name": "*", "deny": "10.0.0.0/8" },
          { "name": "*", "allow": "*" },
        ],
      },
      "loopRecs": [
        { "name": "dvr1", "dir": "/data/dvr1", "segment_duration": 60 },
      ],
    },
  ],
}
`

func writeSample(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "reflect.conf")
	if err := os.WriteFile(path, []byte(sampleConf), 0o644); err != nil {
		t.Fatalf("write sample config: %v", err)
	}
	return path
}

func TestLoadParsesCommentsAndTrailingCommas(t *testing.T) {
	path := writeSample(t)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.Reflects) != 1 {
		t.Fatalf("expected 1 reflect entry, got %d", len(cfg.Reflects))
	}
	r := cfg.Reflects[0]
	if r.Port != 6000 {
		t.Fatalf("Port = %d, want 6000", r.Port)
	}
	if len(r.Publish.Access) != 2 {
		t.Fatalf("expected 2 access rules, got %d", len(r.Publish.Access))
	}
	if len(r.LoopRecs) != 1 || r.LoopRecs[0].Name != "dvr1" {
		t.Fatalf("expected loopRecs[0].name = dvr1, got %+v", r.LoopRecs)
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeSample(t)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Name != "srt-live-reflect" {
		t.Fatalf("Name default = %q, want srt-live-reflect", cfg.Name)
	}
	r := cfg.Reflects[0]
	if r.App != "live" {
		t.Fatalf("App default = %q, want live", r.App)
	}
	if r.Backlog != 10 {
		t.Fatalf("Backlog default = %d, want 10", r.Backlog)
	}
	if r.CacheAge != 10 {
		t.Fatalf("CacheAge default = %d, want 10", r.CacheAge)
	}
}

func TestToOptionMap(t *testing.T) {
	m := ToOptionMap(map[string]any{"latency": 200.0, "mode": "caller"})
	if got := m.GetString("mode", ""); got != "caller" {
		t.Fatalf("mode = %q, want caller", got)
	}
	if got := m.GetInt("latency", 0); got != 200 {
		t.Fatalf("latency = %d, want 200", got)
	}
}
