package storecache

import (
	"log/slog"
	"testing"
	"time"
)

func TestLoadConfigFrom_Defaults(t *testing.T) {
	cfg, err := LoadConfigFrom(map[string]string{})
	if err != nil {
		t.Fatalf("LoadConfigFrom() error = %v", err)
	}

	if cfg.Backend != BackendBadger {
		t.Errorf("Backend = %s, want badger", cfg.Backend)
	}
	if cfg.SchemaVersion != DefaultSchemaVersion {
		t.Errorf("SchemaVersion = %s, want %s", cfg.SchemaVersion, DefaultSchemaVersion)
	}
	if cfg.Policy() != DefaultPolicy() {
		t.Errorf("Policy() = %+v, want %+v", cfg.Policy(), DefaultPolicy())
	}
	if cfg.PrefetchDelay != 2*time.Second {
		t.Errorf("PrefetchDelay = %v, want 2s", cfg.PrefetchDelay)
	}
	if cfg.LiveRelayout {
		t.Error("LiveRelayout should default to false")
	}
}

func TestLoadConfigFrom_Overrides(t *testing.T) {
	cfg, err := LoadConfigFrom(map[string]string{
		"STORECACHE_BACKEND":        "redis",
		"STORECACHE_TTL_STANDARD":   "1m",
		"STORECACHE_DEFAULT_LOCALE": "ar",
		"STORECACHE_LIVE_RELAYOUT":  "true",
		"STORECACHE_LOG_LEVEL":      "debug",
	})
	if err != nil {
		t.Fatalf("LoadConfigFrom() error = %v", err)
	}

	if cfg.Backend != BackendRedis {
		t.Errorf("Backend = %s, want redis", cfg.Backend)
	}
	if cfg.StandardTTL != time.Minute {
		t.Errorf("StandardTTL = %v, want 1m", cfg.StandardTTL)
	}
	if !cfg.LiveRelayout {
		t.Error("LiveRelayout should be true")
	}

	reg, err := cfg.Registry()
	if err != nil {
		t.Fatalf("Registry() error = %v", err)
	}
	if reg.Default().Code != "ar" {
		t.Errorf("default locale = %s, want ar", reg.Default().Code)
	}
	if len(reg.All()) != 2 {
		t.Errorf("len(All()) = %d, want 2", len(reg.All()))
	}
}

func TestLoadConfigFrom_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"backend", map[string]string{"STORECACHE_BACKEND": "sqlite"}},
		{"ttl", map[string]string{"STORECACHE_TTL_CRITICAL": "0s"}},
		{"critical above durable", map[string]string{"STORECACHE_TTL_CRITICAL": "48h"}},
		{"standard above critical", map[string]string{"STORECACHE_TTL_STANDARD": "1h"}},
		{"duration syntax", map[string]string{"STORECACHE_TTL_DURABLE": "forever"}},
		{"log level", map[string]string{"STORECACHE_LOG_LEVEL": "loud"}},
		{"log format", map[string]string{"STORECACHE_LOG_FORMAT": "xml"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := LoadConfigFrom(tt.env); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"INFO":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
	}
	for in, want := range tests {
		got, err := ParseLogLevel(in)
		if err != nil || got != want {
			t.Errorf("ParseLogLevel(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
}
