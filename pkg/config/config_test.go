package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_UsesDefaults_WhenNoFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	// Spot-check a few defaults
	if cfg.Web.Port != 8080 {
		t.Errorf("expected Web.Port default 8080, got %d", cfg.Web.Port)
	}
	if cfg.Audio.FrameLength != 1600 {
		t.Errorf("expected Audio.FrameLength default 1600, got %d", cfg.Audio.FrameLength)
	}
	if cfg.Timers.GrantConfirm != 200*time.Millisecond {
		t.Errorf("expected Timers.GrantConfirm default 200ms, got %s", cfg.Timers.GrantConfirm)
	}
	if cfg.Timers.AudioTimeout != 3*time.Second {
		t.Errorf("expected Timers.AudioTimeout default 3s, got %s", cfg.Timers.AudioTimeout)
	}
	if cfg.Tone.FFTSize != 2048 {
		t.Errorf("expected Tone.FFTSize default 2048, got %d", cfg.Tone.FFTSize)
	}
	if cfg.Alerts.BeepVolumeReduction != 0.6 {
		t.Errorf("expected Alerts.BeepVolumeReduction default 0.6, got %v", cfg.Alerts.BeepVolumeReduction)
	}
	if cfg.Metrics.Prometheus.Port != 9090 {
		t.Errorf("expected Prometheus.Port default 9090, got %d", cfg.Metrics.Prometheus.Port)
	}
	if len(cfg.Warnings) != 0 {
		t.Errorf("expected no warnings for defaults, got %v", cfg.Warnings)
	}
}

func TestLoad_FileAndEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
radio:
  rid: "1001"
  codeplug: /etc/wlink/cp.yml
timers:
  grant_confirm: 350ms
  reconnect: 3s
alerts:
  beep_volume_reduction: 1.7
logging:
  format: json
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	t.Setenv("WLINK_RADIO_MODEL", "APX6000")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "1001", cfg.Radio.RID)
	assert.Equal(t, "APX6000", cfg.Radio.Model)
	assert.Equal(t, "/etc/wlink/cp.yml", cfg.Radio.Codeplug)
	assert.Equal(t, 350*time.Millisecond, cfg.Timers.GrantConfirm)
	assert.Equal(t, 3*time.Second, cfg.Timers.Reconnect)
	assert.Equal(t, "json", cfg.Logging.Format)

	assert.Equal(t, 1.0, cfg.Alerts.BeepVolumeReduction)
	require.Len(t, cfg.Warnings, 1)
	assert.Contains(t, cfg.Warnings[0], "beep_volume_reduction")
}

func TestLoad_MalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("radio: [unterminated"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func validConfig() *Config {
	return &Config{
		Radio:   RadioConfig{Codeplug: "cp.yml"},
		Web:     WebConfig{Enabled: true, Port: 8080},
		Metrics: MetricsConfig{Enabled: true, Prometheus: PrometheusConfig{Enabled: true, Port: 9090}},
	}
}

func TestValidate_Errors(t *testing.T) {
	if err := validate(validConfig()); err != nil {
		t.Fatalf("baseline config should be valid: %v", err)
	}

	t.Run("missing codeplug path", func(t *testing.T) {
		cfg := validConfig()
		cfg.Radio.Codeplug = " "
		if err := validate(cfg); err == nil {
			t.Fatal("expected error for empty radio.codeplug")
		}
	})

	t.Run("non-numeric rid", func(t *testing.T) {
		cfg := validConfig()
		cfg.Radio.RID = "10a1"
		if err := validate(cfg); err == nil {
			t.Fatal("expected error for non-numeric radio.rid")
		}
	})

	t.Run("invalid web port when enabled", func(t *testing.T) {
		cfg := validConfig()
		cfg.Web.Port = 70000
		if err := validate(cfg); err == nil {
			t.Fatal("expected error for invalid web.port out of range")
		}
	})

	t.Run("web auth without credentials", func(t *testing.T) {
		cfg := validConfig()
		cfg.Web.AuthRequired = true
		if err := validate(cfg); err == nil {
			t.Fatal("expected error for auth without credentials")
		}
	})

	t.Run("metrics port collides with web", func(t *testing.T) {
		cfg := validConfig()
		cfg.Metrics.Prometheus.Port = 8080
		if err := validate(cfg); err == nil {
			t.Fatal("expected error for port conflict")
		}
	})

	t.Run("alias without url", func(t *testing.T) {
		cfg := validConfig()
		cfg.Database = DatabaseConfig{Enabled: true, Path: "x.db"}
		cfg.Alias.Enabled = true
		if err := validate(cfg); err == nil {
			t.Fatal("expected error for alias sync without url")
		}
	})

	t.Run("alias without database", func(t *testing.T) {
		cfg := validConfig()
		cfg.Alias = AliasConfig{Enabled: true, URL: "http://example.invalid/rid.csv"}
		if err := validate(cfg); err == nil {
			t.Fatal("expected error for alias sync without database")
		}
	})

	t.Run("unknown log format", func(t *testing.T) {
		cfg := validConfig()
		cfg.Logging.Format = "xml"
		if err := validate(cfg); err == nil {
			t.Fatal("expected error for unknown logging.format")
		}
	})
}

func TestNormalize_ClampsTunables(t *testing.T) {
	cfg := validConfig()
	cfg.Alerts.BeepVolumeReduction = -0.5
	cfg.Audio = AudioConfig{FrameLength: 1600, SampleRate: 8000, Volume: 3}
	cfg.Radio.RSSI = 9
	cfg.Tone = ToneConfig{
		FFTSize:      1000,
		MinFrequency: 300,
		MaxFrequency: 3000,
		HistorySize:  10,
		AMin:         900 * time.Millisecond,
		AMax:         1200 * time.Millisecond,
		BMin:         4 * time.Second,
		BMax:         3 * time.Second,
	}

	warnings := normalize(cfg)

	assert.Equal(t, 0.0, cfg.Alerts.BeepVolumeReduction)
	assert.Equal(t, 1.0, cfg.Audio.Volume)
	assert.Equal(t, 4, cfg.Radio.RSSI)
	assert.Equal(t, 2048, cfg.Tone.FFTSize)
	assert.Equal(t, 2500*time.Millisecond, cfg.Tone.BMin)
	assert.Equal(t, 3500*time.Millisecond, cfg.Tone.BMax)
	assert.Equal(t, 200*time.Millisecond, cfg.Timers.GrantConfirm, "zero timers fall back to defaults")
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.NotEmpty(t, warnings)
}
