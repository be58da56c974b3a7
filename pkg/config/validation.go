package config

import (
	"fmt"
	"strings"
	"time"
)

// validate rejects structural errors that make startup impossible
func validate(cfg *Config) error {
	// Validate radio config
	if strings.TrimSpace(cfg.Radio.Codeplug) == "" {
		return fmt.Errorf("radio.codeplug is required")
	}
	if cfg.Radio.RID != "" {
		for _, r := range cfg.Radio.RID {
			if r < '0' || r > '9' {
				return fmt.Errorf("radio.rid must be numeric, got %q", cfg.Radio.RID)
			}
		}
	}

	// Validate web config
	if cfg.Web.Enabled {
		if cfg.Web.Port <= 0 || cfg.Web.Port > 65535 {
			return fmt.Errorf("web.port must be between 1 and 65535")
		}
		if cfg.Web.AuthRequired && (cfg.Web.Username == "" || cfg.Web.Password == "") {
			return fmt.Errorf("web.username and web.password are required when web.auth_required is set")
		}
	}

	// Validate metrics config
	if cfg.Metrics.Enabled && cfg.Metrics.Prometheus.Enabled {
		if cfg.Metrics.Prometheus.Port <= 0 || cfg.Metrics.Prometheus.Port > 65535 {
			return fmt.Errorf("metrics.prometheus.port must be between 1 and 65535")
		}
		if cfg.Web.Enabled && cfg.Web.Port == cfg.Metrics.Prometheus.Port {
			return fmt.Errorf("metrics.prometheus.port conflicts with web.port %d", cfg.Web.Port)
		}
	}

	// Validate database config
	if cfg.Database.Enabled && cfg.Database.Path == "" {
		return fmt.Errorf("database.path is required when database is enabled")
	}

	// Validate alias config
	if cfg.Alias.Enabled {
		if cfg.Alias.URL == "" {
			return fmt.Errorf("alias.url is required when alias sync is enabled")
		}
		if !cfg.Database.Enabled {
			return fmt.Errorf("alias sync requires database.enabled")
		}
	}

	// Validate logging config
	switch strings.ToLower(cfg.Logging.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", cfg.Logging.Format)
	}

	return nil
}

// normalize clamps or defaults tunables that are out of range. It never
// fails; every adjustment is returned as a warning for the caller to log.
func normalize(cfg *Config) []string {
	var warnings []string
	warn := func(format string, args ...any) {
		warnings = append(warnings, fmt.Sprintf(format, args...))
	}

	if r := cfg.Alerts.BeepVolumeReduction; r < 0 {
		warn("alerts.beep_volume_reduction %.2f is less than 0, clamping to 0", r)
		cfg.Alerts.BeepVolumeReduction = 0
	} else if r > 1 {
		warn("alerts.beep_volume_reduction %.2f is greater than 1, clamping to 1", r)
		cfg.Alerts.BeepVolumeReduction = 1
	}

	if v := cfg.Audio.Volume; v < 0.1 || v > 1 {
		clamped := min(max(v, 0.1), 1.0)
		warn("audio.volume %.2f out of range, clamping to %.1f", v, clamped)
		cfg.Audio.Volume = clamped
	}

	if cfg.Radio.RSSI < 0 || cfg.Radio.RSSI > 4 {
		clamped := min(max(cfg.Radio.RSSI, 0), 4)
		warn("radio.rssi %d out of range, clamping to %d", cfg.Radio.RSSI, clamped)
		cfg.Radio.RSSI = clamped
	}

	if cfg.Audio.FrameLength <= 0 {
		warn("audio.frame_length %d must be positive, using 1600", cfg.Audio.FrameLength)
		cfg.Audio.FrameLength = 1600
	}
	if cfg.Audio.SampleRate <= 0 {
		warn("audio.sample_rate %d must be positive, using 8000", cfg.Audio.SampleRate)
		cfg.Audio.SampleRate = 8000
	}
	if p := cfg.Audio.FringeDropout; p < 0 || p > 1 {
		warn("audio.fringe_dropout %.2f out of range, using 0.15", p)
		cfg.Audio.FringeDropout = 0.15
	}
	if n := cfg.Audio.FringeNoise; n < 0 || n > 1 {
		warn("audio.fringe_noise %.2f out of range, using 0.02", n)
		cfg.Audio.FringeNoise = 0.02
	}

	if n := cfg.Tone.FFTSize; n <= 0 || n&(n-1) != 0 {
		warn("tone.fft_size %d is not a power of two, using 2048", n)
		cfg.Tone.FFTSize = 2048
	}
	if cfg.Tone.MinFrequency <= 0 || cfg.Tone.MaxFrequency <= cfg.Tone.MinFrequency {
		warn("tone band %d-%d Hz is invalid, using 300-3000", cfg.Tone.MinFrequency, cfg.Tone.MaxFrequency)
		cfg.Tone.MinFrequency = 300
		cfg.Tone.MaxFrequency = 3000
	}
	if cfg.Tone.HistorySize < 2 {
		warn("tone.history_size %d is too small, using 10", cfg.Tone.HistorySize)
		cfg.Tone.HistorySize = 10
	}
	if cfg.Tone.AMin > cfg.Tone.AMax {
		warn("tone.a_min %s exceeds tone.a_max %s, using 900ms-1200ms", cfg.Tone.AMin, cfg.Tone.AMax)
		cfg.Tone.AMin, cfg.Tone.AMax = 900*time.Millisecond, 1200*time.Millisecond
	}
	if cfg.Tone.BMin > cfg.Tone.BMax {
		warn("tone.b_min %s exceeds tone.b_max %s, using 2500ms-3500ms", cfg.Tone.BMin, cfg.Tone.BMax)
		cfg.Tone.BMin, cfg.Tone.BMax = 2500*time.Millisecond, 3500*time.Millisecond
	}

	timers := []struct {
		name string
		val  *time.Duration
		def  time.Duration
	}{
		{"timers.reconnect", &cfg.Timers.Reconnect, 2 * time.Second},
		{"timers.registration", &cfg.Timers.Registration, 5 * time.Second},
		{"timers.affiliation", &cfg.Timers.Affiliation, 5 * time.Second},
		{"timers.audio_check", &cfg.Timers.AudioCheck, time.Second},
		{"timers.audio_timeout", &cfg.Timers.AudioTimeout, 3 * time.Second},
		{"timers.tone_flush", &cfg.Timers.ToneFlush, 200 * time.Millisecond},
		{"timers.location", &cfg.Timers.Location, 8 * time.Second},
		{"timers.battery", &cfg.Timers.Battery, time.Hour},
		{"timers.grant_confirm", &cfg.Timers.GrantConfirm, 200 * time.Millisecond},
		{"timers.boot_display", &cfg.Timers.BootDisplay, 1500 * time.Millisecond},
	}
	for _, t := range timers {
		if *t.val <= 0 {
			warn("%s must be positive, using %s", t.name, t.def)
			*t.val = t.def
		}
	}

	if cfg.Database.Retention < 0 {
		warn("database.retention %s is negative, keeping history forever", cfg.Database.Retention)
		cfg.Database.Retention = 0
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}

	return warnings
}
