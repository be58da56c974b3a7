package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	Radio    RadioConfig    `mapstructure:"radio"`
	Timers   TimersConfig   `mapstructure:"timers"`
	Audio    AudioConfig    `mapstructure:"audio"`
	Tone     ToneConfig     `mapstructure:"tone"`
	Alerts   AlertsConfig   `mapstructure:"alerts"`
	Web      WebConfig      `mapstructure:"web"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Database DatabaseConfig `mapstructure:"database"`
	Alias    AliasConfig    `mapstructure:"alias"`
	Logging  LoggingConfig  `mapstructure:"logging"`

	// Warnings lists tunables that were clamped or defaulted during Load
	Warnings []string `mapstructure:"-"`
}

// RadioConfig holds the unit identity and codeplug location
type RadioConfig struct {
	RID           string  `mapstructure:"rid"`            // Unit ID, empty until provisioned
	Model         string  `mapstructure:"model"`          // Overrides codeplug radioWide.model when set
	Codeplug      string  `mapstructure:"codeplug"`       // Path to the YAML codeplug
	FlyingVehicle bool    `mapstructure:"flying_vehicle"` // Aircraft never go out of range
	HostVersion   string  `mapstructure:"host_version"`   // Shown on the boot screen
	RSSI          int     `mapstructure:"rssi"`           // Initial signal level (0-4)
	Latitude      float64 `mapstructure:"latitude"`
	Longitude     float64 `mapstructure:"longitude"`
	PowerOn       bool    `mapstructure:"power_on"` // Power on at startup
}

// TimersConfig holds every watchdog interval and session delay
type TimersConfig struct {
	Reconnect         time.Duration `mapstructure:"reconnect"`
	Registration      time.Duration `mapstructure:"registration"`
	Affiliation       time.Duration `mapstructure:"affiliation"`
	AudioCheck        time.Duration `mapstructure:"audio_check"`
	AudioTimeout      time.Duration `mapstructure:"audio_timeout"`
	ToneFlush         time.Duration `mapstructure:"tone_flush"`
	Location          time.Duration `mapstructure:"location"`
	Battery           time.Duration `mapstructure:"battery"`
	GrantConfirm      time.Duration `mapstructure:"grant_confirm"`
	PTTKeyDelay       time.Duration `mapstructure:"ptt_key_delay"`
	PTTReleaseDelay   time.Duration `mapstructure:"ptt_release_delay"`
	InitialRegister   time.Duration `mapstructure:"initial_register"`
	RegistrationGrace time.Duration `mapstructure:"registration_grace"`
	DisplaySettle     time.Duration `mapstructure:"display_settle"`
	VolumeDebounce    time.Duration `mapstructure:"volume_debounce"`
	PageDisplay       time.Duration `mapstructure:"page_display"`
	EmergencyDisplay  time.Duration `mapstructure:"emergency_display"`
	BootDisplay       time.Duration `mapstructure:"boot_display"`
}

// AudioConfig holds PCM framing and fringe simulation settings
type AudioConfig struct {
	FrameLength   int     `mapstructure:"frame_length"`   // Samples per outbound frame
	SampleRate    int     `mapstructure:"sample_rate"`    // Hz
	Volume        float64 `mapstructure:"volume"`         // Initial volume (0.1-1.0)
	FringeLevel   int     `mapstructure:"fringe_level"`   // RSSI at or below which transmit audio is degraded
	FringeSeed    int64   `mapstructure:"fringe_seed"`    // 0 seeds from the clock
	FringeDropout float64 `mapstructure:"fringe_dropout"` // Probability a 20 ms block is muted
	FringeNoise   float64 `mapstructure:"fringe_noise"`   // Noise amplitude as a fraction of full scale
	RMSScale      float64 `mapstructure:"rms_scale"`      // Multiplier applied to capture RMS before sending
}

// ToneConfig holds QC2 detector parameters
type ToneConfig struct {
	FFTSize               int           `mapstructure:"fft_size"`
	MinFrequency          int           `mapstructure:"min_frequency"`
	MaxFrequency          int           `mapstructure:"max_frequency"`
	ContinuationTolerance int           `mapstructure:"continuation_tolerance"`
	MatchTolerance        int           `mapstructure:"match_tolerance"`
	AMin                  time.Duration `mapstructure:"a_min"`
	AMax                  time.Duration `mapstructure:"a_max"`
	BMin                  time.Duration `mapstructure:"b_min"`
	BMax                  time.Duration `mapstructure:"b_max"`
	FlushMin              time.Duration `mapstructure:"flush_min"`
	FlushMax              time.Duration `mapstructure:"flush_max"`
	HistorySize           int           `mapstructure:"history_size"`
}

// AlertsConfig holds cue and announcement settings
type AlertsConfig struct {
	BeepVolumeReduction   float64 `mapstructure:"beep_volume_reduction"`
	ResponsiveVoiceAPIKey string  `mapstructure:"responsive_voice_api_key"`
}

// WebConfig holds local HTTP API configuration
type WebConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	AuthRequired bool   `mapstructure:"auth_required"`
	Username     string `mapstructure:"username"`
	Password     string `mapstructure:"password"`
}

// MetricsConfig holds metrics configuration
type MetricsConfig struct {
	Enabled    bool             `mapstructure:"enabled"`
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
}

// PrometheusConfig holds Prometheus metrics configuration
type PrometheusConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    int    `mapstructure:"port"`
	Path    string `mapstructure:"path"`
}

// DatabaseConfig holds call log persistence configuration
type DatabaseConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	Path      string        `mapstructure:"path"`
	Retention time.Duration `mapstructure:"retention"` // Zero keeps history forever
}

// AliasConfig holds RID alias sync configuration
type AliasConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	URL      string        `mapstructure:"url"`
	Interval time.Duration `mapstructure:"interval"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

// Load loads configuration from file and environment variables
func Load(configFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/wlink-terminal")
	}

	// WLINK_RADIO_RID overrides radio.rid
	v.SetEnvPrefix("WLINK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found is OK, use defaults
		} else if os.IsNotExist(err) {
			// File explicitly specified but doesn't exist - that's also OK
		} else {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	config.Warnings = normalize(&config)

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Radio defaults. Keys without a meaningful default are still
	// registered so that WLINK_* environment overrides are picked up.
	v.SetDefault("radio.rid", "")
	v.SetDefault("radio.model", "")
	v.SetDefault("radio.flying_vehicle", false)
	v.SetDefault("radio.latitude", 0.0)
	v.SetDefault("radio.longitude", 0.0)
	v.SetDefault("radio.codeplug", "codeplug.yml")
	v.SetDefault("radio.host_version", "R03.01.00")
	v.SetDefault("radio.rssi", 4)
	v.SetDefault("radio.power_on", true)

	// Timer defaults
	v.SetDefault("timers.reconnect", 2*time.Second)
	v.SetDefault("timers.registration", 5*time.Second)
	v.SetDefault("timers.affiliation", 5*time.Second)
	v.SetDefault("timers.audio_check", time.Second)
	v.SetDefault("timers.audio_timeout", 3*time.Second)
	v.SetDefault("timers.tone_flush", 200*time.Millisecond)
	v.SetDefault("timers.location", 8*time.Second)
	v.SetDefault("timers.battery", time.Hour)
	v.SetDefault("timers.grant_confirm", 200*time.Millisecond)
	v.SetDefault("timers.ptt_key_delay", 50*time.Millisecond)
	v.SetDefault("timers.ptt_release_delay", 655*time.Millisecond)
	v.SetDefault("timers.initial_register", 2*time.Second)
	v.SetDefault("timers.registration_grace", 800*time.Millisecond)
	v.SetDefault("timers.display_settle", 75*time.Millisecond)
	v.SetDefault("timers.volume_debounce", 550*time.Millisecond)
	v.SetDefault("timers.page_display", 3*time.Second)
	v.SetDefault("timers.emergency_display", 5*time.Second)
	v.SetDefault("timers.boot_display", 1500*time.Millisecond)

	// Audio defaults
	v.SetDefault("audio.frame_length", 1600)
	v.SetDefault("audio.sample_rate", 8000)
	v.SetDefault("audio.volume", 1.0)
	v.SetDefault("audio.fringe_level", 1)
	v.SetDefault("audio.fringe_seed", 0)
	v.SetDefault("audio.fringe_dropout", 0.15)
	v.SetDefault("audio.fringe_noise", 0.02)
	v.SetDefault("audio.rms_scale", 30.0)

	// Tone defaults
	v.SetDefault("tone.fft_size", 2048)
	v.SetDefault("tone.min_frequency", 300)
	v.SetDefault("tone.max_frequency", 3000)
	v.SetDefault("tone.continuation_tolerance", 10)
	v.SetDefault("tone.match_tolerance", 5)
	v.SetDefault("tone.a_min", 900*time.Millisecond)
	v.SetDefault("tone.a_max", 1200*time.Millisecond)
	v.SetDefault("tone.b_min", 2500*time.Millisecond)
	v.SetDefault("tone.b_max", 3500*time.Millisecond)
	v.SetDefault("tone.flush_min", 2500*time.Millisecond)
	v.SetDefault("tone.flush_max", 4000*time.Millisecond)
	v.SetDefault("tone.history_size", 10)

	// Alert defaults
	v.SetDefault("alerts.beep_volume_reduction", 0.6)
	v.SetDefault("alerts.responsive_voice_api_key", "")

	// Web defaults
	v.SetDefault("web.enabled", true)
	v.SetDefault("web.host", "127.0.0.1")
	v.SetDefault("web.port", 8080)
	v.SetDefault("web.auth_required", false)
	v.SetDefault("web.username", "")
	v.SetDefault("web.password", "")

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.prometheus.enabled", true)
	v.SetDefault("metrics.prometheus.port", 9090)
	v.SetDefault("metrics.prometheus.path", "/metrics")

	// Database defaults
	v.SetDefault("database.enabled", true)
	v.SetDefault("database.path", "wlink-terminal.db")
	v.SetDefault("database.retention", 30*24*time.Hour)

	// Alias defaults
	v.SetDefault("alias.enabled", false)
	v.SetDefault("alias.url", "")
	v.SetDefault("alias.interval", 24*time.Hour)
	v.SetDefault("alias.timeout", 2*time.Minute)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.file", "")
}
