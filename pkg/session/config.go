package session

import (
	"time"

	"github.com/dbehnke/wlink-terminal/pkg/audio"
	"github.com/dbehnke/wlink-terminal/pkg/config"
	"github.com/dbehnke/wlink-terminal/pkg/tone"
)

// Config holds the session's identity defaults, delays and audio settings
type Config struct {
	RID           string
	Model         string
	HostVersion   string
	FlyingVehicle bool
	RSSI          int
	Latitude      *float64
	Longitude     *float64

	GrantConfirm      time.Duration // stale grant window after our own grant
	PTTKeyDelay       time.Duration
	PTTReleaseDelay   time.Duration
	InitialRegister   time.Duration // first registration after connect
	RegistrationGrace time.Duration // wait before showing a refusal
	DisplaySettle     time.Duration
	VolumeDebounce    time.Duration
	PageDisplay       time.Duration
	EmergencyDisplay  time.Duration
	AudioTimeout      time.Duration
	BootDisplay       time.Duration

	FrameLength   int
	SampleRate    int
	Volume        float64
	FringeLevel   int
	FringeSeed    int64
	FringeDropout float64
	FringeNoise   float64
	RMSScale      float64

	BeepVolumeReduction float64
	VoiceAnnounce       bool // a speech synthesis key is configured

	Tone tone.Config
}

// DefaultConfig returns the stock radio timings
func DefaultConfig() Config {
	return Config{
		HostVersion:         "R03.01.00",
		RSSI:                4,
		GrantConfirm:        200 * time.Millisecond,
		PTTKeyDelay:         50 * time.Millisecond,
		PTTReleaseDelay:     655 * time.Millisecond,
		InitialRegister:     2 * time.Second,
		RegistrationGrace:   800 * time.Millisecond,
		DisplaySettle:       75 * time.Millisecond,
		VolumeDebounce:      550 * time.Millisecond,
		PageDisplay:         3 * time.Second,
		EmergencyDisplay:    5 * time.Second,
		AudioTimeout:        3 * time.Second,
		BootDisplay:         1500 * time.Millisecond,
		FrameLength:         audio.DefaultFrameLength,
		SampleRate:          8000,
		Volume:              1.0,
		FringeLevel:         1,
		FringeDropout:       0.15,
		FringeNoise:         0.02,
		RMSScale:            30,
		BeepVolumeReduction: 0.6,
		Tone:                tone.DefaultConfig(),
	}
}

// NewConfig maps the application configuration onto session settings
func NewConfig(cfg *config.Config) Config {
	c := Config{
		RID:           cfg.Radio.RID,
		Model:         cfg.Radio.Model,
		HostVersion:   cfg.Radio.HostVersion,
		FlyingVehicle: cfg.Radio.FlyingVehicle,
		RSSI:          cfg.Radio.RSSI,

		GrantConfirm:      cfg.Timers.GrantConfirm,
		PTTKeyDelay:       cfg.Timers.PTTKeyDelay,
		PTTReleaseDelay:   cfg.Timers.PTTReleaseDelay,
		InitialRegister:   cfg.Timers.InitialRegister,
		RegistrationGrace: cfg.Timers.RegistrationGrace,
		DisplaySettle:     cfg.Timers.DisplaySettle,
		VolumeDebounce:    cfg.Timers.VolumeDebounce,
		PageDisplay:       cfg.Timers.PageDisplay,
		EmergencyDisplay:  cfg.Timers.EmergencyDisplay,
		AudioTimeout:      cfg.Timers.AudioTimeout,
		BootDisplay:       cfg.Timers.BootDisplay,

		FrameLength:   cfg.Audio.FrameLength,
		SampleRate:    cfg.Audio.SampleRate,
		Volume:        cfg.Audio.Volume,
		FringeLevel:   cfg.Audio.FringeLevel,
		FringeSeed:    cfg.Audio.FringeSeed,
		FringeDropout: cfg.Audio.FringeDropout,
		FringeNoise:   cfg.Audio.FringeNoise,
		RMSScale:      cfg.Audio.RMSScale,

		BeepVolumeReduction: cfg.Alerts.BeepVolumeReduction,
		VoiceAnnounce:       cfg.Alerts.ResponsiveVoiceAPIKey != "",

		Tone: tone.Config{
			SampleRate:            cfg.Audio.SampleRate,
			FFTSize:               cfg.Tone.FFTSize,
			MinFrequency:          cfg.Tone.MinFrequency,
			MaxFrequency:          cfg.Tone.MaxFrequency,
			ContinuationTolerance: cfg.Tone.ContinuationTolerance,
			MatchTolerance:        cfg.Tone.MatchTolerance,
			AMin:                  cfg.Tone.AMin,
			AMax:                  cfg.Tone.AMax,
			BMin:                  cfg.Tone.BMin,
			BMax:                  cfg.Tone.BMax,
			FlushMin:              cfg.Tone.FlushMin,
			FlushMax:              cfg.Tone.FlushMax,
			HistorySize:           cfg.Tone.HistorySize,
		},
	}

	if cfg.Radio.Latitude != 0 || cfg.Radio.Longitude != 0 {
		lat, long := cfg.Radio.Latitude, cfg.Radio.Longitude
		c.Latitude, c.Longitude = &lat, &long
	}
	return c
}
