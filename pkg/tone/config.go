package tone

import "time"

// Config holds detector parameters
type Config struct {
	SampleRate            int
	FFTSize               int
	MinFrequency          int // Hz, inclusive
	MaxFrequency          int // Hz, inclusive
	ContinuationTolerance int // Hz
	MatchTolerance        int // Hz
	AMin, AMax            time.Duration
	BMin, BMax            time.Duration
	FlushMin, FlushMax    time.Duration
	HistorySize           int
}

// DefaultConfig returns the standard QC2 timing
func DefaultConfig() Config {
	return Config{
		SampleRate:            8000,
		FFTSize:               2048,
		MinFrequency:          300,
		MaxFrequency:          3000,
		ContinuationTolerance: 10,
		MatchTolerance:        5,
		AMin:                  900 * time.Millisecond,
		AMax:                  1200 * time.Millisecond,
		BMin:                  2500 * time.Millisecond,
		BMax:                  3500 * time.Millisecond,
		FlushMin:              2500 * time.Millisecond,
		FlushMax:              4000 * time.Millisecond,
		HistorySize:           10,
	}
}
