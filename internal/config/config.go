// Package config provides configuration defaults and TOML parsing.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// Audio holds capture and playback settings.
type Audio struct {
	SampleRate  int     `toml:"sample-rate"`
	FrameSize   int     `toml:"frame-size"`
	Channels    int     `toml:"channels"`
	Sensitivity float64 `toml:"sensitivity"` // RMS floor below which a frame counts as silence
}

// Detection holds pitch-estimation tunables. The defaults follow the
// behavior of the reference harmonium tuner, not hard theory: they are
// product-tuning constants and deliberately live here, not in code.
type Detection struct {
	YinThreshold  float64 `toml:"yin-threshold"`  // CMNDF absolute threshold
	MinConfidence float64 `toml:"min-confidence"` // below this a sample never scores
	MinFrequency  float64 `toml:"min-frequency"`  // Hz, vocal range lower bound
	MaxFrequency  float64 `toml:"max-frequency"`  // Hz, vocal range upper bound
	SmoothWindow  int     `toml:"smooth-window"`  // median smoother length, 0 disables
}

// Scoring holds free-practice and guided-session tunables.
type Scoring struct {
	ToleranceCents float64       `toml:"tolerance-cents"` // on-pitch window around the target
	StabilityCents float64       `toml:"stability-cents"` // band around rolling median
	HistorySize    int           `toml:"history-size"`    // rolling frequency buffer length
	NoteDuration   time.Duration `toml:"note-duration"`   // guided LISTEN phase length
	AnnounceDelay  time.Duration `toml:"announce-delay"`  // gap between tone and LISTEN
}

// Synth holds tone/drone/metronome settings.
type Synth struct {
	Volume   float64 `toml:"volume"`
	ToneSecs float64 `toml:"tone-secs"` // default tone length for note previews
	BPM      int     `toml:"bpm"`
	BeatsBar int     `toml:"beats-bar"`
}

// Config is the root configuration.
type Config struct {
	Tonic     float64   `toml:"tonic"` // Sa in Hz
	LogLevel  string    `toml:"log-level"`
	StorePath string    `toml:"store-path"`
	Audio     Audio     `toml:"audio"`
	Detection Detection `toml:"detection"`
	Scoring   Scoring   `toml:"scoring"`
	Synth     Synth     `toml:"synth"`
}

// Default returns the built-in configuration: A3 Sa, 44.1 kHz capture in
// 2048-sample frames, and detection thresholds tuned for a solo voice.
func Default() Config {
	return Config{
		Tonic:     220.0,
		LogLevel:  "info",
		StorePath: "",
		Audio: Audio{
			SampleRate:  44100,
			FrameSize:   2048,
			Channels:    1,
			Sensitivity: 0.01,
		},
		Detection: Detection{
			YinThreshold:  0.15,
			MinConfidence: 0.50,
			MinFrequency:  60.0,
			MaxFrequency:  1200.0,
			SmoothWindow:  7,
		},
		Scoring: Scoring{
			ToleranceCents: 20.0,
			StabilityCents: 10.0,
			HistorySize:    150,
			NoteDuration:   4 * time.Second,
			AnnounceDelay:  1750 * time.Millisecond,
		},
		Synth: Synth{
			Volume:   0.55,
			ToneSecs: 1.5,
			BPM:      80,
			BeatsBar: 4,
		},
	}
}

// Load reads a TOML config from the given path on top of the defaults.
// A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("failed to stat config: %w", err)
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate rejects settings that would break the pipeline before any
// thread state changes.
func (c Config) Validate() error {
	if c.Tonic <= 0 {
		return fmt.Errorf("tonic must be positive, got %.2f", c.Tonic)
	}
	if c.Audio.SampleRate <= 0 {
		return fmt.Errorf("sample rate must be positive, got %d", c.Audio.SampleRate)
	}
	if c.Audio.FrameSize < 256 {
		return fmt.Errorf("frame size too small: %d", c.Audio.FrameSize)
	}
	if c.Detection.MinFrequency <= 0 || c.Detection.MaxFrequency <= c.Detection.MinFrequency {
		return fmt.Errorf("invalid vocal range %.1f-%.1f Hz",
			c.Detection.MinFrequency, c.Detection.MaxFrequency)
	}
	if c.Scoring.ToleranceCents <= 0 {
		return fmt.Errorf("tolerance must be positive, got %.1f cents", c.Scoring.ToleranceCents)
	}
	if c.Synth.BPM < 20 || c.Synth.BPM > 300 {
		return fmt.Errorf("bpm out of range: %d", c.Synth.BPM)
	}
	if c.Synth.BeatsBar < 1 || c.Synth.BeatsBar > 16 {
		return fmt.Errorf("beats per bar out of range: %d", c.Synth.BeatsBar)
	}
	return nil
}
