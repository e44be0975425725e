// Package config loads the on-disk YAML configuration for both node roles,
// read once at startup the way the teacher's deviceid.go loads
// tocalls.yaml: a single file, searched across a short list of candidate
// locations, parsed with gopkg.in/yaml.v3 into plain Go structs.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// searchLocations mirrors deviceid.go's layered search list: current
// directory first, then an install-tree location, then a system path.
var searchLocations = []string{
	"fleetsync.yaml",
	"./config/fleetsync.yaml",
	"/etc/fleetsync/fleetsync.yaml",
}

// Central holds the on-disk configuration for the central node: the
// beacon broadcast cadence and the multicast endpoint audio nodes join.
type Central struct {
	BeaconIntervalMS int    `yaml:"beacon_interval_ms"`
	MulticastGroup   string `yaml:"multicast_group"`
	Interface        string `yaml:"interface"`
	OperatorAddr     string `yaml:"operator_addr"`
	StartDelayTicks  uint32 `yaml:"start_delay_ticks"`
}

// Audio holds the on-disk configuration for an audio node: clock-recovery
// tuning, the codec's sample geometry, and where recordings are written.
type Audio struct {
	MulticastGroup   string  `yaml:"multicast_group"`
	Interface        string  `yaml:"interface"`
	NominalFreqHz    uint32  `yaml:"nominal_freq_hz"`
	SampleRateHz     uint32  `yaml:"sample_rate_hz"`
	BlockSizeFrames  uint32  `yaml:"block_size_frames"`
	Channels         int     `yaml:"channels"`
	BitsPerSample    int     `yaml:"bits_per_sample"`
	ClockRecovery    bool    `yaml:"clock_recovery"`
	KTheta           float64 `yaml:"k_theta"`
	KFreq            float64 `yaml:"k_freq"`
	MaxTrimStep      uint16  `yaml:"max_trim_step"`
	RecordingDir     string  `yaml:"recording_dir"`
	RealtimePriority int     `yaml:"realtime_priority"`
}

// Root is the top-level document; a deployment config carries whichever of
// Central/Audio applies to the node it configures.
type Root struct {
	Central *Central `yaml:"central"`
	Audio   *Audio   `yaml:"audio"`
}

// Load reads and parses path. An empty path searches searchLocations in
// order, the first readable file winning.
func Load(path string) (*Root, error) {
	data, resolved, err := read(path)
	if err != nil {
		return nil, err
	}

	var root Root
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", resolved, err)
	}
	return &root, nil
}

func read(path string) ([]byte, string, error) {
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, "", fmt.Errorf("config: read %s: %w", path, err)
		}
		return data, path, nil
	}

	var lastErr error
	for _, loc := range searchLocations {
		data, err := os.ReadFile(loc)
		if err == nil {
			return data, loc, nil
		}
		lastErr = err
	}
	return nil, "", fmt.Errorf("config: no config file found in %v: %w", searchLocations, lastErr)
}

// DefaultCentral returns the baseline central-node configuration used when
// no YAML file overrides a field.
func DefaultCentral() Central {
	return Central{
		BeaconIntervalMS: 100,
		MulticastGroup:   "239.192.1.1:17200",
		OperatorAddr:     ":17201",
		StartDelayTicks:  32000,
	}
}

// DefaultAudio returns the baseline audio-node configuration.
func DefaultAudio() Audio {
	return Audio{
		MulticastGroup:   "239.192.1.1:17200",
		NominalFreqHz:    16_000_000,
		SampleRateHz:     48000,
		BlockSizeFrames:  256,
		Channels:         2,
		BitsPerSample:    24,
		ClockRecovery:    true,
		KTheta:           0.01,
		KFreq:            4000,
		MaxTrimStep:      8,
		RecordingDir:     ".",
		RealtimePriority: 0,
	}
}
