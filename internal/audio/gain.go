package audio

import "fmt"

// Channel identifies an input channel, matching the firmware's
// audio_channel_t front-left/front-right pair.
type Channel int

const (
	ChannelLeft Channel = iota
	ChannelRight
)

func (c Channel) String() string {
	switch c {
	case ChannelLeft:
		return "left"
	case ChannelRight:
		return "right"
	default:
		return "unknown"
	}
}

// GainKind distinguishes the analog and digital gain stages exposed per
// channel.
type GainKind int

const (
	GainAnalog GainKind = iota
	GainDigital
)

func (k GainKind) settingName() string {
	if k == GainAnalog {
		return "a_gain"
	}
	return "d_gain"
}

// CodecGainControl is the capability interface a codec driver exposes for
// reading/writing per-channel gain, mirroring the firmware's
// input_codec_set_property/get_property calls.
type CodecGainControl interface {
	SetGain(ch Channel, kind GainKind, value int32) error
	GetGain(ch Channel, kind GainKind) (int32, error)
}

// SettingsKey returns the persisted settings key for a channel/kind pair,
// matching spec.md §6's "audio/ch/{left|right}/{a_gain|d_gain}" scheme.
func SettingsKey(ch Channel, kind GainKind) string {
	return fmt.Sprintf("audio/ch/%s/%s", ch, kind.settingName())
}

// GainStore persists gain settings by key; SetGain writes through it on
// every change. No implementation of it lives in this module, and nothing
// here loads stored gains at boot.
type GainStore interface {
	SetInt32(key string, value int32) error
}

// SetGain applies value to the codec and persists it, matching
// audio_set_analog_gain/audio_set_digital_gain.
func SetGain(codec CodecGainControl, store GainStore, ch Channel, kind GainKind, value int32) error {
	if err := codec.SetGain(ch, kind, value); err != nil {
		return fmt.Errorf("audio: set %s gain for %s: %w", kind.settingName(), ch, err)
	}
	return store.SetInt32(SettingsKey(ch, kind), value)
}
