package audio

import (
	"context"
	"fmt"

	"github.com/gordonklaus/portaudio"
)

// PortAudioSource is a BlockSource backed by a real input device via
// portaudio, replacing the teacher's cgo ALSA/OSS path (audio.go) with the
// pure-Go binding the teacher's go.mod already carried.
type PortAudioSource struct {
	stream    *portaudio.Stream
	buf       []int32
	blockSize int
}

// OpenPortAudioSource opens the default input device for channels at
// sampleRate, buffering blockSizeFrames frames (32-bit samples) per read.
func OpenPortAudioSource(channels int, sampleRate float64, blockSizeFrames int) (*PortAudioSource, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("audio: portaudio init: %w", err)
	}

	buf := make([]int32, blockSizeFrames*channels)
	stream, err := portaudio.OpenDefaultStream(channels, 0, sampleRate, len(buf), buf)
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("audio: open default stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return nil, fmt.Errorf("audio: start stream: %w", err)
	}

	return &PortAudioSource{stream: stream, buf: buf, blockSize: len(buf)}, nil
}

// ReadBlock blocks until one buffer of 32-bit LE samples is available.
func (s *PortAudioSource) ReadBlock(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.stream.Read(); err != nil {
		return nil, fmt.Errorf("audio: stream read: %w", err)
	}
	out := make([]byte, len(s.buf)*4)
	for i, sample := range s.buf {
		out[i*4] = byte(sample)
		out[i*4+1] = byte(sample >> 8)
		out[i*4+2] = byte(sample >> 16)
		out[i*4+3] = byte(sample >> 24)
	}
	return out, nil
}

// Restart stops and restarts the open stream after a transient I/O error.
func (s *PortAudioSource) Restart(ctx context.Context) error {
	if err := s.stream.Stop(); err != nil {
		return fmt.Errorf("audio: stop stream: %w", err)
	}
	if err := s.stream.Start(); err != nil {
		return fmt.Errorf("audio: restart stream: %w", err)
	}
	return nil
}

// Close stops the stream and releases portaudio resources.
func (s *PortAudioSource) Close() error {
	err := s.stream.Close()
	portaudio.Terminate()
	return err
}
