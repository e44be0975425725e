// Package wav writes little-endian RIFF/WAVE PCM files: a single fmt chunk,
// a single data chunk, 44-byte header, with chunk sizes pre-filled to their
// maximum allowed value and patched to the true size on close.
//
// Ported from the recovered firmware's wav.c/wav.h.
package wav

import (
	"encoding/binary"
	"fmt"
	"os"
)

const (
	headerSize           = 44
	chunkSizeOffset      = 4
	subchunk2SizeOffset  = 40
)

// Format describes the PCM stream a Writer will contain.
type Format struct {
	Channels      uint16
	SampleRate    uint32
	BitsPerSample uint16
	// MaxFileSize bounds the data chunk's declared size so a file that is
	// never cleanly closed still carries a playable header.
	MaxFileSize uint32
}

// BytesPerFrame returns channels * ceil(bits/8), the frame size in bytes.
func (f Format) BytesPerFrame() uint32 {
	bytesPerSample := (uint32(f.BitsPerSample) + 7) / 8
	return uint32(f.Channels) * bytesPerSample
}

// Writer is an open WAVE file with a pre-written, patchable header.
type Writer struct {
	f             *os.File
	bytesPerFrame uint32
	maxDataSize   uint32
	dataSize      uint32
}

// Create opens name, truncating any existing file, and writes a WAVE header
// for fmt. The header's chunk sizes are set to fmt.MaxFileSize's implied
// maximum until Close patches them to the real size.
func Create(name string, format Format) (*Writer, error) {
	if format.Channels == 0 || format.SampleRate == 0 || format.BitsPerSample == 0 {
		return nil, fmt.Errorf("wav: create %s: invalid format %+v", name, format)
	}
	if format.MaxFileSize < headerSize {
		return nil, fmt.Errorf("wav: create %s: max file size %d smaller than header", name, format.MaxFileSize)
	}

	f, err := os.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("wav: create %s: %w", name, err)
	}

	bytesPerFrame := format.BytesPerFrame()
	maxDataSize := roundDown(format.MaxFileSize-headerSize, bytesPerFrame)
	byteRate := format.SampleRate * bytesPerFrame

	if err := writeHeader(f, format, bytesPerFrame, byteRate, maxDataSize); err != nil {
		f.Close()
		return nil, err
	}

	return &Writer{f: f, bytesPerFrame: bytesPerFrame, maxDataSize: maxDataSize}, nil
}

func writeHeader(f *os.File, format Format, bytesPerFrame, byteRate, maxDataSize uint32) error {
	var buf [headerSize]byte
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], maxDataSize+headerSize-8)
	copy(buf[8:12], "WAVE")
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(buf[22:24], format.Channels)
	binary.LittleEndian.PutUint32(buf[24:28], format.SampleRate)
	binary.LittleEndian.PutUint32(buf[28:32], byteRate)
	binary.LittleEndian.PutUint16(buf[32:34], uint16(bytesPerFrame))
	binary.LittleEndian.PutUint16(buf[34:36], format.BitsPerSample)
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], maxDataSize)

	_, err := f.Write(buf[:])
	if err != nil {
		return fmt.Errorf("wav: write header: %w", err)
	}
	return nil
}

// Write appends buf to the data chunk, silently truncating it if it would
// exceed the declared maximum data size.
func (w *Writer) Write(buf []byte) (int, error) {
	n := uint32(len(buf))
	if w.dataSize+n > w.maxDataSize {
		n = w.maxDataSize - w.dataSize
	}
	written, err := w.f.Write(buf[:n])
	w.dataSize += uint32(written)
	if err != nil {
		return written, fmt.Errorf("wav: write: %w", err)
	}
	return written, nil
}

// BytesPerFrame returns the frame size this writer was opened with.
func (w *Writer) BytesPerFrame() uint32 {
	return w.bytesPerFrame
}

// updateSize patches the RIFF chunk size and data chunk size to the actual
// (frame-rounded-down) number of bytes written so far.
func (w *Writer) updateSize() error {
	dataSize := roundDown(w.dataSize, w.bytesPerFrame)

	if _, err := w.f.Seek(chunkSizeOffset, 0); err != nil {
		return fmt.Errorf("wav: update size: seek: %w", err)
	}
	var sizeBuf [4]byte
	binary.LittleEndian.PutUint32(sizeBuf[:], dataSize+headerSize-8)
	if _, err := w.f.Write(sizeBuf[:]); err != nil {
		return fmt.Errorf("wav: update size: write riff size: %w", err)
	}

	if _, err := w.f.Seek(subchunk2SizeOffset, 0); err != nil {
		return fmt.Errorf("wav: update size: seek: %w", err)
	}
	binary.LittleEndian.PutUint32(sizeBuf[:], dataSize)
	if _, err := w.f.Write(sizeBuf[:]); err != nil {
		return fmt.Errorf("wav: update size: write data size: %w", err)
	}

	if _, err := w.f.Seek(0, 2); err != nil {
		return fmt.Errorf("wav: update size: seek end: %w", err)
	}
	return nil
}

// Close patches the header's chunk sizes to the true data size and closes
// the underlying file.
func (w *Writer) Close() error {
	updateErr := w.updateSize()
	closeErr := w.f.Close()
	if updateErr != nil {
		return updateErr
	}
	return closeErr
}

// CloseNoUpdate closes the file without patching the header, leaving the
// maximum-size placeholder in place (used when a prior write already left
// the recorder in an error state).
func (w *Writer) CloseNoUpdate() error {
	return w.f.Close()
}

func roundDown(v, multiple uint32) uint32 {
	if multiple == 0 {
		return v
	}
	return (v / multiple) * multiple
}
