package wav

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testFormat() Format {
	return Format{
		Channels:      2,
		SampleRate:    48000,
		BitsPerSample: 24,
		MaxFileSize:   1 << 20,
	}
}

func TestCreate_RejectsZeroFormatFields(t *testing.T) {
	dir := t.TempDir()
	_, err := Create(filepath.Join(dir, "a.wav"), Format{MaxFileSize: 1 << 20})
	assert.Error(t, err)
}

func TestCreate_RejectsMaxFileSizeSmallerThanHeader(t *testing.T) {
	dir := t.TempDir()
	f := testFormat()
	f.MaxFileSize = 10
	_, err := Create(filepath.Join(dir, "a.wav"), f)
	assert.Error(t, err)
}

func TestCreate_WritesValidHeader(t *testing.T) {
	dir := t.TempDir()
	name := filepath.Join(dir, "a.wav")
	w, err := Create(name, testFormat())
	require.NoError(t, err)
	require.NoError(t, w.Close())

	buf, err := os.ReadFile(name)
	require.NoError(t, err)
	require.Len(t, buf, headerSize)

	assert.Equal(t, "RIFF", string(buf[0:4]))
	assert.Equal(t, "WAVE", string(buf[8:12]))
	assert.Equal(t, "fmt ", string(buf[12:16]))
	assert.Equal(t, uint16(2), binary.LittleEndian.Uint16(buf[22:24]))
	assert.Equal(t, uint32(48000), binary.LittleEndian.Uint32(buf[24:28]))
	assert.Equal(t, uint16(24), binary.LittleEndian.Uint16(buf[34:36]))
	assert.Equal(t, "data", string(buf[36:40]))
	// No frames written yet: data size patched down to zero on close.
	assert.Equal(t, uint32(0), binary.LittleEndian.Uint32(buf[40:44]))
	assert.Equal(t, uint32(headerSize-8), binary.LittleEndian.Uint32(buf[4:8]))
}

func TestWriteAndClose_PatchesSizesToActualData(t *testing.T) {
	dir := t.TempDir()
	name := filepath.Join(dir, "a.wav")
	format := testFormat()
	w, err := Create(name, format)
	require.NoError(t, err)

	frame := format.BytesPerFrame()
	payload := make([]byte, frame*10)
	n, err := w.Write(payload)
	require.NoError(t, err)
	require.Equal(t, len(payload), n)
	require.NoError(t, w.Close())

	buf, err := os.ReadFile(name)
	require.NoError(t, err)
	require.Len(t, buf, int(headerSize)+len(payload))

	dataSize := binary.LittleEndian.Uint32(buf[40:44])
	assert.Equal(t, frame*10, dataSize)
	riffSize := binary.LittleEndian.Uint32(buf[4:8])
	assert.Equal(t, dataSize+headerSize-8, riffSize)
}

func TestWrite_TruncatesAtMaxFileSize(t *testing.T) {
	dir := t.TempDir()
	name := filepath.Join(dir, "a.wav")
	format := testFormat()
	frame := format.BytesPerFrame()
	format.MaxFileSize = headerSize + frame*3
	w, err := Create(name, format)
	require.NoError(t, err)

	payload := make([]byte, frame*10)
	n, err := w.Write(payload)
	require.NoError(t, err)
	assert.Equal(t, int(frame*3), n)

	// A second write should now accept nothing further.
	n2, err := w.Write(payload)
	require.NoError(t, err)
	assert.Equal(t, 0, n2)

	require.NoError(t, w.Close())
}

func TestCloseNoUpdate_LeavesPlaceholderSizes(t *testing.T) {
	dir := t.TempDir()
	name := filepath.Join(dir, "a.wav")
	format := testFormat()
	w, err := Create(name, format)
	require.NoError(t, err)

	_, err = w.Write(make([]byte, format.BytesPerFrame()*5))
	require.NoError(t, err)
	require.NoError(t, w.CloseNoUpdate())

	buf, err := os.ReadFile(name)
	require.NoError(t, err)
	dataSize := binary.LittleEndian.Uint32(buf[40:44])
	maxDataSize := roundDown(format.MaxFileSize-headerSize, format.BytesPerFrame())
	assert.Equal(t, maxDataSize, dataSize)
}

func TestRoundDown(t *testing.T) {
	assert.Equal(t, uint32(12), roundDown(14, 4))
	assert.Equal(t, uint32(0), roundDown(3, 4))
	assert.Equal(t, uint32(7), roundDown(7, 0))
}
