package wav

import (
	"path/filepath"
	"testing"

	"github.com/matryer/is"
)

// Round-trips a synthetic caller utterance through Writer/Reader, the
// pair this package exists to support: generating a fixed WAV fixture
// for a local "replay a recorded call" test rather than requiring a
// live phone call to exercise the session's audio path end to end.
func TestWriteReadRoundTrip(t *testing.T) {
	is := is.New(t)

	path := filepath.Join(t.TempDir(), "utterance.wav")

	w, err := NewWriter(path, 48000, 1, 16)
	is.NoErr(err)
	is.NoErr(w.WriteSineWave(440, 500)) // 500ms tone, simulating a caller utterance
	is.NoErr(w.Close())

	r, err := NewReader(path)
	is.NoErr(err)
	defer r.Close()

	is.Equal(r.Header().SampleRate, uint32(48000))
	is.Equal(r.Header().NumChannels, uint16(1))
	is.Equal(r.Header().BitsPerSample, uint16(16))

	frames, err := r.ReadFrames()
	is.NoErr(err)

	// 500ms at 10ms/frame should yield ~50 frames.
	is.True(len(frames) >= 49 && len(frames) <= 50)
	for _, f := range frames {
		is.Equal(f.SampleRate, 48000)
		is.Equal(f.NumChannels, 1)
		is.Equal(f.Duration().Milliseconds(), int64(10))
	}
}

func TestReaderRejectsMissingFile(t *testing.T) {
	is := is.New(t)
	_, err := NewReader(filepath.Join(t.TempDir(), "does-not-exist.wav"))
	is.True(err != nil)
}
