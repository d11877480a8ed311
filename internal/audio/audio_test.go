package audio

import (
	"bytes"
	"context"
	"errors"
	"image/jpeg"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDecoder returns fixed samples or an error.
type fakeDecoder struct {
	samples []int16
	err     error
	rates   []int
}

func (f *fakeDecoder) DecodePCM(_ context.Context, _ string, sampleRateHz int) ([]int16, error) {
	f.rates = append(f.rates, sampleRateHz)
	return f.samples, f.err
}

type clipCall struct {
	startMs, durationMs int64
	dst                 string
}

type fakeClips struct {
	calls []clipCall
}

func (f *fakeClips) WriteClip(_ context.Context, _ string, startMs, durationMs int64, dst string) error {
	f.calls = append(f.calls, clipCall{startMs, durationMs, dst})
	return os.WriteFile(dst, []byte("mp3"), 0600)
}

func sine(freq float64, sampleRate, n int) []int16 {
	out := make([]int16, n)
	for i := range out {
		out[i] = int16(8000 * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate)))
	}
	return out
}

func TestWindowSamples(t *testing.T) {
	tests := []struct {
		ts         int64
		window, sr int
		start, end int64
	}{
		{5000, 1000, 16000, 72000, 88000},
		{5000, 1000, 48000, 216000, 264000},
		{2002, 1000, 44100, 66238, 110338},
		{7007, 999, 22050, 143501, 165507},
	}

	for _, tt := range tests {
		start := StartSample(tt.ts, tt.window, tt.sr)
		end := EndSample(tt.ts, tt.window, tt.sr)
		assert.Equal(t, tt.start, start, "start for %d ms @ %d Hz", tt.ts, tt.sr)
		assert.Equal(t, tt.end, end, "end for %d ms @ %d Hz", tt.ts, tt.sr)
	}
}

func TestWindowSamples_LengthMatchesWindow(t *testing.T) {
	for _, sr := range []int{8000, 16000, 22050, 44100, 48000} {
		for ts := int64(500); ts < 20000; ts += 137 {
			start := StartSample(ts, 1000, sr)
			end := EndSample(ts, 1000, sr)
			assert.Equal(t, start, StartSample(ts, 1000, sr))
			diff := (end - start) - int64(1000*sr/1000)
			if diff < -1 || diff > 1 {
				t.Fatalf("sr %d ts %d: window length %d", sr, ts, end-start)
			}
		}
	}
}

func TestWindow(t *testing.T) {
	samples := make([]int16, 160000)

	w, ok := Window(samples, 5000, 10000, 1000, 16000)
	assert.True(t, ok)
	assert.Len(t, w, 16000)

	_, ok = Window(samples, 400, 10000, 1000, 16000)
	assert.False(t, ok)

	_, ok = Window(samples, 9600, 10000, 1000, 16000)
	assert.False(t, ok)

	// decoded track shorter than the probed duration
	w, ok = Window(samples[:80000], 5000, 10000, 1000, 16000)
	assert.True(t, ok)
	assert.Len(t, w, 8000)
}

func TestFilterbank_Shape(t *testing.T) {
	tests := []struct {
		sr     int
		frames int
	}{
		{16000, 99},
		{48000, 99},
		{44100, 99},
	}

	for _, tt := range tests {
		fb := NewFilterbank(tt.sr, DefaultFilterbankParams)
		spec := fb.Compute(sine(440, tt.sr, tt.sr), false)
		assert.Equal(t, []int{1, 257, tt.frames}, spec.Shape(), "sample rate %d", tt.sr)
		assert.Len(t, spec.Data, 257*tt.frames)
	}
}

func TestFilterbank_Silence(t *testing.T) {
	fb := NewFilterbank(16000, DefaultFilterbankParams)

	raw := fb.Compute(make([]int16, 16000), false)
	norm := fb.Compute(make([]int16, 16000), true)

	logEps := float32(math.Log(eps))
	assert.InDelta(t, logEps, raw.At(0, 0), 1e-4)
	assert.InDelta(t, (logEps-ZNormMean)/ZNormStd, norm.At(100, 50), 1e-4)
}

func TestFilterbank_EmptyWindow(t *testing.T) {
	fb := NewFilterbank(16000, DefaultFilterbankParams)
	spec := fb.Compute(nil, false)
	assert.Equal(t, []int{1, 257, 1}, spec.Shape())
}

func TestFilterbank_PeakAtToneFrequency(t *testing.T) {
	const sr = 16000
	fb := NewFilterbank(sr, DefaultFilterbankParams)
	spec := fb.Compute(sine(1000, sr, sr), false)

	best, bestMean := 0, math.Inf(-1)
	for f := 0; f < spec.Filters; f++ {
		var sum float64
		for i := 0; i < spec.Frames; i++ {
			sum += float64(spec.At(f, i))
		}
		if mean := sum / float64(spec.Frames); mean > bestMean {
			best, bestMean = f, mean
		}
	}

	toneBin := 1000 * DefaultFilterbankParams.NFFT / sr
	assert.Greater(t, fb.weights[best][toneBin], 0.0, "filter %d does not cover 1 kHz", best)
}

func TestMelFilters(t *testing.T) {
	w := melFilters(257, 1024, 16000)
	require.Len(t, w, 257)
	for _, row := range w {
		require.Len(t, row, 513)
		for _, v := range row {
			if v < 0 || v > 1 {
				t.Fatalf("filter weight %v out of range", v)
			}
		}
	}
}

func TestNPZ_WriteRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "5000_16000.npz")
	data := []float32{1.5, -2, 3.25, 0, 7, 8}

	require.NoError(t, WriteNPZ(path, ArrayKey, []int{1, 2, 3}, data))

	shape, got, err := ReadNPZ(path, ArrayKey)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, shape)
	assert.Equal(t, data, got)

	_, _, err = ReadNPZ(path, "other")
	assert.ErrorIs(t, err, ErrInvalidNPY)
}

func TestWriteNPY_HeaderAlignment(t *testing.T) {
	for _, shape := range [][]int{{3}, {1, 257, 99}, {1, 257, 1001}} {
		var buf bytes.Buffer
		n := 1
		for _, d := range shape {
			n *= d
		}
		require.NoError(t, writeNPY(&buf, shape, make([]float32, n)))

		raw := buf.Bytes()
		hlen := int(raw[8]) | int(raw[9])<<8
		assert.Zero(t, (10+hlen)%64, "shape %v", shape)
		assert.Equal(t, byte('\n'), raw[10+hlen-1])

		gotShape, _, err := readNPY(raw)
		require.NoError(t, err)
		assert.Equal(t, shape, gotShape)
	}
}

func TestExtractor_Extract(t *testing.T) {
	const sr = 16000
	dir := t.TempDir()
	dec := &fakeDecoder{samples: sine(440, sr, 10*sr)}
	e := NewExtractor(dec, nil)

	res, err := e.Extract(context.Background(), Request{
		MediaPath:      "clip.mp4",
		TimestampsMs:   []int64{0, 5000, 9800, 2500},
		DurationMs:     10000,
		SampleRateHz:   sr,
		WindowMs:       1000,
		ZNormalize:     true,
		SpectrogramDir: filepath.Join(dir, "spectrograms"),
		ImageDir:       filepath.Join(dir, "spectrogram_images"),
	})

	require.NoError(t, err)
	assert.Equal(t, 2, res.Skipped)
	assert.Equal(t, []string{
		filepath.Join(dir, "spectrograms", "5000_16000.npz"),
		filepath.Join(dir, "spectrograms", "2500_16000.npz"),
	}, res.Spectrograms)
	assert.Equal(t, []int{sr}, dec.rates)

	shape, _, err := ReadNPZ(res.Spectrograms[0], ArrayKey)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 257, 99}, shape)

	require.Len(t, res.Images, 2)
	f, err := os.Open(res.Images[0])
	require.NoError(t, err)
	defer f.Close()
	cfg, err := jpeg.DecodeConfig(f)
	require.NoError(t, err)
	assert.Equal(t, 99, cfg.Width)
	assert.Equal(t, 257, cfg.Height)
}

func TestExtractor_SkipsTruncatedWindows(t *testing.T) {
	const sr = 16000
	dir := t.TempDir()
	// track decodes to 6 s while the probed duration is 10 s
	dec := &fakeDecoder{samples: sine(440, sr, 6*sr)}
	e := NewExtractor(dec, nil)

	res, err := e.Extract(context.Background(), Request{
		MediaPath:      "clip.mp4",
		TimestampsMs:   []int64{2500, 5800, 8000},
		DurationMs:     10000,
		SampleRateHz:   sr,
		WindowMs:       1000,
		SpectrogramDir: dir,
	})

	require.NoError(t, err)
	assert.Equal(t, 2, res.Skipped)
	assert.Equal(t, []string{filepath.Join(dir, "2500_16000.npz")}, res.Spectrograms)
	assert.NoFileExists(t, filepath.Join(dir, "5800_16000.npz"))
}

func TestExtractor_DecodeError(t *testing.T) {
	dec := &fakeDecoder{err: errors.Join(ErrAudioDecode, errors.New("unsupported codec"))}
	e := NewExtractor(dec, nil)

	_, err := e.Extract(context.Background(), Request{SampleRateHz: 16000, SpectrogramDir: t.TempDir()})

	assert.ErrorIs(t, err, ErrAudioDecode)
}

func TestExtractor_ExtractClips(t *testing.T) {
	clips := &fakeClips{}
	e := NewExtractor(&fakeDecoder{}, nil, WithClipWriter(clips))
	dir := filepath.Join(t.TempDir(), "audio")

	paths, err := e.ExtractClips(context.Background(), "clip.mp4", []int64{5000, 100}, 10000, 1000, dir)

	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "5000.mp3")}, paths)
	require.Len(t, clips.calls, 1)
	assert.Equal(t, int64(4500), clips.calls[0].startMs)
	assert.Equal(t, int64(1000), clips.calls[0].durationMs)
}

func TestFFmpegDecoder(t *testing.T) {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		t.Skip("ffmpeg not found in PATH, skipping test")
	}

	src := filepath.Join(t.TempDir(), "tone.wav")
	cmd := exec.Command("ffmpeg", "-y", "-f", "lavfi", "-i", "sine=frequency=440:sample_rate=44100:duration=2", src)
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("failed to create test audio: %v\n%s", err, out)
	}

	d := NewFFmpegDecoder("")
	samples, err := d.DecodePCM(context.Background(), src, 16000)
	require.NoError(t, err)
	assert.InDelta(t, 32000, len(samples), 200)

	clip := filepath.Join(t.TempDir(), "500.mp3")
	if err := d.WriteClip(context.Background(), src, 0, 1000, clip); err != nil {
		t.Skipf("mp3 encoder unavailable: %v", err)
	}
	st, err := os.Stat(clip)
	require.NoError(t, err)
	assert.Positive(t, st.Size())
}

func TestFFmpegDecoder_MissingFile(t *testing.T) {
	_, err := NewFFmpegDecoder("").DecodePCM(context.Background(), filepath.Join(t.TempDir(), "x.mp4"), 16000)
	assert.ErrorIs(t, err, ErrAudioDecode)
}
