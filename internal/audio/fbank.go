package audio

import (
	"math"

	"gonum.org/v1/gonum/dsp/fourier"
)

// Z-normalization constants of the downstream training set.
const (
	ZNormMean = 1.93
	ZNormStd  = 17.89
)

// FilterbankParams are the fixed analysis parameters of the log filterbank.
type FilterbankParams struct {
	WinLen  float64 // seconds
	WinStep float64 // seconds
	NFilt   int
	NFFT    int
	PreEmph float64
}

// DefaultFilterbankParams: 20 ms window, 10 ms hop, 257 filters, 1024-point FFT.
var DefaultFilterbankParams = FilterbankParams{
	WinLen:  0.02,
	WinStep: 0.01,
	NFilt:   257,
	NFFT:    1024,
	PreEmph: 0.97,
}

// eps replaces zero filter energies before taking the log.
const eps = 2.220446049250313e-16

// Filterbank computes log mel filterbank energies for one sample rate.
type Filterbank struct {
	params     FilterbankParams
	sampleRate int
	frameLen   int
	frameStep  int
	weights    [][]float64 // NFilt x (NFFT/2+1)
	fft        *fourier.FFT
}

// NewFilterbank precomputes the triangular mel filters for sampleRateHz.
func NewFilterbank(sampleRateHz int, p FilterbankParams) *Filterbank {
	return &Filterbank{
		params:     p,
		sampleRate: sampleRateHz,
		frameLen:   roundHalfUp(p.WinLen * float64(sampleRateHz)),
		frameStep:  roundHalfUp(p.WinStep * float64(sampleRateHz)),
		weights:    melFilters(p.NFilt, p.NFFT, sampleRateHz),
		fft:        fourier.NewFFT(p.NFFT),
	}
}

// NumFrames returns the number of analysis frames for n samples.
func (fb *Filterbank) NumFrames(n int) int {
	if n <= fb.frameLen {
		return 1
	}
	return 1 + int(math.Ceil(float64(n-fb.frameLen)/float64(fb.frameStep)))
}

// LogEnergies returns frames x NFilt log filterbank energies of samples.
func (fb *Filterbank) LogEnergies(samples []int16) [][]float64 {
	signal := preEmphasis(samples, fb.params.PreEmph)

	numFrames := fb.NumFrames(len(signal))
	nfft := fb.params.NFFT
	bins := nfft/2 + 1

	buf := make([]float64, nfft)
	coeffs := make([]complex128, bins)
	power := make([]float64, bins)

	out := make([][]float64, numFrames)
	for f := 0; f < numFrames; f++ {
		clear(buf)
		offset := f * fb.frameStep
		// frames longer than the FFT are truncated, shorter ones zero padded
		for i := 0; i < fb.frameLen && i < nfft; i++ {
			if j := offset + i; j < len(signal) {
				buf[i] = signal[j]
			}
		}

		coeffs = fb.fft.Coefficients(coeffs, buf)
		for k, c := range coeffs {
			re, im := real(c), imag(c)
			power[k] = (re*re + im*im) / float64(nfft)
		}

		row := make([]float64, len(fb.weights))
		for m, w := range fb.weights {
			var sum float64
			for k, wk := range w {
				if wk != 0 {
					sum += power[k] * wk
				}
			}
			if sum == 0 {
				sum = eps
			}
			row[m] = math.Log(sum)
		}
		out[f] = row
	}
	return out
}

// Spectrogram is a float32 array of shape (1, Filters, Frames) in C order.
type Spectrogram struct {
	Filters int
	Frames  int
	Data    []float32
}

// Shape returns the array shape.
func (s Spectrogram) Shape() []int {
	return []int{1, s.Filters, s.Frames}
}

// At returns the value of filter f at frame t.
func (s Spectrogram) At(f, t int) float32 {
	return s.Data[f*s.Frames+t]
}

// Compute returns the transposed log filterbank of samples, optionally
// z-normalized with ZNormMean and ZNormStd.
func (fb *Filterbank) Compute(samples []int16, zNormalize bool) Spectrogram {
	energies := fb.LogEnergies(samples)
	frames := len(energies)
	filters := fb.params.NFilt

	data := make([]float32, filters*frames)
	for t, row := range energies {
		for f, v := range row {
			x := float32(v)
			if zNormalize {
				x = (x - ZNormMean) / ZNormStd
			}
			data[f*frames+t] = x
		}
	}
	return Spectrogram{Filters: filters, Frames: frames, Data: data}
}

func preEmphasis(samples []int16, coeff float64) []float64 {
	out := make([]float64, len(samples))
	for i, s := range samples {
		out[i] = float64(s)
		if i > 0 {
			out[i] -= coeff * float64(samples[i-1])
		}
	}
	return out
}

func hzToMel(hz float64) float64 {
	return 2595 * math.Log10(1+hz/700)
}

func melToHz(mel float64) float64 {
	return 700 * (math.Pow(10, mel/2595) - 1)
}

// melFilters builds nfilt triangular filters spaced evenly on the mel
// scale between 0 Hz and the Nyquist frequency.
func melFilters(nfilt, nfft, sampleRate int) [][]float64 {
	highMel := hzToMel(float64(sampleRate) / 2)
	bin := make([]int, nfilt+2)
	for i := range bin {
		mel := highMel * float64(i) / float64(nfilt+1)
		bin[i] = int(math.Floor(float64(nfft+1) * melToHz(mel) / float64(sampleRate)))
	}

	bins := nfft/2 + 1
	weights := make([][]float64, nfilt)
	for j := 0; j < nfilt; j++ {
		w := make([]float64, bins)
		for i := bin[j]; i < bin[j+1] && i < bins; i++ {
			w[i] = float64(i-bin[j]) / float64(bin[j+1]-bin[j])
		}
		for i := bin[j+1]; i < bin[j+2] && i < bins; i++ {
			w[i] = float64(bin[j+2]-i) / float64(bin[j+2]-bin[j+1])
		}
		weights[j] = w
	}
	return weights
}

func roundHalfUp(x float64) int {
	return int(math.Floor(x + 0.5))
}
