package audio

import (
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"math"
	"os"
)

// heatStops is a dark-to-bright colour ramp for spectrogram images.
var heatStops = []color.RGBA{
	{0, 0, 4, 255},
	{81, 18, 124, 255},
	{183, 55, 121, 255},
	{252, 137, 97, 255},
	{252, 253, 191, 255},
}

// WriteSpectrogramImage renders spec as a heatmap with time on the x axis
// and the lowest filter at the bottom.
func WriteSpectrogramImage(path string, spec Spectrogram) error {
	lo, hi := float32(math.Inf(1)), float32(math.Inf(-1))
	for _, v := range spec.Data {
		lo = min(lo, v)
		hi = max(hi, v)
	}
	span := hi - lo
	if span <= 0 {
		span = 1
	}

	img := image.NewRGBA(image.Rect(0, 0, spec.Frames, spec.Filters))
	for f := 0; f < spec.Filters; f++ {
		y := spec.Filters - 1 - f
		for t := 0; t < spec.Frames; t++ {
			img.SetRGBA(t, y, heatColor(float64((spec.At(f, t)-lo)/span)))
		}
	}

	out, err := os.Create(path) // #nosec G304 - path is built from the output layout
	if err != nil {
		return fmt.Errorf("create spectrogram image: %w", err)
	}
	if err := jpeg.Encode(out, img, &jpeg.Options{Quality: 95}); err != nil {
		_ = out.Close()
		return fmt.Errorf("encode spectrogram image: %w", err)
	}
	return out.Close()
}

// heatColor maps v in [0,1] onto heatStops.
func heatColor(v float64) color.RGBA {
	v = math.Max(0, math.Min(1, v))
	pos := v * float64(len(heatStops)-1)
	i := int(pos)
	if i >= len(heatStops)-1 {
		return heatStops[len(heatStops)-1]
	}
	frac := pos - float64(i)
	a, b := heatStops[i], heatStops[i+1]
	lerp := func(x, y uint8) uint8 {
		return uint8(math.Round(float64(x) + frac*(float64(y)-float64(x))))
	}
	return color.RGBA{lerp(a.R, b.R), lerp(a.G, b.G), lerp(a.B, b.B), 255}
}
