package prep

import (
	"fmt"

	resampling "github.com/tphakala/go-audio-resampling"
)

// EncoderSampleRate is the sample rate the pretrained content encoder
// was trained at. Waveforms are resampled to this rate before encoding,
// whatever the corpus rate is.
const EncoderSampleRate = 16000

// ResampleTo converts a mono clip to the target sample rate. The whole
// clip is processed in one pass; a clip already at the target rate is
// returned as-is.
func ResampleTo(c *Clip, rate int) (*Clip, error) {
	if c.SampleRate == rate {
		return c, nil
	}
	rs, err := resampling.New(&resampling.Config{
		InputRate:  float64(c.SampleRate),
		OutputRate: float64(rate),
		Channels:   1,
		Quality:    resampling.QualitySpec{Preset: resampling.QualityHigh},
	})
	if err != nil {
		return nil, fmt.Errorf("prep: create resampler: %w", err)
	}

	in := make([]float64, len(c.Samples))
	for i, s := range c.Samples {
		in[i] = float64(s)
	}
	out, err := rs.Process(in)
	if err != nil {
		return nil, fmt.Errorf("prep: resample %d->%d: %w", c.SampleRate, rate, err)
	}

	samples := make([]float32, len(out))
	for i, s := range out {
		switch {
		case s > 1:
			samples[i] = 1
		case s < -1:
			samples[i] = -1
		default:
			samples[i] = float32(s)
		}
	}
	return &Clip{Samples: samples, SampleRate: rate}, nil
}
