package prep

import (
	"github.com/34j/so-vits-svc-go/pkg/tensor"
)

// AlignFrames expands a [featureDim, srcLen] content-embedding matrix to
// targetLen columns by nearest-position repetition, so content lines up
// with the mel frame grid. The content encoder runs at its own frame
// rate (srcLen columns); every output column i copies the source column
// whose span covers position i. No interpolation: embedding vectors are
// repeated verbatim.
func AlignFrames(content tensor.Tensor, targetLen int) tensor.Tensor {
	dim := content.Shape[0]
	srcLen := content.Frames()
	out := tensor.New(dim, targetLen)
	if srcLen == 0 || targetLen == 0 {
		return out
	}

	// Source column p covers output positions [p*T/S, (p+1)*T/S); the
	// comparison is kept in integers to avoid float drift on long clips.
	pos := 0
	for i := 0; i < targetLen; i++ {
		for pos < srcLen-1 && i*srcLen >= (pos+1)*targetLen {
			pos++
		}
		for d := 0; d < dim; d++ {
			out.Set(content.At(d, pos), d, i)
		}
	}
	return out
}
