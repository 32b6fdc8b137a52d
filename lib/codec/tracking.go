package codec

import (
	"io"

	"github.com/ValentinKolb/evkv/lib/db/util"
)

// Stats collects the sizes of values passing through tracked codecs.
type Stats struct {
	Encoded *util.SizeHistogram
	Decoded *util.SizeHistogram
}

func NewStats() *Stats {
	return &Stats{
		Encoded: util.NewSizeHistogram(),
		Decoded: util.NewSizeHistogram(),
	}
}

type trackedCodec[T any] struct {
	inner Codec[T]
	stats *Stats
}

// Tracked wraps c so that the size of every successfully encoded or decoded
// value is recorded in stats.
func Tracked[T any](c Codec[T], stats *Stats) Codec[T] {
	return &trackedCodec[T]{inner: c, stats: stats}
}

func (t *trackedCodec[T]) Size() Size { return t.inner.Size() }

func (t *trackedCodec[T]) SizeOf(value T) int { return t.inner.SizeOf(value) }

func (t *trackedCodec[T]) WriteTo(w io.Writer, value T) (int, error) {
	n, err := t.inner.WriteTo(w, value)
	if err == nil {
		t.stats.Encoded.AddSample(n)
	}
	return n, err
}

func (t *trackedCodec[T]) ReadFrom(r io.Reader, available int) (T, error) {
	cr := &countingReader{r: r}
	value, err := t.inner.ReadFrom(cr, available)
	if err == nil {
		t.stats.Decoded.AddSample(cr.n)
	}
	return value, err
}
