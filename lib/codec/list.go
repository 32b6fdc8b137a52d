package codec

import "io"

// listCodec encodes a slice as an int32 element count followed by the elements.
type listCodec[E any] struct {
	elem      Codec[E]
	avgPerKey int
}

// ListOf returns a codec for slices of E. avgPerKey is the expected number of
// elements per value and only feeds the size estimate; pass -1 if unknown.
func ListOf[E any](elem Codec[E], avgPerKey int) Codec[[]E] {
	return &listCodec[E]{elem: elem, avgPerKey: avgPerKey}
}

func (l *listCodec[E]) Size() Size {
	elemSize := l.elem.Size()
	if elemSize.Bytes < 0 || l.avgPerKey < 0 {
		return Min(4)
	}
	return Average(4 + l.avgPerKey*elemSize.Bytes)
}

func (l *listCodec[E]) SizeOf(values []E) int {
	size := 4
	for _, v := range values {
		size += l.elem.SizeOf(v)
	}
	return size
}

func (l *listCodec[E]) WriteTo(w io.Writer, values []E) (int, error) {
	total, err := WriteInt32(w, int32(len(values)))
	if err != nil {
		return total, err
	}
	for _, v := range values {
		n, err := l.elem.WriteTo(w, v)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func (l *listCodec[E]) ReadFrom(r io.Reader, available int) ([]E, error) {
	cr := &countingReader{r: r}
	count, err := ReadInt32(cr)
	if err != nil {
		return nil, err
	}
	if count < 0 {
		return nil, decodeErrorf("list", "negative element count %d", count)
	}

	// Reject counts that cannot fit before allocating for them
	minElem := 0
	if s := l.elem.Size(); s.Kind != SizeAverage && s.Bytes > 0 {
		minElem = s.Bytes
	}
	if rem := cr.remaining(available); rem >= 0 && minElem > 0 && int(count) > rem/minElem {
		return nil, decodeErrorf("list", "%d elements of at least %d bytes exceed %d available bytes", count, minElem, rem)
	}

	capacity := int(count)
	if capacity > 1024 {
		capacity = 1024
	}
	values := make([]E, 0, capacity)
	for i := 0; i < int(count); i++ {
		v, err := l.elem.ReadFrom(cr, cr.remaining(available))
		if err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	return values, nil
}
