// Package codec turns typed values into byte sequences and back.
//
// A Codec declares a size estimate (FIXED, MIN or AVERAGE) that callers use to
// pre-size buffers and that fixed-width engines use to validate key codecs.
// The package provides:
//   - primitives: big endian integers, booleans, floats and length prefixed
//     (optionally nullable or short) byte arrays and strings to build composite codecs
//   - standard codecs for the primitive Go types
//   - ListOf, the [int32 count][elem]... encoding used for event lists
//   - Compressed, a wrapper storing values as snappy, zstd or lz4 blocks
//   - Registry, an explicit type to codec table
//   - Tracked, a wrapper recording encoded and decoded sizes
//
// Example of a composite codec:
//
//	type point struct{ X, Y int32 }
//
//	type pointCodec struct{}
//
//	func (pointCodec) Size() codec.Size    { return codec.Fixed(8) }
//	func (pointCodec) SizeOf(point) int    { return 8 }
//	func (pointCodec) WriteTo(w io.Writer, p point) (int, error) {
//		n, err := codec.WriteInt32(w, p.X)
//		if err != nil {
//			return n, err
//		}
//		m, err := codec.WriteInt32(w, p.Y)
//		return n + m, err
//	}
//	func (pointCodec) ReadFrom(r io.Reader, _ int) (point, error) { ... }
package codec
