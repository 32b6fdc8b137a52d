package codec

import (
	"reflect"
	"sort"

	"github.com/puzpuzpuz/xsync/v3"
)

// Registry maps Go types to codecs. It is populated explicitly at startup and
// handed to whatever needs to resolve codecs; there is no package level instance.
//
// Thread-safety: all methods are safe for concurrent use.
type Registry struct {
	codecs *xsync.MapOf[reflect.Type, any]
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{codecs: xsync.NewMapOf[reflect.Type, any]()}
}

// NewStandardRegistry returns a registry with codecs for the primitive Go types.
func NewStandardRegistry() *Registry {
	r := NewRegistry()
	Register(r, Bool)
	Register(r, Int8)
	Register(r, Int16)
	Register(r, Int32)
	Register(r, Int64)
	Register(r, Int)
	Register(r, Uint64)
	Register(r, Float64)
	Register(r, String)
	Register(r, Bytes)
	Register(r, NullableString)
	return r
}

// Register stores c as the codec for T, replacing any previous registration.
func Register[T any](r *Registry, c Codec[T]) {
	r.codecs.Store(typeOf[T](), c)
}

// Lookup returns the codec registered for T.
func Lookup[T any](r *Registry) (Codec[T], bool) {
	if r == nil {
		return nil, false
	}
	c, ok := r.codecs.Load(typeOf[T]())
	if !ok {
		return nil, false
	}
	typed, ok := c.(Codec[T])
	return typed, ok
}

// Resolve is Lookup returning a *CodecNotFoundError for unknown types.
func Resolve[T any](r *Registry) (Codec[T], error) {
	c, ok := Lookup[T](r)
	if !ok {
		return nil, &CodecNotFoundError{Type: typeOf[T]()}
	}
	return c, nil
}

// Types returns the names of all registered types in sorted order.
func (r *Registry) Types() []string {
	var names []string
	r.codecs.Range(func(t reflect.Type, _ any) bool {
		names = append(names, t.String())
		return true
	})
	sort.Strings(names)
	return names
}

func typeOf[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}
