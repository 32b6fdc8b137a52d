package serializer

import (
	"fmt"

	"github.com/ValentinKolb/evkv/rpc/common"
)

// IRPCSerializer is the interface for all Message Serializers
type IRPCSerializer interface {
	// Serialize serializes a Message into a byte array
	// It returns the serialized byte array and an error if any
	Serialize(msg common.Message) ([]byte, error)
	// Deserialize deserializes a byte array into a Message
	// It takes a byte array and a pointer to a Message as parameters
	// It returns an error if any
	Deserialize(b []byte, msg *common.Message) error
}

// New returns the serializer with the given name (see the common.Serializer* constants)
func New(name string) (IRPCSerializer, error) {
	switch name {
	case common.SerializerBinary:
		return NewBinarySerializer(), nil
	case common.SerializerJSON:
		return NewJSONSerializer(), nil
	case common.SerializerGOB:
		return NewGOBSerializer(), nil
	case common.SerializerCBOR:
		return NewCBORSerializer(), nil
	default:
		return nil, fmt.Errorf("unknown serializer %q", name)
	}
}
