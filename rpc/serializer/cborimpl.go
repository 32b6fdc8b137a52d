package serializer

import (
	"github.com/ValentinKolb/evkv/rpc/common"
	"github.com/fxamacker/cbor/v2"
)

// NewCBORSerializer creates a new serializer using CBOR (RFC 8949). Fields are
// keyed by the small integers of their cbor struct tags.
func NewCBORSerializer() IRPCSerializer {
	enc, err := cbor.EncOptions{}.EncMode()
	if err != nil {
		panic(err) // static options
	}
	dec, err := cbor.DecOptions{}.DecMode()
	if err != nil {
		panic(err)
	}
	return &cborSerializerImpl{enc: enc, dec: dec}
}

// cborSerializerImpl implements the IRPCSerializer interface using cbor encoding
type cborSerializerImpl struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

// --------------------------------------------------------------------------
// Interface Methods (docu see serializer.IRPCSerializer)
// --------------------------------------------------------------------------

func (c *cborSerializerImpl) Serialize(msg common.Message) ([]byte, error) {
	return c.enc.Marshal(msg)
}

func (c *cborSerializerImpl) Deserialize(b []byte, msg *common.Message) error {
	*msg = common.Message{}
	return c.dec.Unmarshal(b, msg)
}
