package runtimes

import (
	"tensord/internal/backend"
	"tensord/pkg/types"
)

// hostTensor is a tensor held in Go memory.
type hostTensor struct {
	shape []int64
	nt    backend.NativeType
	data  []byte
}

func (t *hostTensor) Shape() []int64                 { return t.shape }
func (t *hostTensor) NativeType() backend.NativeType { return t.nt }
func (t *hostTensor) Bytes() []byte                  { return t.data }

// hostTypes is the element type table of runtimes that keep tensors in Go
// memory. NativeType n is hostTypes[n-1].
var hostTypes = []types.DataType{
	types.TypeBool, types.TypeUint8, types.TypeUint16, types.TypeUint32, types.TypeUint64,
	types.TypeInt8, types.TypeInt16, types.TypeInt32, types.TypeInt64,
	types.TypeFP16, types.TypeBF16, types.TypeFP32, types.TypeFP64,
}

func hostNative(dt types.DataType) (backend.NativeType, bool) {
	for i, t := range hostTypes {
		if t == dt {
			return backend.NativeType(i + 1), true
		}
	}
	return 0, false
}

func hostLogical(nt backend.NativeType) types.DataType {
	i := int(nt) - 1
	if i < 0 || i >= len(hostTypes) {
		return types.TypeInvalid
	}
	return hostTypes[i]
}
