package backend

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/d4l3k/go-bfloat16"
	"github.com/x448/float16"

	"tensord/pkg/types"
)

// ConvertElements converts little-endian raw tensor data from one element
// type to another. The result never aliases src.
func ConvertElements(src []byte, from, to types.DataType) ([]byte, error) {
	if from == to {
		out := make([]byte, len(src))
		copy(out, src)
		return out, nil
	}
	fw, tw := from.ByteSize(), to.ByteSize()
	if fw == 0 || tw == 0 {
		return nil, fmt.Errorf("cannot convert %s to %s", from, to)
	}
	if len(src)%fw != 0 {
		return nil, fmt.Errorf("%d bytes is not a whole number of %s elements", len(src), from)
	}
	n := len(src) / fw

	switch {
	case from == types.TypeBF16:
		f32 := bfloat16.DecodeFloat32(src)
		out := make([]byte, n*tw)
		for i, v := range f32 {
			putFloat(to, out[i*tw:], float64(v))
		}
		return out, nil
	case to == types.TypeBF16:
		f32 := make([]float32, n)
		for i := range f32 {
			f32[i] = float32(getFloat(from, src[i*fw:]))
		}
		return bfloat16.EncodeFloat32(f32), nil
	}

	out := make([]byte, n*tw)
	if isInteger(from) && isInteger(to) {
		for i := 0; i < n; i++ {
			putInt(to, out[i*tw:], getInt(from, src[i*fw:]))
		}
		return out, nil
	}
	for i := 0; i < n; i++ {
		putFloat(to, out[i*tw:], getFloat(from, src[i*fw:]))
	}
	return out, nil
}

func isInteger(dt types.DataType) bool {
	switch dt {
	case types.TypeBool, types.TypeUint8, types.TypeUint16, types.TypeUint32, types.TypeUint64,
		types.TypeInt8, types.TypeInt16, types.TypeInt32, types.TypeInt64:
		return true
	}
	return false
}

func getInt(dt types.DataType, b []byte) int64 {
	le := binary.LittleEndian
	switch dt {
	case types.TypeBool, types.TypeUint8:
		return int64(b[0])
	case types.TypeInt8:
		return int64(int8(b[0]))
	case types.TypeUint16:
		return int64(le.Uint16(b))
	case types.TypeInt16:
		return int64(int16(le.Uint16(b)))
	case types.TypeUint32:
		return int64(le.Uint32(b))
	case types.TypeInt32:
		return int64(int32(le.Uint32(b)))
	case types.TypeUint64, types.TypeInt64:
		return int64(le.Uint64(b))
	}
	return 0
}

func putInt(dt types.DataType, b []byte, v int64) {
	le := binary.LittleEndian
	switch dt {
	case types.TypeBool:
		if v != 0 {
			b[0] = 1
		} else {
			b[0] = 0
		}
	case types.TypeUint8, types.TypeInt8:
		b[0] = byte(v)
	case types.TypeUint16, types.TypeInt16:
		le.PutUint16(b, uint16(v))
	case types.TypeUint32, types.TypeInt32:
		le.PutUint32(b, uint32(v))
	case types.TypeUint64, types.TypeInt64:
		le.PutUint64(b, uint64(v))
	}
}

func getFloat(dt types.DataType, b []byte) float64 {
	le := binary.LittleEndian
	switch dt {
	case types.TypeFP16:
		return float64(float16.Frombits(le.Uint16(b)).Float32())
	case types.TypeFP32:
		return float64(math.Float32frombits(le.Uint32(b)))
	case types.TypeFP64:
		return math.Float64frombits(le.Uint64(b))
	case types.TypeUint64:
		return float64(le.Uint64(b))
	}
	return float64(getInt(dt, b))
}

func putFloat(dt types.DataType, b []byte, v float64) {
	le := binary.LittleEndian
	switch dt {
	case types.TypeFP16:
		le.PutUint16(b, float16.Fromfloat32(float32(v)).Bits())
	case types.TypeFP32:
		le.PutUint32(b, math.Float32bits(float32(v)))
	case types.TypeFP64:
		le.PutUint64(b, math.Float64bits(v))
	case types.TypeBool:
		putInt(dt, b, boolInt(v != 0))
	default:
		putInt(dt, b, int64(math.Round(v)))
	}
}

func boolInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
