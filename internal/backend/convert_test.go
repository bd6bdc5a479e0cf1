package backend

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"

	"tensord/pkg/types"
)

func TestConvertElements_SameTypeCopies(t *testing.T) {
	src := f32bytes(1, 2)
	out, err := ConvertElements(src, types.TypeFP32, types.TypeFP32)
	if err != nil {
		t.Fatalf("ConvertElements: %v", err)
	}
	out[0] = 0xaa
	if src[0] == 0xaa {
		t.Fatalf("result aliases source")
	}
}

func TestConvertElements_HalfPrecision(t *testing.T) {
	src := f32bytes(1.5, -2, 0.25)
	for _, dt := range []types.DataType{types.TypeFP16, types.TypeBF16} {
		half, err := ConvertElements(src, types.TypeFP32, dt)
		if err != nil {
			t.Fatalf("%s: %v", dt, err)
		}
		if len(half) != 6 {
			t.Fatalf("%s: expected 6 bytes, got %d", dt, len(half))
		}
		back, err := ConvertElements(half, dt, types.TypeFP32)
		if err != nil {
			t.Fatalf("%s back: %v", dt, err)
		}
		if diff := cmp.Diff([]float32{1.5, -2, 0.25}, bytesF32(back)); diff != "" {
			t.Fatalf("%s round trip (-want +got):\n%s", dt, diff)
		}
	}
}

func TestConvertElements_Integers(t *testing.T) {
	src := make([]byte, 8)
	neg := int32(-5)
	binary.LittleEndian.PutUint32(src, uint32(neg))
	binary.LittleEndian.PutUint32(src[4:], 300)
	out, err := ConvertElements(src, types.TypeInt32, types.TypeInt64)
	if err != nil {
		t.Fatalf("ConvertElements: %v", err)
	}
	if got := int64(binary.LittleEndian.Uint64(out)); got != -5 {
		t.Fatalf("got %d", got)
	}
	f, err := ConvertElements(src, types.TypeInt32, types.TypeFP64)
	if err != nil {
		t.Fatalf("ConvertElements: %v", err)
	}
	if got := math.Float64frombits(binary.LittleEndian.Uint64(f[8:])); got != 300 {
		t.Fatalf("got %v", got)
	}
	b, err := ConvertElements(src, types.TypeInt32, types.TypeBool)
	if err != nil || b[0] != 1 || b[1] != 1 {
		t.Fatalf("bool conversion: %v %v", b, err)
	}
}

func TestConvertElements_Errors(t *testing.T) {
	if _, err := ConvertElements([]byte("abc"), types.TypeString, types.TypeFP32); err == nil {
		t.Fatalf("expected error for variable-size type")
	}
	if _, err := ConvertElements([]byte{1, 2, 3}, types.TypeFP32, types.TypeFP64); err == nil {
		t.Fatalf("expected error for partial element")
	}
}
