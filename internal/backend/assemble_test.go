package backend

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"tensord/pkg/types"
)

func TestBuildBatchedInput_OrderedConcat(t *testing.T) {
	rt := newStubRuntime([]string{"in"}, []string{"out"})
	c := newTestContext(t, rt, fp32Config(8))
	g := &Group{Payloads: []*Payload{fp32Payload(1, 1, 2), fp32Payload(2, 3, 4, 5, 6)}}
	rr := &c.run
	defer rr.releaseAll()
	if err := c.buildBatchedInput("in", types.TypeFP32, []int64{2}, g, 3, fromInputs("in"), rr); err != nil {
		t.Fatalf("buildBatchedInput: %v", err)
	}
	if len(rr.inputs) != 1 || rr.inputNames[0] != "in" {
		t.Fatalf("tensor not registered: %v", rr.inputNames)
	}
	tensor := rr.inputs[0]
	if diff := cmp.Diff([]int64{3, 2}, tensor.Shape()); diff != "" {
		t.Fatalf("shape (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]float32{1, 2, 3, 4, 5, 6}, bytesF32(tensor.Bytes())); diff != "" {
		t.Fatalf("data (-want +got):\n%s", diff)
	}
}

func TestBuildBatchedInput_Rejects(t *testing.T) {
	rt := newStubRuntime([]string{"in"}, []string{"out"})
	c := newTestContext(t, rt, fp32Config(8))
	g := &Group{Payloads: []*Payload{fp32Payload(1, 1, 2)}}
	rr := &c.run
	defer rr.releaseAll()

	if err := c.buildBatchedInput("in", types.TypeString, []int64{2}, g, 1, fromInputs("in"), rr); !IsInternal(err) {
		t.Fatalf("variable-size type: %v", err)
	}
	if err := c.buildBatchedInput("in", types.TypeFP32, []int64{-1}, g, 1, fromInputs("in"), rr); !IsInternal(err) {
		t.Fatalf("wildcard dims: %v", err)
	}
	if err := c.buildBatchedInput("in", types.TypeFP32, []int64{3}, g, 1, fromInputs("in"), rr); !IsSizeMismatch(err) {
		t.Fatalf("wrong dims: %v", err)
	}
	if len(rr.inputs) != 0 || rt.creates.Load() != 0 {
		t.Fatalf("rejected inputs must not create tensors")
	}
}

func TestInputDims(t *testing.T) {
	if diff := cmp.Diff([]int64{4}, inputDims([]int64{4}, []int64{-1})); diff != "" {
		t.Fatalf("requested dims win:\n%s", diff)
	}
	if diff := cmp.Diff([]int64{2, 2}, inputDims(nil, []int64{2, 2})); diff != "" {
		t.Fatalf("declared dims fallback:\n%s", diff)
	}
}
