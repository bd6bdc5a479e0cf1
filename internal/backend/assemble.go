package backend

import (
	"fmt"

	"tensord/pkg/types"
)

// elementCount returns the number of elements of one batch entry of shape
// dims, or -1 when a dimension is still a wildcard.
func elementCount(dims []int64) int64 {
	n := int64(1)
	for _, d := range dims {
		if d < 0 {
			return -1
		}
		n *= d
	}
	return n
}

// inputSource selects where a payload's bytes for one input come from.
type inputSource func(p *Payload) (InputTensor, bool)

func fromInputs(name string) inputSource {
	return func(p *Payload) (InputTensor, bool) { return p.Input(name) }
}

func fromOverrides(name string) inputSource {
	return func(p *Payload) (InputTensor, bool) { return p.Override(name) }
}

// buildBatchedInput concatenates input name of every payload, in group
// order, into one tensor whose leading dimension is the total batch size.
// dims is the shape of one batch entry. The tensor is registered with rr.
func (c *Context) buildBatchedInput(name string, dt types.DataType, dims []int64, group *Group, total int, src inputSource, rr *runResources) error {
	width := dt.ByteSize()
	if width == 0 {
		return &InternalError{Model: c.model, Instance: c.name, Msg: fmt.Sprintf("input '%s' has variable-size datatype %s", name, dt)}
	}
	elems := elementCount(dims)
	if elems < 0 {
		return &InternalError{Model: c.model, Instance: c.name, Msg: fmt.Sprintf("input '%s' has unresolved shape %v", name, dims)}
	}
	native, ok := c.rt.NativeType(dt)
	if !ok {
		return &SchemaMismatchError{Model: c.model, Instance: c.name, Kind: "input", Tensor: name, Reason: "unsupported datatype " + string(dt)}
	}

	perBatch := int(elems) * width
	buf := make([]byte, 0, total*perBatch)
	for i, p := range group.Payloads {
		expected := perBatch * p.BatchSize
		in, ok := src(p)
		actual := 0
		if ok {
			actual = len(in.Data)
		}
		if !ok || actual != expected {
			return &SizeMismatchError{Model: c.model, Instance: c.name, Request: i, Input: name, Expected: expected, Actual: actual}
		}
		buf = append(buf, in.Data...)
	}

	shape := make([]int64, 0, len(dims)+1)
	shape = append(shape, int64(total))
	shape = append(shape, dims...)
	t, err := c.rt.CreateTensor(c.alloc, buf, shape, native)
	if err != nil {
		return &RuntimeExecutionError{Model: c.model, Instance: c.name, Runtime: c.rt.Name(), Err: fmt.Errorf("create input '%s': %w", name, err)}
	}
	rr.addInput(name, t)
	return nil
}

// inputDims returns the per-batch shape for a request input: the dims sent
// with the representative request when present, the declared dims otherwise.
func inputDims(requested, declared []int64) []int64 {
	if len(requested) > 0 {
		return requested
	}
	return declared
}
