package backend

import (
	"fmt"

	"tensord/pkg/types"
)

// outputSplit is one batched output cut into per-payload parts, already
// converted to the declared datatype.
type outputSplit struct {
	name  string
	dt    types.DataType
	inner []int64
	parts [][]byte
}

// splitOutput checks that out holds exactly total batch entries and cuts it
// in group order. Nothing is written to any sink here.
func (c *Context) splitOutput(decl types.ModelOutput, out Tensor, group *Group, total int) (*outputSplit, error) {
	shape := out.Shape()
	if len(shape) == 0 || shape[0] != int64(total) {
		return nil, &OutputShapeError{Model: c.model, Instance: c.name, Output: decl.Name, Msg: fmt.Sprintf("shape %v does not start with batch size %d", shape, total)}
	}
	inner := append([]int64(nil), shape[1:]...)
	logical := c.rt.LogicalType(out.NativeType())
	width := logical.ByteSize()
	elems := elementCount(inner)
	if width == 0 || elems < 0 {
		return nil, &OutputShapeError{Model: c.model, Instance: c.name, Output: decl.Name, Msg: fmt.Sprintf("cannot split %s tensor of shape %v", logical, shape)}
	}
	perBatch := int(elems) * width
	data := out.Bytes()
	if len(data) != total*perBatch {
		return nil, &OutputShapeError{Model: c.model, Instance: c.name, Output: decl.Name, Msg: fmt.Sprintf("got %d bytes, expecting %d", len(data), total*perBatch)}
	}

	s := &outputSplit{name: decl.Name, dt: decl.DataType, inner: inner, parts: make([][]byte, len(group.Payloads))}
	offset := 0
	for i, p := range group.Payloads {
		n := p.BatchSize * perBatch
		part, err := ConvertElements(data[offset:offset+n], logical, decl.DataType)
		if err != nil {
			return nil, &OutputShapeError{Model: c.model, Instance: c.name, Output: decl.Name, Msg: err.Error()}
		}
		s.parts[i] = part
		offset += n
	}
	return s, nil
}

// distribute hands each payload its part of s. A sink error only fails
// that payload.
func (c *Context) distribute(s *outputSplit, group *Group) {
	for i, p := range group.Payloads {
		if p.Outputs == nil || p.Status != nil {
			continue
		}
		shape := make([]int64, 0, len(s.inner)+1)
		shape = append(shape, int64(p.BatchSize))
		shape = append(shape, s.inner...)
		if err := p.Outputs.WriteOutput(s.name, s.dt, shape, s.parts[i]); err != nil {
			p.Status = fmt.Errorf("write output '%s' of request %d: %w", s.name, i, err)
			c.log.Warn().Err(err).Str("event", "output_write_failed").Str("output", s.name).Int("request", i).Msg("failed to write output")
		}
	}
}
