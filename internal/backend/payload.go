package backend

import (
	"sort"

	"tensord/pkg/types"
)

// InputTensor is one named input of a request. Data holds BatchSize
// consecutive entries of the declared shape.
type InputTensor struct {
	Name     string
	DataType types.DataType
	Dims     []int64
	Data     []byte
}

// OutputSink receives the slice of a batched output that belongs to one
// request. Shape includes the request's own batch dimension.
type OutputSink interface {
	WriteOutput(name string, dt types.DataType, shape []int64, data []byte) error
}

// Payload is one request handed to a run. Status is nil for a request that
// can be executed; the core only ever sets it when writing that request's
// own output fails.
type Payload struct {
	BatchSize int
	Inputs    []InputTensor
	// Overrides are extra named inputs supplied outside the request's
	// declared input list (e.g. by a sequence scheduler).
	Overrides map[string]InputTensor
	Outputs   OutputSink
	Status    error
}

// Input returns the request input with the given name.
func (p *Payload) Input(name string) (InputTensor, bool) {
	for _, in := range p.Inputs {
		if in.Name == name {
			return in, true
		}
	}
	return InputTensor{}, false
}

// Override returns the override input with the given name.
func (p *Payload) Override(name string) (InputTensor, bool) {
	in, ok := p.Overrides[name]
	return in, ok
}

// overrideNames returns the override names in a stable order.
func (p *Payload) overrideNames() []string {
	if len(p.Overrides) == 0 {
		return nil
	}
	names := make([]string, 0, len(p.Overrides))
	for n := range p.Overrides {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Group is the ordered set of payloads executed by one run. The order is
// the concatenation order at fan-in and the split order at fan-out.
type Group struct {
	Payloads []*Payload
}

// TotalBatchSize is the sum of the payload batch sizes.
func (g *Group) TotalBatchSize() int {
	total := 0
	for _, p := range g.Payloads {
		total += p.BatchSize
	}
	return total
}
