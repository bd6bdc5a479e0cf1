package backend

import (
	"fmt"
	"time"
)

// Run executes group on this context with exactly one runtime invocation
// and writes each payload's slice of every output to its sink. An error
// fails the whole group and leaves every sink untouched; the only per
// payload failure is a sink that rejects its own output, which is recorded
// in that payload's Status.
//
// All tensors created or returned during the run are released before Run
// returns, on every path.
func (c *Context) Run(group *Group) (err error) {
	if !c.state.CompareAndSwap(int32(StateIdle), int32(StateRunning)) {
		return &InternalError{Model: c.model, Instance: c.name, Msg: "context is " + c.State().String() + ", cannot run"}
	}
	start := time.Now()
	total := 0
	rr := &c.run
	rr.reset()
	defer func() {
		rr.releaseAll()
		c.state.Store(int32(StateIdle))
		c.runs.Add(1)
		if err != nil {
			c.failures.Add(1)
		}
		c.metrics.observeRun(c.model, c.name, total, time.Since(start), err)
	}()

	// A single-entry batch is accepted even by instances that do not batch.
	limit := max(c.maxBatch, 1)
	for i, p := range group.Payloads {
		if p == nil || p.Status != nil {
			return &InternalError{Model: c.model, Instance: c.name, Msg: fmt.Sprintf("unexpected payload %d with non-OK status given to runner", i)}
		}
		if p.BatchSize < 0 {
			return &InternalError{Model: c.model, Instance: c.name, Msg: fmt.Sprintf("negative batch size %d for payload %d", p.BatchSize, i)}
		}
		// Compared before adding so huge sizes cannot wrap total.
		if p.BatchSize > limit-total {
			return &InternalError{Model: c.model, Instance: c.name, Msg: fmt.Sprintf("dynamic batch size %d + %d at payload %d, max allowed is %d", total, p.BatchSize, i, c.maxBatch)}
		}
		total += p.BatchSize
	}
	if total == 0 {
		return nil
	}

	rep := group.Payloads[0]
	for _, in := range rep.Inputs {
		decl, ok := c.cfg.Input(in.Name)
		if !ok {
			return &InternalError{Model: c.model, Instance: c.name, Msg: fmt.Sprintf("unexpected inference input '%s'", in.Name)}
		}
		dims := inputDims(in.Dims, decl.Dims)
		if err := c.buildBatchedInput(in.Name, decl.DataType, dims, group, total, fromInputs(in.Name), rr); err != nil {
			return err
		}
	}
	for _, name := range rep.overrideNames() {
		ov := rep.Overrides[name]
		if err := c.buildBatchedInput(name, ov.DataType, ov.Dims, group, total, fromOverrides(name), rr); err != nil {
			return err
		}
	}

	outputNames := make([]string, len(c.cfg.Outputs))
	for i, out := range c.cfg.Outputs {
		outputNames[i] = out.Name
	}

	c.log.Debug().Str("event", "invoke").Int("batch_size", total).Int("requests", len(group.Payloads)).Msg("running batch")
	outs, invokeErr := c.rt.Invoke(c.instance, rr.inputNames, rr.inputs, outputNames)
	rr.setOutputs(outs)
	if invokeErr != nil {
		return &RuntimeExecutionError{Model: c.model, Instance: c.name, Runtime: c.rt.Name(), Err: invokeErr}
	}
	if len(outs) != len(outputNames) {
		return &RuntimeExecutionError{Model: c.model, Instance: c.name, Runtime: c.rt.Name(), Err: fmt.Errorf("expected %d outputs, got %d", len(outputNames), len(outs))}
	}

	splits := make([]*outputSplit, len(outs))
	for i, t := range outs {
		if t == nil {
			return &RuntimeExecutionError{Model: c.model, Instance: c.name, Runtime: c.rt.Name(), Err: fmt.Errorf("missing output '%s'", outputNames[i])}
		}
		s, err := c.splitOutput(c.cfg.Outputs[i], t, group, total)
		if err != nil {
			return err
		}
		splits[i] = s
	}
	for _, s := range splits {
		c.distribute(s, group)
	}
	return nil
}
