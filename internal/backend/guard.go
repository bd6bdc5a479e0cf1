package backend

import (
	"sort"
	"strings"

	"github.com/rs/zerolog"
)

// runResources tracks every tensor handle created during one run so a single
// deferred releaseAll frees them on every exit path. The slices are kept
// between runs to avoid reallocating them.
type runResources struct {
	rt      Runtime
	metrics *Metrics
	model   string
	log     zerolog.Logger

	inputNames []string
	inputs     []Tensor
	outputs    []Tensor
}

func (r *runResources) reset() {
	r.inputNames = r.inputNames[:0]
	r.inputs = r.inputs[:0]
	r.outputs = r.outputs[:0]
}

func (r *runResources) addInput(name string, t Tensor) {
	r.inputNames = append(r.inputNames, name)
	r.inputs = append(r.inputs, t)
	r.metrics.tensorsAcquired(r.model, 1)
}

// setOutputs takes ownership of the tensors returned by an invocation,
// including the ones returned alongside an error.
func (r *runResources) setOutputs(ts []Tensor) {
	n := 0
	for _, t := range ts {
		if t != nil {
			r.outputs = append(r.outputs, t)
			n++
		}
	}
	r.metrics.tensorsAcquired(r.model, n)
}

// releaseAll hands every tracked tensor back to the runtime. Release
// failures are logged and never replace the run's own status.
func (r *runResources) releaseAll() {
	released := 0
	for _, group := range [][]Tensor{r.inputs, r.outputs} {
		for i, t := range group {
			if t == nil {
				continue
			}
			if err := r.rt.ReleaseTensor(t); err != nil {
				r.log.Warn().Err(err).Str("event", "tensor_release_failed").Msg("failed to release tensor")
			}
			group[i] = nil
			released++
		}
	}
	r.metrics.tensorsReleased(r.model, released)
	r.reset()
}

func sortedKeys(m map[string]struct{}) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return "[" + strings.Join(keys, ", ") + "]"
}
