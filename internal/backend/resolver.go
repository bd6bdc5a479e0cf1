package backend

import (
	"errors"
	"fmt"
	"strconv"

	"tensord/pkg/types"
)

// InstanceSpec is one instance to create: where it runs and what it loads.
type InstanceSpec struct {
	Name         string
	Kind         types.InstanceKind
	Device       int
	Capability   string
	Artifact     string
	ArtifactPath string
}

// Resolve expands the instance groups of cfg into concrete instances and
// picks the artifact each one loads. CPU instances load the default
// artifact; GPU instances load the artifact registered for their device's
// compute capability, falling back to the default.
//
// Instances that cannot be resolved are left out of the returned list and
// reported in the joined error; the caller decides whether the remaining
// instances are enough.
func Resolve(cfg types.ModelConfig, caps CapabilityLookup, artifacts map[string]string) ([]InstanceSpec, error) {
	groups := cfg.InstanceGroups
	if len(groups) == 0 {
		groups = []types.InstanceGroup{{Kind: types.KindCPU, Count: 1}}
	}

	var specs []InstanceSpec
	var errs []error
	for gi, g := range groups {
		groupName := g.Name
		if groupName == "" {
			groupName = cfg.Name
			if len(groups) > 1 {
				groupName += "_" + strconv.Itoa(gi)
			}
		}
		for c := 0; c < g.Count; c++ {
			if g.Kind != types.KindGPU {
				spec := InstanceSpec{
					Name:     fmt.Sprintf("%s_%d_cpu", groupName, c),
					Kind:     types.KindCPU,
					Device:   NoDevice,
					Artifact: cfg.DefaultModelFilename,
				}
				if err := bindArtifact(&spec, cfg.Name, artifacts); err != nil {
					errs = append(errs, err)
					continue
				}
				specs = append(specs, spec)
				continue
			}
			for _, dev := range g.GPUs {
				spec := InstanceSpec{
					Name:   fmt.Sprintf("%s_%d_gpu%d", groupName, c, dev),
					Kind:   types.KindGPU,
					Device: dev,
				}
				if caps == nil {
					errs = append(errs, &DeviceBindingError{Model: cfg.Name, Instance: spec.Name, Device: dev, Err: errors.New("no compute capability lookup configured")})
					continue
				}
				cc, err := caps(dev)
				if err != nil {
					errs = append(errs, &DeviceBindingError{Model: cfg.Name, Instance: spec.Name, Device: dev, Err: err})
					continue
				}
				spec.Capability = cc
				spec.Artifact = cfg.DefaultModelFilename
				if fn, ok := cfg.CCModelFilenames[cc]; ok && fn != "" {
					spec.Artifact = fn
				}
				if err := bindArtifact(&spec, cfg.Name, artifacts); err != nil {
					errs = append(errs, err)
					continue
				}
				specs = append(specs, spec)
			}
		}
	}
	return specs, errors.Join(errs...)
}

func bindArtifact(spec *InstanceSpec, model string, artifacts map[string]string) error {
	p, ok := artifacts[spec.Artifact]
	if !ok || spec.Artifact == "" {
		return &ResolutionError{Model: model, Instance: spec.Name, Artifact: spec.Artifact, Capability: spec.Capability}
	}
	spec.ArtifactPath = p
	return nil
}
