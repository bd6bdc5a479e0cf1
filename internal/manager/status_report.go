package manager

import (
	"time"

	"tensord/pkg/types"
)

// Status builds a detailed status response for /status.
func (m *Manager) Status() types.StatusResponse {
	m.mu.RLock()
	defer m.mu.RUnlock()
	resp := types.StatusResponse{
		State:          string(StateUnloaded),
		UptimeSeconds:  int64(time.Since(m.startTime) / time.Second),
		ServerTimeUnix: time.Now().Unix(),
		LoadsTotal:     m.loadsTotal.Load(),
	}
	resp.Models = make([]types.ModelStatus, 0, len(m.entries))
	for _, e := range m.entries {
		name := e.Config.Name
		st := m.models[name]
		ms := types.ModelStatus{
			Name:          name,
			State:         string(st.State),
			Error:         st.Err,
			MaxQueueDepth: m.maxQueueDepth,
			Instances:     []types.InstanceStatus{},
		}
		if st.sched != nil {
			ms.QueueLen = st.sched.Depth()
		}
		if st.backend != nil {
			for _, info := range st.backend.Contexts() {
				ms.Instances = append(ms.Instances, types.InstanceStatus{
					Model:        name,
					Name:         info.Name,
					Device:       info.Device,
					MaxBatchSize: info.MaxBatchSize,
					State:        info.State.String(),
					Artifact:     info.Artifact,
					Runs:         info.Runs,
					Failures:     info.Failures,
				})
			}
		}
		if st.State == StateReady {
			resp.State = string(StateReady)
		}
		resp.Models = append(resp.Models, ms)
	}
	return resp
}
