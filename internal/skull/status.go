package skull

import (
	"deathteller/skull/internal/controller"
	"deathteller/skull/internal/hardware"
	"deathteller/skull/internal/store"
)

// Status is a point-in-time view of the runtime for the API.
type Status struct {
	State       string                   `json:"state"`
	Stage       string                   `json:"calibration_stage,omitempty"`
	VisitID     string                   `json:"visit_id,omitempty"`
	Fortune     controller.FortuneStatus `json:"fortune"`
	MouthOpen   bool                     `json:"mouth_open"`
	LightScene  string                   `json:"light_scene"`
	EyeLevel    int                      `json:"eye_level"`
	MouthLevel  int                      `json:"mouth_level"`
	Pulsing     bool                     `json:"mouth_pulsing"`
	Finger      controller.FingerReadout `json:"finger"`
	MouthMoves  int                      `json:"mouth_moves"`
	Calibrated  int                      `json:"calibrations"`
	DebugPaused bool                     `json:"debug_paused"`
	UptimeMs    uint32                   `json:"uptime_ms"`
	Visits      int                      `json:"visits"`
	LastVisit   *store.Visit             `json:"last_visit,omitempty"`
}

func (r *Runtime) publish() {
	st := Status{
		State:       r.ctrl.State().String(),
		Fortune:     r.ctrl.Fortune(),
		MouthOpen:   r.mouth.IsOpen(),
		LightScene:  r.lights.Scene().String(),
		Pulsing:     r.lights.Pulsing(),
		Finger:      r.finger.Readout(),
		MouthMoves:  r.mouth.Moves(),
		Calibrated:  r.finger.Calibrations(),
		DebugPaused: r.paused,
		UptimeMs:    r.clock.NowMillis(),
	}
	if r.ctrl.State() == controller.ManualCalibration {
		st.Stage = r.ctrl.Stage().String()
	}
	if r.visit != nil {
		st.VisitID = r.visit.id
	}
	r.mu.Lock()
	r.status = st
	r.mu.Unlock()
}

// Status returns the snapshot taken after the last controller call. Light
// levels are sampled now since pulses and blinks advance between ticks.
func (r *Runtime) Status() Status {
	r.mu.RLock()
	st := r.status
	st.Visits = r.visitsTotal
	if r.lastVisit != nil {
		v := *r.lastVisit
		st.LastVisit = &v
	}
	r.mu.RUnlock()
	st.MouthLevel = r.lights.MouthLevel()
	st.EyeLevel = r.lights.EyeLevel()
	return st
}

// Events exposes the in-memory event log.
func (r *Runtime) Events() *store.Store { return r.events }

// Finger exposes the touch sensor so debug tooling can set its readout.
func (r *Runtime) Finger() *hardware.Finger { return r.finger }
