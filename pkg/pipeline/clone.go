package pipeline

import "encoding/json"

// Clone deep-copies s via JSON round-trip (§6.3: all fields are
// JSON-representable).
func (s *State) Clone() *State {
	raw, err := json.Marshal(s)
	if err != nil {
		panic("pipeline: state is not JSON-representable: " + err.Error())
	}
	out := &State{}
	if err := json.Unmarshal(raw, out); err != nil {
		panic("pipeline: state clone round-trip failed: " + err.Error())
	}
	return out
}

// MarshalJSON / round-trip: State uses the default struct tags declared in
// state.go; no custom marshaling is needed because every field is already a
// JSON-representable primitive, slice, or map (invariant enforced by the
// substep adapter boundary, §4.2 item 2).
