package sequencer

// State is a step of the bootstrap sequence. The sequence is linear:
// start → probing → {already-up | starting} → waiting → handoff.
type State string

const (
	StateStart     State = "start"
	StateProbing   State = "probing"
	StateAlreadyUp State = "already-up"
	StateStarting  State = "starting"
	StateWaiting   State = "waiting"
	StateHandoff   State = "handoff"
)

// ProbeResult is the outcome of a single liveness probe against an external
// collaborator. OK is the only signal the sequencer branches on.
type ProbeResult struct {
	Name      string `json:"name"`
	OK        bool   `json:"ok"`
	LatencyMs int64  `json:"latencyMs"`
	Error     string `json:"error,omitempty"`
}
