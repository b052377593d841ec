package pipeline

// State is the stage of the current scan attempt
type State string

const (
	StateIdle            State = "idle"
	StateAcquiringCamera State = "acquiring_camera"
	StateStreaming       State = "streaming"
	StateCaptured        State = "captured"
	StateAnalyzing       State = "analyzing"
	StateSucceeded       State = "succeeded"
	StateFailed          State = "failed"
)

// Terminal reports whether the run has finished
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateFailed
}
