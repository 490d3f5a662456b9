package model

// Step is one remote shell instruction. Quiet steps only show their output in
// verbose mode.
type Step struct {
	Command string `json:"command"`
	Label   string `json:"label"`
	Quiet   bool   `json:"quiet,omitempty"`
}

// CommandSequence is built in full before the first step is dispatched.
type CommandSequence []Step

func (s CommandSequence) Labels() []string {
	labels := make([]string, len(s))
	for i, step := range s {
		labels[i] = step.Label
	}
	return labels
}
