package scenario

// Step is one action in a scenario. Steps share one session, so reads
// taint the steps after them.
type Step struct {
	Capability string      `yaml:"capability"`
	Operation  string      `yaml:"operation,omitempty"`
	Command    string      `yaml:"command,omitempty"`
	Expect     string      `yaml:"expect"`
	Taint      *TaintCheck `yaml:"taint,omitempty"`
}

// TaintCheck asserts the session flags after a step.
type TaintCheck struct {
	Corruption bool `yaml:"corruption"`
	Secret     bool `yaml:"secret"`
}

// Scenario is a named sequence of steps with expected gate decisions.
type Scenario struct {
	Name      string `yaml:"name"`
	Config    string `yaml:"config,omitempty"` // relative to the scenario file
	Workspace string `yaml:"workspace,omitempty"`
	Steps     []Step `yaml:"steps"`
}

// StepResult is the outcome of one step.
type StepResult struct {
	Index      int    `json:"index"`
	Passed     bool   `json:"passed"`
	Capability string `json:"capability"`
	Operation  string `json:"operation"`
	Command    string `json:"command,omitempty"`
	Expected   string `json:"expected"`
	Actual     string `json:"actual"`
	Reason     string `json:"reason"`
	Corruption bool   `json:"corruption_tainted"`
	Secret     bool   `json:"secret_tainted"`
}

// RunResult is the outcome of one scenario file.
type RunResult struct {
	File   string       `json:"file"`
	Name   string       `json:"name"`
	Total  int          `json:"total"`
	Passed int          `json:"passed"`
	Failed int          `json:"failed"`
	Steps  []StepResult `json:"steps"`
}
