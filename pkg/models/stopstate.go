package models

// StopState is the resumable snapshot a stop controller hands back to the
// loop and to callers deciding whether a session can be restarted.
type StopState struct {
	SessionID      string `json:"sessionId"`
	CompletedSteps int    `json:"completedSteps"`
	LastStepID     string `json:"lastStepId"`
	PartialResult  string `json:"partialResult,omitempty"`
	CanResume      bool   `json:"canResume"`
}

// TaskResult is what the agent loop returns when a session terminates.
type TaskResult struct {
	Status        SessionStatus `json:"status"`
	StepsExecuted int           `json:"stepsExecuted"`
	FinalResult   string        `json:"finalResult,omitempty"`
	Error         string        `json:"error,omitempty"`
	CanResume     bool          `json:"canResume"`
}
