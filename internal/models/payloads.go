package models

// These structs define the JSON payloads exchanged with the scan function's
// callers and with the follow-up Cloud Workflow.

// ScanResponse is the output of the HTTP scan function.
type ScanResponse struct {
	Status  string      `json:"status"`
	RunID   string      `json:"runId"`
	Filed   int         `json:"filed"`
	Skipped int         `json:"skipped"`
	Failed  int         `json:"failed"`
	Summary *RunSummary `json:"summary,omitempty"`
}

// NewScanResponse derives the response body from a finished run.
func NewScanResponse(s RunSummary) ScanResponse {
	res := ScanResponse{Status: s.Status(), RunID: s.RunID, Summary: &s}
	res.Filed, res.Skipped, res.Failed = s.Counts()
	return res
}

// WorkflowArgument is the argument passed to the post-run workflow execution.
type WorkflowArgument struct {
	RunID    string   `json:"runId"`
	Filed    int      `json:"filed"`
	Failed   int      `json:"failed"`
	Messages []string `json:"messages"`
}

// NewWorkflowArgument derives the workflow argument from a finished run.
func NewWorkflowArgument(s RunSummary) WorkflowArgument {
	arg := WorkflowArgument{RunID: s.RunID, Messages: []string{}}
	arg.Filed, _, arg.Failed = s.Counts()
	for _, m := range s.Messages {
		arg.Messages = append(arg.Messages, m.MessageID)
	}
	return arg
}
