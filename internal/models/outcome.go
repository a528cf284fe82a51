package models

import "time"

// Stage names the pipeline step an attachment reached.
type Stage string

const (
	StageFetch  Stage = "fetch"
	StageText   Stage = "text"
	StageFields Stage = "fields"
	StageFiling Stage = "filing"
	StageLedger Stage = "ledger"
)

// AttachmentStatus is the final state of one attachment in a run.
type AttachmentStatus string

const (
	StatusFiled   AttachmentStatus = "filed"
	StatusSkipped AttachmentStatus = "skipped"
	StatusFailed  AttachmentStatus = "failed"
)

// AttachmentOutcome records what happened to one attachment.
type AttachmentOutcome struct {
	Filename     string           `json:"filename"`
	AttachmentID string           `json:"attachmentId"`
	Status       AttachmentStatus `json:"status"`
	Stage        Stage            `json:"stage,omitempty"`
	FileURL      string           `json:"fileUrl,omitempty"`
	Err          error            `json:"-"`
	Error        string           `json:"error,omitempty"`
}

// MessageOutcome records what happened to one candidate message.
type MessageOutcome struct {
	MessageID   string              `json:"messageId"`
	Marked      bool                `json:"marked"`
	Attachments []AttachmentOutcome `json:"attachments,omitempty"`
	Err         error               `json:"-"`
	Error       string              `json:"error,omitempty"`
}

// RunSummary is the result of one pipeline run.
type RunSummary struct {
	RunID      string           `json:"runId"`
	Label      string           `json:"label,omitempty"`
	Query      string           `json:"query,omitempty"`
	StartedAt  time.Time        `json:"startedAt"`
	FinishedAt time.Time        `json:"finishedAt"`
	Messages   []MessageOutcome `json:"messages"`
	Err        error            `json:"-"`
	Error      string           `json:"error,omitempty"`
}

// Counts tallies attachment statuses across all messages.
func (s RunSummary) Counts() (filed, skipped, failed int) {
	for _, m := range s.Messages {
		for _, a := range m.Attachments {
			switch a.Status {
			case StatusFiled:
				filed++
			case StatusSkipped:
				skipped++
			case StatusFailed:
				failed++
			}
		}
	}
	return filed, skipped, failed
}

// Status is "failed" for an aborted run, "partial" when any attachment or
// message failed, and "completed" otherwise.
func (s RunSummary) Status() string {
	if s.Err != nil {
		return "failed"
	}
	_, _, failed := s.Counts()
	if failed > 0 {
		return "partial"
	}
	for _, m := range s.Messages {
		if m.Err != nil {
			return "partial"
		}
	}
	return "completed"
}
