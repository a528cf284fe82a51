package models

import "time"

// RunRecord is the Firestore document written after every pipeline run.
// It keeps the per-message outcomes so failed attachments can be inspected
// after the console output is gone.
type RunRecord struct {
	RunID      string          `firestore:"runId"`
	Status     string          `firestore:"status"`
	Label      string          `firestore:"label,omitempty"`
	Query      string          `firestore:"query,omitempty"`
	Messages   []MessageRecord `firestore:"messages,omitempty"`
	Filed      int             `firestore:"filed"`
	Skipped    int             `firestore:"skipped"`
	Failed     int             `firestore:"failed"`
	ErrorText  string          `firestore:"errorDetails,omitempty"`
	StartedAt  time.Time       `firestore:"startedAt"`
	FinishedAt time.Time       `firestore:"finishedAt"`
}

// MessageRecord is the Firestore shape of a MessageOutcome.
type MessageRecord struct {
	MessageID   string             `firestore:"messageId"`
	Marked      bool               `firestore:"marked"`
	ErrorText   string             `firestore:"errorDetails,omitempty"`
	Attachments []AttachmentRecord `firestore:"attachments,omitempty"`
}

// AttachmentRecord is the Firestore shape of an AttachmentOutcome.
type AttachmentRecord struct {
	Filename  string `firestore:"filename"`
	Status    string `firestore:"status"`
	Stage     string `firestore:"stage,omitempty"`
	FileURL   string `firestore:"fileUrl,omitempty"`
	ErrorText string `firestore:"errorDetails,omitempty"`
}

// NewRunRecord flattens a summary into its Firestore document.
func NewRunRecord(s RunSummary) RunRecord {
	rec := RunRecord{
		RunID:      s.RunID,
		Status:     s.Status(),
		Label:      s.Label,
		Query:      s.Query,
		StartedAt:  s.StartedAt,
		FinishedAt: s.FinishedAt,
		ErrorText:  errText(s.Err),
	}
	rec.Filed, rec.Skipped, rec.Failed = s.Counts()
	for _, m := range s.Messages {
		mr := MessageRecord{MessageID: m.MessageID, Marked: m.Marked, ErrorText: errText(m.Err)}
		for _, a := range m.Attachments {
			mr.Attachments = append(mr.Attachments, AttachmentRecord{
				Filename:  a.Filename,
				Status:    string(a.Status),
				Stage:     string(a.Stage),
				FileURL:   a.FileURL,
				ErrorText: errText(a.Err),
			})
		}
		rec.Messages = append(rec.Messages, mr)
	}
	return rec
}

func errText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
