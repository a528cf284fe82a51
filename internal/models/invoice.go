package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// MessagePart is one node of a message's MIME tree, flattened depth-first.
type MessagePart struct {
	Filename     string
	MimeType     string
	AttachmentID string
}

// CandidateMessage is a message returned by the mailbox search.
type CandidateMessage struct {
	ID    string
	Parts []MessagePart
}

// Label is a mailbox-side tag.
type Label struct {
	ID   string
	Name string
}

// MessageQuery selects messages addressed to To, optionally requiring an
// attachment, and lacking ExcludeLabel.
type MessageQuery struct {
	To            string
	HasAttachment bool
	ExcludeLabel  string
}

// String renders the query in Gmail search syntax.
func (q MessageQuery) String() string {
	var terms []string
	if q.To != "" {
		terms = append(terms, "to:"+q.To)
	}
	if q.HasAttachment {
		terms = append(terms, "has:attachment")
	}
	if q.ExcludeLabel != "" {
		terms = append(terms, "-label:"+q.ExcludeLabel)
	}
	return strings.Join(terms, " ")
}

// Attachment is a decoded attachment payload.
type Attachment struct {
	MessageID    string
	AttachmentID string
	Filename     string
	MimeType     string
	Data         []byte
}

// InvoiceRecord holds the fields the model extracted. Every field is optional.
// Amount keeps the model's token as text; use ParsedAmount for the number.
type InvoiceRecord struct {
	Vendor   string `json:"vendor,omitempty"`
	NIP      string `json:"nip,omitempty"`
	Date     string `json:"date,omitempty"`
	Amount   string `json:"amount,omitempty"`
	Currency string `json:"currency,omitempty"`

	Raw json.RawMessage `json:"-"`
}

// UnmarshalJSON accepts strings, numbers, booleans and null for every field,
// since models are loose about quoting numbers and tax ids.
func (r *InvoiceRecord) UnmarshalJSON(b []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(b, &fields); err != nil {
		return err
	}
	targets := map[string]*string{
		"vendor":   &r.Vendor,
		"nip":      &r.NIP,
		"date":     &r.Date,
		"amount":   &r.Amount,
		"currency": &r.Currency,
	}
	for key, dst := range targets {
		raw, ok := fields[key]
		if !ok {
			continue
		}
		s, err := scalarString(raw)
		if err != nil {
			return fmt.Errorf("field %q: %w", key, err)
		}
		*dst = s
	}
	r.Raw = append(json.RawMessage(nil), b...)
	return nil
}

func scalarString(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", nil
	}
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", err
		}
		return s, nil
	case '{', '[':
		return "", fmt.Errorf("expected a scalar, got %s", raw)
	default:
		return string(raw), nil
	}
}

// ParsedAmount reads the longest numeric prefix of Amount, the way a lenient
// float parser would: "99.50" is 99.5, "12abc" is 12 and "abc" is not numeric.
func (r InvoiceRecord) ParsedAmount() (float64, bool) {
	s := strings.TrimSpace(r.Amount)
	end := 0
	digits := false
	dot := false
	exp := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= '0' && c <= '9':
			digits = true
			end = i + 1
		case (c == '+' || c == '-') && (i == 0 || s[i-1] == 'e' || s[i-1] == 'E'):
		case c == '.' && !dot && !exp:
			dot = true
		case (c == 'e' || c == 'E') && digits && !exp:
			exp = true
		default:
			i = len(s)
		}
	}
	if !digits {
		return 0, false
	}
	// Back off past a trailing exponent marker with no digits after it.
	for end > 0 {
		v, err := strconv.ParseFloat(s[:end], 64)
		if err == nil {
			return v, true
		}
		end--
	}
	return 0, false
}

// FiledInvoice is the ledger row for an uploaded invoice.
type FiledInvoice struct {
	Vendor             string
	NIP                string
	InvoiceDate        string
	Amount             *float64
	Currency           string
	FileURL            string
	FileID             string
	FolderID           string
	Raw                json.RawMessage
	SourceMessageID    string
	SourceAttachmentID string
}

// NewFiledInvoice combines the extracted record with the upload result.
func NewFiledInvoice(att Attachment, rec InvoiceRecord, fileID, folderID, fileURL string) FiledInvoice {
	f := FiledInvoice{
		Vendor:             rec.Vendor,
		NIP:                rec.NIP,
		InvoiceDate:        rec.Date,
		Currency:           rec.Currency,
		FileURL:            fileURL,
		FileID:             fileID,
		FolderID:           folderID,
		Raw:                rec.Raw,
		SourceMessageID:    att.MessageID,
		SourceAttachmentID: att.AttachmentID,
	}
	if v, ok := rec.ParsedAmount(); ok {
		f.Amount = &v
	}
	return f
}
