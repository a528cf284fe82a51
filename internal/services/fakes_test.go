package services

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/Lllllllleong/invoiceflow/internal/models"
	"golang.org/x/oauth2"
)

type fakeMessage struct {
	to     string
	labels []string // label ids
	parts  []models.MessagePart
}

type modifyCall struct {
	ids, add, remove []string
}

// fakeMailbox evaluates queries against its messages the way the real
// mailbox search would.
type fakeMailbox struct {
	mu sync.Mutex

	labels      []models.Label
	messages    map[string]*fakeMessage
	order       []string
	attachments map[string][]byte // messageID/attachmentID -> raw bytes

	labelsErr error
	getErr    map[string]error
	attErr    map[string]error
	modifyErr error
	searchErr error

	listLabelCalls int
	queries        []models.MessageQuery
	fetched        []string
	modifies       []modifyCall
}

func newFakeMailbox(labels ...models.Label) *fakeMailbox {
	return &fakeMailbox{
		labels:      labels,
		messages:    map[string]*fakeMessage{},
		attachments: map[string][]byte{},
		getErr:      map[string]error{},
		attErr:      map[string]error{},
	}
}

func (m *fakeMailbox) addMessage(id, to string, labels []string, parts ...models.MessagePart) {
	m.messages[id] = &fakeMessage{to: to, labels: labels, parts: parts}
	m.order = append(m.order, id)
}

func (m *fakeMailbox) addAttachment(messageID, attachmentID string, data []byte) {
	m.attachments[messageID+"/"+attachmentID] = data
}

func (m *fakeMailbox) labelName(id string) string {
	for _, l := range m.labels {
		if l.ID == id {
			return l.Name
		}
	}
	return id
}

func (m *fakeMailbox) ListLabels(ctx context.Context) ([]models.Label, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listLabelCalls++
	if m.labelsErr != nil {
		return nil, m.labelsErr
	}
	return slices.Clone(m.labels), nil
}

func (m *fakeMailbox) SearchMessages(ctx context.Context, q models.MessageQuery) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queries = append(m.queries, q)
	if m.searchErr != nil {
		return nil, m.searchErr
	}
	var ids []string
	for _, id := range m.order {
		msg := m.messages[id]
		if q.To != "" && !strings.EqualFold(msg.to, q.To) {
			continue
		}
		if q.HasAttachment && !slices.ContainsFunc(msg.parts, func(p models.MessagePart) bool { return p.Filename != "" }) {
			continue
		}
		if q.ExcludeLabel != "" && slices.ContainsFunc(msg.labels, func(l string) bool {
			return strings.EqualFold(m.labelName(l), q.ExcludeLabel)
		}) {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (m *fakeMailbox) GetMessage(ctx context.Context, id string) (models.CandidateMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fetched = append(m.fetched, id)
	if err := m.getErr[id]; err != nil {
		return models.CandidateMessage{}, err
	}
	msg, ok := m.messages[id]
	if !ok {
		return models.CandidateMessage{}, fmt.Errorf("message %s not found", id)
	}
	return models.CandidateMessage{ID: id, Parts: slices.Clone(msg.parts)}, nil
}

func (m *fakeMailbox) GetAttachment(ctx context.Context, messageID, attachmentID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := messageID + "/" + attachmentID
	if err := m.attErr[key]; err != nil {
		return "", err
	}
	data, ok := m.attachments[key]
	if !ok {
		return "", fmt.Errorf("attachment %s not found", key)
	}
	return base64.URLEncoding.EncodeToString(data), nil
}

func (m *fakeMailbox) ModifyLabels(ctx context.Context, ids, add, remove []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.modifies = append(m.modifies, modifyCall{ids: ids, add: add, remove: remove})
	if m.modifyErr != nil {
		return m.modifyErr
	}
	for _, id := range ids {
		if msg, ok := m.messages[id]; ok {
			msg.labels = append(msg.labels, add...)
			msg.labels = slices.DeleteFunc(msg.labels, func(l string) bool { return slices.Contains(remove, l) })
		}
	}
	return nil
}

type upload struct {
	parentID, name, mimeType string
	data                     []byte
}

type fakeStore struct {
	folders map[string]string // parentID/name -> id

	findErr, createErr, uploadErr error

	finds   []string
	creates []string
	uploads []upload
}

func newFakeStore() *fakeStore {
	return &fakeStore{folders: map[string]string{}}
}

func (s *fakeStore) FindFolder(ctx context.Context, parentID, name string) (string, bool, error) {
	s.finds = append(s.finds, name)
	if s.findErr != nil {
		return "", false, s.findErr
	}
	id, ok := s.folders[parentID+"/"+name]
	return id, ok, nil
}

func (s *fakeStore) CreateFolder(ctx context.Context, parentID, name string) (string, error) {
	s.creates = append(s.creates, name)
	if s.createErr != nil {
		return "", s.createErr
	}
	id := "folder-" + name
	s.folders[parentID+"/"+name] = id
	return id, nil
}

func (s *fakeStore) Upload(ctx context.Context, parentID, name, mimeType string, data []byte) (string, error) {
	if s.uploadErr != nil {
		return "", s.uploadErr
	}
	s.uploads = append(s.uploads, upload{parentID: parentID, name: name, mimeType: mimeType, data: data})
	return fmt.Sprintf("file-%d", len(s.uploads)), nil
}

func (s *fakeStore) FileURL(fileID string) string {
	return "https://drive.google.com/file/d/" + fileID + "/view"
}

type fakeCompleter struct {
	reply   string
	err     error
	prompts []string
}

func (c *fakeCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	c.prompts = append(c.prompts, prompt)
	return c.reply, c.err
}

type fakeLedger struct {
	rows []models.FiledInvoice
	err  error
}

func (l *fakeLedger) Insert(ctx context.Context, inv models.FiledInvoice) error {
	if l.err != nil {
		return l.err
	}
	l.rows = append(l.rows, inv)
	return nil
}

type fakeCredentials struct{ err error }

func (c fakeCredentials) Credential(ctx context.Context) (*oauth2.Token, error) {
	if c.err != nil {
		return nil, c.err
	}
	return &oauth2.Token{AccessToken: "t"}, nil
}

type fakeObserver struct {
	summaries []models.RunSummary
	err       error
}

func (o *fakeObserver) Name() string { return "fake" }

func (o *fakeObserver) ObserveRun(ctx context.Context, s models.RunSummary) error {
	o.summaries = append(o.summaries, s)
	return o.err
}

// stubPDF replaces the pdf readers: data "bad" fails both readers, anything
// else reads back as its own bytes.
func stubPDF(t *testing.T) {
	t.Helper()
	origCount, origText := pdfPageCount, pdfPlainText
	t.Cleanup(func() { pdfPageCount, pdfPlainText = origCount, origText })

	pdfPageCount = func(data []byte) (int, error) {
		if string(data) == "bad" {
			return 0, errors.New("xref table corrupted")
		}
		return 1, nil
	}
	pdfPlainText = func(data []byte) (string, error) {
		if string(data) == "bad" {
			return "", errors.New("malformed xref")
		}
		return string(data), nil
	}
}
