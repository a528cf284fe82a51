package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/Lllllllleong/invoiceflow/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const acmeReply = `{"vendor":"Acme","nip":"123","date":"2024-03-15","amount":"99.50","currency":"USD"}`

func TestParseInvoiceReply_FencedMatchesUnfenced(t *testing.T) {
	plain, err := ParseInvoiceReply(acmeReply)
	require.NoError(t, err)

	for _, fenced := range []string{
		"```json\n" + acmeReply + "\n```",
		"```\n" + acmeReply + "\n```",
		"  ```json" + acmeReply + "```  \n",
	} {
		got, err := ParseInvoiceReply(fenced)
		require.NoError(t, err, fenced)
		assert.Equal(t, plain, got, fenced)
	}

	assert.Equal(t, "Acme", plain.Vendor)
	assert.Equal(t, "123", plain.NIP)
	assert.Equal(t, "2024-03-15", plain.Date)
	assert.Equal(t, "99.50", plain.Amount)
	assert.Equal(t, "USD", plain.Currency)
	assert.JSONEq(t, acmeReply, string(plain.Raw))
}

func TestParseInvoiceReply_AcceptsNumbersAndNulls(t *testing.T) {
	rec, err := ParseInvoiceReply(`{"vendor":"Acme","nip":5260250274,"amount":1230.5,"date":null}`)
	require.NoError(t, err)
	assert.Equal(t, "5260250274", rec.NIP)
	assert.Equal(t, "1230.5", rec.Amount)
	assert.Empty(t, rec.Date)
	v, ok := rec.ParsedAmount()
	require.True(t, ok)
	assert.Equal(t, 1230.5, v)
}

func TestParseInvoiceReply_Rejects(t *testing.T) {
	for name, reply := range map[string]string{
		"prose":        "Sure! Here is the data you asked for.",
		"array":        `[{"vendor":"Acme"}]`,
		"truncated":    `{"vendor":"Acme"`,
		"objectVendor": `{"vendor":{"name":"Acme"}}`,
		"empty":        "",
	} {
		_, err := ParseInvoiceReply(reply)
		assert.ErrorIs(t, err, models.ErrFieldExtractionFailed, name)
	}
}

func TestExtractFields_PromptCarriesText(t *testing.T) {
	c := &fakeCompleter{reply: "```json\n" + acmeReply + "\n```"}
	rec, err := NewFieldExtractor(c, nil).ExtractFields(context.Background(), "INVOICE 2024/03/1")
	require.NoError(t, err)
	assert.Equal(t, "Acme", rec.Vendor)

	require.Len(t, c.prompts, 1)
	assert.True(t, strings.HasPrefix(c.prompts[0], "You are an accountant."))
	assert.True(t, strings.HasSuffix(c.prompts[0], "INVOICE TEXT:\nINVOICE 2024/03/1"))
	for _, field := range []string{"vendor", "nip", "date", "amount", "currency"} {
		assert.Contains(t, c.prompts[0], field)
	}
}

func TestExtractFields_CompletionError(t *testing.T) {
	c := &fakeCompleter{err: errors.New("timeout")}
	_, err := NewFieldExtractor(c, nil).ExtractFields(context.Background(), "x")
	assert.ErrorIs(t, err, models.ErrFieldExtractionFailed)
}

func TestStripCodeFences(t *testing.T) {
	assert.Equal(t, `{"a":1}`, StripCodeFences("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, StripCodeFences(`{"a":1}`))
}
