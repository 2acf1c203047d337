package service

import (
	"testing"

	"github.com/CosminFerecatu/mail-queue-sub000/models"
	"github.com/stretchr/testify/assert"
)

func TestValidAddress(t *testing.T) {
	assert.True(t, validAddress("user@example.com"))
	assert.True(t, validAddress(" user@example.com "))
	assert.False(t, validAddress("not-an-address"))
	assert.False(t, validAddress("user@"))
	assert.False(t, validAddress("@example.com"))
}

func TestValidHTML(t *testing.T) {
	assert.True(t, validHTML(""))
	assert.True(t, validHTML("<p>hello <b>world</b></p>"))
	assert.True(t, validHTML("<p>line<br>break</p><img src=x>"))
	assert.False(t, validHTML("<div><div><div><div><p>never closed"))
}

func TestValidateSubmission(t *testing.T) {
	req := &models.SubmitEmailRequest{
		From:    models.Address{Email: "sender@example.com"},
		To:      []models.Address{{Email: "not-valid"}, {Email: "ok@example.com"}},
		Subject: "hi",
		Text:    "body",
	}
	fields := validateSubmission(req)
	assert.Len(t, fields, 1)
	assert.Equal(t, "to[0].email", fields[0].Path)
}

func TestValidateSubmission_NoRecipients(t *testing.T) {
	req := &models.SubmitEmailRequest{From: models.Address{Email: "sender@example.com"}, Subject: "hi", Text: "body"}
	fields := validateSubmission(req)
	assert.Len(t, fields, 1)
	assert.Equal(t, "to", fields[0].Path)
}

func TestDedupeRecipients(t *testing.T) {
	to := []models.Address{{Email: "A@Example.com"}, {Email: "b@example.com"}}
	cc := []models.Address{{Email: "a@example.com"}}
	got := dedupeRecipients(to, cc, nil)
	assert.Equal(t, []string{"a@example.com", "b@example.com"}, got)
}
