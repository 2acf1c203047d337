package worker

import (
	"fmt"
	"net/textproto"
	"strings"
	"testing"

	"github.com/CosminFerecatu/mail-queue-sub000/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestFormatAddress(t *testing.T) {
	assert.Equal(t, "user@example.com", formatAddress(models.Address{Email: "user@example.com"}))
	assert.Equal(t, "Jane Doe <jane@example.com>", formatAddress(models.Address{Name: "Jane Doe", Email: "jane@example.com"}))
}

func TestFormatAddressList(t *testing.T) {
	got := formatAddressList([]models.Address{{Email: "a@example.com"}, {Name: "B", Email: "b@example.com"}})
	assert.Equal(t, "a@example.com, B <b@example.com>", got)
}

func TestBuildMIME_MultipartAlternative(t *testing.T) {
	email := &models.Email{
		ID:      uuid.New(),
		From:    models.Address{Email: "from@example.com"},
		To:      []models.Address{{Email: "to@example.com"}},
		Subject: "hi",
		Text:    "plain body",
	}
	raw := string(buildMIME(email, "<p>html body</p>"))

	assert.True(t, strings.HasPrefix(raw, "From: from@example.com\r\n"))
	assert.Contains(t, raw, "To: to@example.com\r\n")
	assert.Contains(t, raw, "Subject: hi\r\n")
	assert.Contains(t, raw, "multipart/alternative")
	assert.Contains(t, raw, "plain body")
	assert.Contains(t, raw, "<p>html body</p>")
}

func TestBuildMIME_HTMLOnly(t *testing.T) {
	email := &models.Email{ID: uuid.New(), From: models.Address{Email: "f@x.com"}, To: []models.Address{{Email: "t@x.com"}}}
	raw := string(buildMIME(email, "<b>only html</b>"))
	assert.Contains(t, raw, "Content-Type: text/html; charset=utf-8")
	assert.NotContains(t, raw, "multipart/alternative")
}

func TestBuildMIME_TextOnly(t *testing.T) {
	email := &models.Email{ID: uuid.New(), From: models.Address{Email: "f@x.com"}, To: []models.Address{{Email: "t@x.com"}}, Text: "just text"}
	raw := string(buildMIME(email, ""))
	assert.Contains(t, raw, "Content-Type: text/plain; charset=utf-8")
	assert.Contains(t, raw, "just text")
}

func TestClassifySMTPError_ProtocolError(t *testing.T) {
	err := &textproto.Error{Code: 550, Msg: "user unknown"}
	code, msg := classifySMTPError(err)
	assert.Equal(t, 550, code)
	assert.Equal(t, "user unknown", msg)
}

func TestClassifySMTPError_ConnectionError(t *testing.T) {
	err := fmt.Errorf("dial tcp: connection refused")
	code, msg := classifySMTPError(err)
	assert.Equal(t, 0, code)
	assert.Equal(t, "dial tcp: connection refused", msg)
}
