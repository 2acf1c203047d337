package service

import (
	"regexp"
	"strings"

	"github.com/CosminFerecatu/mail-queue-sub000/apperr"
	"github.com/CosminFerecatu/mail-queue-sub000/models"
)

// addressRe is the "RFC-5322 simple form" the spec asks for: not a full
// grammar, just enough to catch the typo-class errors callers actually
// make (§4.1 step 1).
var addressRe = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// maxUnclosedTags is the "small tolerance" §4.1 step 2 allows before an
// HTML body is rejected as malformed.
const maxUnclosedTags = 3

var voidTags = map[string]bool{
	"area": true, "base": true, "br": true, "col": true, "embed": true,
	"hr": true, "img": true, "input": true, "link": true, "meta": true,
	"param": true, "source": true, "track": true, "wbr": true,
}

var tagRe = regexp.MustCompile(`<(/?)([a-zA-Z][a-zA-Z0-9]*)[^>]*?(/?)>`)

func validAddress(email string) bool {
	return addressRe.MatchString(strings.TrimSpace(email))
}

// validHTML reports whether html's tags are balanced within tolerance: a
// naive open/close stack, not a full parser, matching the spec's
// "clearly malformed" bar rather than strict XML well-formedness.
func validHTML(html string) bool {
	if html == "" {
		return true
	}
	var stack []string
	unmatched := 0
	for _, m := range tagRe.FindAllStringSubmatch(html, -1) {
		closing, name, selfClosed := m[1] == "/", strings.ToLower(m[2]), m[3] == "/"
		if voidTags[name] || selfClosed {
			continue
		}
		if closing {
			if len(stack) > 0 && stack[len(stack)-1] == name {
				stack = stack[:len(stack)-1]
			} else {
				unmatched++
			}
			continue
		}
		stack = append(stack, name)
	}
	unmatched += len(stack)
	return unmatched <= maxUnclosedTags
}

// validateSubmission runs every §4.1 step-1/2/3 input check and returns the
// full set of field errors found, in order, for the VALIDATION_ERROR
// details array.
func validateSubmission(req *models.SubmitEmailRequest) []apperr.FieldError {
	var fields []apperr.FieldError

	checkAddr := func(path, email string) {
		if email != "" && !validAddress(email) {
			fields = append(fields, apperr.FieldError{Path: path, Message: "not a valid email address"})
		}
	}

	checkAddr("from.email", req.From.Email)
	for i, a := range req.To {
		checkAddr(fieldPath("to", i), a.Email)
	}
	for i, a := range req.CC {
		checkAddr(fieldPath("cc", i), a.Email)
	}
	for i, a := range req.BCC {
		checkAddr(fieldPath("bcc", i), a.Email)
	}
	if req.ReplyTo != nil {
		checkAddr("replyTo.email", req.ReplyTo.Email)
	}

	if req.HTML != "" && !validHTML(req.HTML) {
		fields = append(fields, apperr.FieldError{Path: "html", Message: "malformed HTML: too many unclosed tags"})
	}

	if len(req.To)+len(req.CC)+len(req.BCC) == 0 {
		fields = append(fields, apperr.FieldError{Path: "to", Message: "at least one recipient is required"})
	}

	return fields
}

func fieldPath(group string, i int) string {
	return group + "[" + itoa(i) + "].email"
}

func itoa(i int) string {
	if i < 10 {
		return string(rune('0' + i))
	}
	return itoa(i/10) + string(rune('0'+i%10))
}
