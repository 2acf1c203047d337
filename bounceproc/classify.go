// Package bounceproc implements the Retry Controller (C8) and the Bounce &
// Complaint Processor (C9): classifying an SMTP failure as permanent or
// transient, parsing inline DSN reports, and updating the suppression index
// from asynchronous bounce/complaint jobs. Grounded on the reference
// Classifier's category system (§4.8, §4.9), adapted to lead with the
// spec's own literal regex lists rather than the reference's provider-
// specific rule table, which is kept as a secondary signal.
package bounceproc

import (
	"regexp"
	"strings"
)

// permanentPatterns force a permanent classification regardless of SMTP
// code (§4.8).
var permanentPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)user unknown`),
	regexp.MustCompile(`(?i)mailbox not found`),
	regexp.MustCompile(`(?i)no such user`),
	regexp.MustCompile(`(?i)address rejected`),
	regexp.MustCompile(`(?i)invalid recipient`),
	regexp.MustCompile(`(?i)does not exist`),
	regexp.MustCompile(`(?i)550\s+5\.1\.1`),
}

// softPatterns keep a failure transient even if a permanent-looking SMTP
// code is present (§4.8).
var softPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)mailbox full`),
	regexp.MustCompile(`(?i)quota exceeded`),
	regexp.MustCompile(`(?i)temporarily`),
	regexp.MustCompile(`(?i)try again`),
	regexp.MustCompile(`(?i)451\s+`),
	regexp.MustCompile(`(?i)452\s+`),
}

// maxClassifyInput is the truncation applied before any regex runs (§4.8:
// "Input is truncated to 50 KB before regex application").
const maxClassifyInput = 50 * 1024

// transientCodes are the 4xx codes that never force permanence on their
// own (§4.8: "Permanent (5xx except 421/451/452 ...)").
var transientCodes = map[int]bool{421: true, 451: true, 452: true}

// IsHardBouncePattern reports whether a failure message matches one of the
// recipient-level hard-bounce patterns. These failures are not just
// permanent for this send: the address itself is bad, so the retry
// controller routes them through the bounce path (suppression entry,
// `bounced` event) instead of the generic failure path.
func IsHardBouncePattern(message string) bool {
	if len(message) > maxClassifyInput {
		message = message[:maxClassifyInput]
	}
	for _, re := range permanentPatterns {
		if re.MatchString(message) {
			return true
		}
	}
	return false
}

// ClassifyFailure decides whether an SMTP send failure is permanent or
// transient. smtpCode is 0 when no numeric code was extracted (socket
// errors, timeouts), which classifies as transient absent an overriding
// pattern match.
func ClassifyFailure(smtpCode int, message string) (permanent bool) {
	if IsHardBouncePattern(message) {
		return true
	}

	msg := message
	if len(msg) > maxClassifyInput {
		msg = msg[:maxClassifyInput]
	}
	for _, re := range softPatterns {
		if re.MatchString(msg) {
			return false
		}
	}

	switch {
	case smtpCode == 0:
		return false
	case transientCodes[smtpCode]:
		return false
	case smtpCode >= 400 && smtpCode < 500:
		return false
	case smtpCode >= 500 && smtpCode < 600:
		return true
	default:
		return false
	}
}

// smtpCodeRe extracts a leading 3-digit SMTP reply code, e.g. "550 5.1.1
// user unknown" or "421 4.3.2 service not available".
var smtpCodeRe = regexp.MustCompile(`\b([245]\d{2})\b`)

// ExtractSMTPCode pulls the first 3-digit SMTP code out of a raw error
// message, if present.
func ExtractSMTPCode(message string) (int, bool) {
	m := smtpCodeRe.FindStringSubmatch(message)
	if m == nil {
		return 0, false
	}
	code := 0
	for _, c := range m[1] {
		code = code*10 + int(c-'0')
	}
	return code, true
}

// maxExcerptLen and maxDSNRecipients bound what gets stored from an inline
// DSN report (§4.8: "500-char excerpt", "up to 100 recipient addresses").
const (
	maxExcerptLen    = 500
	maxDSNRecipients = 100
)

// DSNReport is what the processor extracts from an inline delivery status
// notification (§4.8).
type DSNReport struct {
	BounceType    string
	BounceSubType string
	Recipients    []string
	Excerpt       string
}

// bounceTypeRe/bounceSubTypeRe pull RFC-3464-ish "Action: failed" / status
// code hints out of a DSN body; absent an explicit DSN the caller derives
// BounceType itself from ClassifyFailure.
var (
	actionRe     = regexp.MustCompile(`(?i)Action:\s*(failed|delayed|delivered|relayed|expanded)`)
	statusCodeRe = regexp.MustCompile(`\b([245])\.(\d{1,3})\.(\d{1,3})\b`)
	dsnRecipRe   = regexp.MustCompile(`(?i)Final-Recipient:\s*rfc822;\s*([^\s]+)`)
)

// ParseDSN extracts bounceType/bounceSubType/recipients/excerpt from a raw
// DSN body, truncating input to 50 KB before any regex runs and
// deduplicating/truncating recipients to 100 (§4.8).
func ParseDSN(raw string) DSNReport {
	body := raw
	if len(body) > maxClassifyInput {
		body = body[:maxClassifyInput]
	}

	report := DSNReport{Excerpt: truncate(body, maxExcerptLen)}

	if m := actionRe.FindStringSubmatch(body); m != nil {
		report.BounceType = strings.ToLower(m[1])
	}
	if m := statusCodeRe.FindStringSubmatch(body); m != nil {
		report.BounceSubType = m[1] + "." + m[2] + "." + m[3]
	}

	seen := make(map[string]bool)
	for _, m := range dsnRecipRe.FindAllStringSubmatch(body, -1) {
		addr := strings.ToLower(strings.TrimSpace(m[1]))
		if addr == "" || seen[addr] {
			continue
		}
		seen[addr] = true
		report.Recipients = append(report.Recipients, addr)
		if len(report.Recipients) >= maxDSNRecipients {
			break
		}
	}

	return report
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
