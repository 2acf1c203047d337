package bounceproc

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyFailure_PermanentPatternsOverrideCode(t *testing.T) {
	assert.True(t, ClassifyFailure(450, "450 4.1.1 user unknown in virtual mailbox table"))
	assert.True(t, ClassifyFailure(0, "No such user here"))
	assert.True(t, ClassifyFailure(0, "550 5.1.1 address rejected"))
}

func TestClassifyFailure_SoftPatternsOverrideCode(t *testing.T) {
	assert.False(t, ClassifyFailure(550, "550 mailbox full, quota exceeded"))
	assert.False(t, ClassifyFailure(0, "try again later"))
}

func TestIsHardBouncePattern(t *testing.T) {
	assert.True(t, IsHardBouncePattern("550 5.1.1 user unknown"))
	assert.True(t, IsHardBouncePattern("Recipient address rejected: mailbox not found"))
	// Permanent for this send, but not a recipient-level hard bounce: no
	// suppression treatment.
	assert.False(t, IsHardBouncePattern("554 transaction failed"))
	assert.False(t, IsHardBouncePattern("connection reset by peer"))
}

func TestClassifyFailure_FallsBackToSMTPCode(t *testing.T) {
	assert.True(t, ClassifyFailure(554, "transaction failed"))
	assert.False(t, ClassifyFailure(421, "service not available"))
	assert.False(t, ClassifyFailure(452, "too many recipients"))
	assert.False(t, ClassifyFailure(0, "connection reset by peer"))
}

func TestClassifyFailure_TruncatesOversizedInput(t *testing.T) {
	huge := strings.Repeat("x", maxClassifyInput+10) + "user unknown"
	assert.False(t, ClassifyFailure(0, huge), "the matching text falls past the 50KB truncation boundary")
}

func TestExtractSMTPCode(t *testing.T) {
	code, ok := ExtractSMTPCode("550 5.1.1 user unknown")
	assert.True(t, ok)
	assert.Equal(t, 550, code)

	_, ok = ExtractSMTPCode("connection timed out")
	assert.False(t, ok)
}

func TestParseDSN(t *testing.T) {
	raw := `Reporting-MTA: dns; mail.example.com
Action: failed
Status: 5.1.1
Final-Recipient: rfc822; bob@example.com
Final-Recipient: rfc822; bob@example.com
Final-Recipient: rfc822; CAROL@example.com
Diagnostic-Code: smtp; 550 5.1.1 user unknown`

	report := ParseDSN(raw)
	assert.Equal(t, "failed", report.BounceType)
	assert.Equal(t, "5.1.1", report.BounceSubType)
	assert.Equal(t, []string{"bob@example.com", "carol@example.com"}, report.Recipients)
	assert.Contains(t, report.Excerpt, "Action: failed")
}

func TestParseDSN_RecipientCapAndDedup(t *testing.T) {
	var b strings.Builder
	b.WriteString("Action: failed\n")
	for i := 0; i < 150; i++ {
		b.WriteString("Final-Recipient: rfc822; user")
		b.WriteString(strings.Repeat("z", i/5+1))
		b.WriteString("@example.com\n")
	}
	// 150 lines carry 30 distinct addresses, each repeated 5 times; dedup
	// must collapse them to 30, which stays within maxDSNRecipients.
	report := ParseDSN(b.String())
	assert.LessOrEqual(t, len(report.Recipients), maxDSNRecipients)
	assert.Equal(t, 30, len(report.Recipients))
}
