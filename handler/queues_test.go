package handler

import (
	"reflect"
	"testing"

	"github.com/CosminFerecatu/mail-queue-sub000/models"
	"github.com/google/uuid"
)

func TestQueueFromRequestDefaults(t *testing.T) {
	appID := uuid.New()
	req := &models.CreateQueueRequest{Name: "transactional"}

	q := queueFromRequest(appID, req)

	if q.AppID != appID {
		t.Errorf("AppID = %v, want %v", q.AppID, appID)
	}
	if q.Priority != 5 {
		t.Errorf("Priority default = %d, want 5", q.Priority)
	}
	if q.MaxRetries != models.DefaultMaxRetries {
		t.Errorf("MaxRetries default = %d, want %d", q.MaxRetries, models.DefaultMaxRetries)
	}
	if !reflect.DeepEqual(q.RetryDelay, models.DefaultRetryDelay) {
		t.Errorf("RetryDelay default = %v, want %v", q.RetryDelay, models.DefaultRetryDelay)
	}
	if q.SMTPConfigID != nil {
		t.Errorf("SMTPConfigID = %v, want nil when request omits it", q.SMTPConfigID)
	}
}

func TestQueueFromRequestOverrides(t *testing.T) {
	appID := uuid.New()
	smtpID := uuid.New()
	rate := 100
	maxRetries := 2
	req := &models.CreateQueueRequest{
		Name: "bulk", Priority: 9, RateLimit: &rate, MaxRetries: &maxRetries,
		RetryDelay: []int{5, 10}, SMTPConfigID: smtpID.String(), TrackingEnabled: true,
	}

	q := queueFromRequest(appID, req)

	if q.Priority != 9 {
		t.Errorf("Priority = %d, want 9", q.Priority)
	}
	if q.MaxRetries != 2 {
		t.Errorf("MaxRetries = %d, want 2", q.MaxRetries)
	}
	if !reflect.DeepEqual(q.RetryDelay, []int{5, 10}) {
		t.Errorf("RetryDelay = %v, want [5 10]", q.RetryDelay)
	}
	if q.SMTPConfigID == nil || *q.SMTPConfigID != smtpID {
		t.Errorf("SMTPConfigID = %v, want %v", q.SMTPConfigID, smtpID)
	}
	if !q.TrackingEnabled {
		t.Error("TrackingEnabled = false, want true")
	}
}

func TestQueueFromRequestInvalidSMTPConfigIDIgnored(t *testing.T) {
	q := queueFromRequest(uuid.New(), &models.CreateQueueRequest{Name: "x", SMTPConfigID: "not-a-uuid"})
	if q.SMTPConfigID != nil {
		t.Errorf("SMTPConfigID = %v, want nil for an unparsable id", q.SMTPConfigID)
	}
}
