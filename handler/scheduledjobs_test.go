package handler

import (
	"testing"

	"github.com/CosminFerecatu/mail-queue-sub000/models"
	"github.com/google/uuid"
)

func TestScheduledJobFromRequestDefaults(t *testing.T) {
	appID := uuid.New()
	req := &models.CreateScheduledJobRequest{
		QueueID:    uuid.New(),
		Name:       "weekly-digest",
		CronExpr:   "0 9 * * 1",
		TemplateID: uuid.New(),
		To:         []models.Address{{Email: "u@example.com"}},
	}

	job := scheduledJobFromRequest(appID, req)
	if job.Timezone != "UTC" {
		t.Errorf("Timezone = %q, want UTC default", job.Timezone)
	}
	if !job.Active {
		t.Error("Active should default to true")
	}
	if job.AppID != appID || job.QueueID != req.QueueID || job.TemplateID != req.TemplateID {
		t.Error("ids not carried through")
	}
}

func TestScheduledJobFromRequestOverrides(t *testing.T) {
	inactive := false
	req := &models.CreateScheduledJobRequest{
		QueueID:    uuid.New(),
		Name:       "nightly",
		CronExpr:   "0 2 * * *",
		Timezone:   "Europe/Bucharest",
		TemplateID: uuid.New(),
		To:         []models.Address{{Email: "u@example.com"}},
		Active:     &inactive,
	}

	job := scheduledJobFromRequest(uuid.New(), req)
	if job.Timezone != "Europe/Bucharest" {
		t.Errorf("Timezone = %q, want Europe/Bucharest", job.Timezone)
	}
	if job.Active {
		t.Error("Active override not applied")
	}
}
