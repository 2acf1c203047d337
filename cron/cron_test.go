package cron

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateExpr(t *testing.T) {
	assert.NoError(t, ValidateExpr("0 9 * * *"))
	assert.Error(t, ValidateExpr("not a cron expression"))
}

func TestNextRun_DailyAtNine(t *testing.T) {
	after := time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)
	next, err := NextRun("0 9 * * *", "UTC", after)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC), next)
}

func TestNextRun_InvalidTimezoneFallsBackToUTC(t *testing.T) {
	after := time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)
	next, err := NextRun("0 9 * * *", "Not/A_Zone", after)
	require.NoError(t, err)
	assert.Equal(t, 9, next.Hour())
}

func TestNextRun_InvalidExprErrors(t *testing.T) {
	_, err := NextRun("garbage", "UTC", time.Now())
	assert.Error(t, err)
}
