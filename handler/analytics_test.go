package handler

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestAnalyticsRangeDefaultsToTrailingWeek(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/v1/analytics/overview", nil)
	from, to := analyticsRange(r)

	gotSpan := to.Sub(from)
	wantSpan := 7 * 24 * time.Hour
	if diff := gotSpan - wantSpan; diff > time.Second || diff < -time.Second {
		t.Errorf("default window = %v, want %v", gotSpan, wantSpan)
	}
}

func TestAnalyticsRangeHonorsQueryParams(t *testing.T) {
	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 1, 8, 0, 0, 0, 0, time.UTC)
	r := httptest.NewRequest(http.MethodGet, "/v1/analytics/overview?from="+from.Format(time.RFC3339)+"&to="+to.Format(time.RFC3339), nil)

	gotFrom, gotTo := analyticsRange(r)
	if !gotFrom.Equal(from) {
		t.Errorf("from = %v, want %v", gotFrom, from)
	}
	if !gotTo.Equal(to) {
		t.Errorf("to = %v, want %v", gotTo, to)
	}
}

func TestAnalyticsRangeIgnoresMalformedParams(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/v1/analytics/overview?from=not-a-date", nil)
	from, to := analyticsRange(r)
	if to.Sub(from) <= 0 {
		t.Errorf("malformed ?from should fall back to the default window, got span %v", to.Sub(from))
	}
}
