package models

import "time"

// AnalyticsBucket is one time-bucketed row of event counters for an app
// (C13). Buckets are UTC calendar days; the aggregator increments them as
// events arrive and the analytics handlers sum ranges of them.
type AnalyticsBucket struct {
	AppID     string    `json:"appId"`
	Bucket    time.Time `json:"bucket"`
	Sent      int64     `json:"sent"`
	Delivered int64     `json:"delivered"`
	Opened    int64     `json:"opened"`
	Clicked   int64     `json:"clicked"`
	Bounced   int64     `json:"bounced"`
	HardBounced int64   `json:"hardBounced"`
	SoftBounced int64   `json:"softBounced"`
	Complained int64    `json:"complained"`
	Unsubscribed int64  `json:"unsubscribed"`
}

// AnalyticsOverview is the response of GET /analytics/overview.
type AnalyticsOverview struct {
	Sent         int64   `json:"sent"`
	Delivered    int64   `json:"delivered"`
	Bounced      int64   `json:"bounced"`
	Failed       int64   `json:"failed"`
	DeliveryRate float64 `json:"deliveryRate"`
}

// EngagementOverview is the response of GET /analytics/engagement.
type EngagementOverview struct {
	Opened      int64   `json:"opened"`
	Clicked     int64   `json:"clicked"`
	OpenRate    float64 `json:"openRate"`
	ClickRate   float64 `json:"clickRate"`
}

// BounceOverview is the response of GET /analytics/bounces.
type BounceOverview struct {
	HardBounces int64   `json:"hardBounces"`
	SoftBounces int64   `json:"softBounces"`
	Complaints  int64   `json:"complaints"`
	BounceRate  float64 `json:"bounceRate"`
}
