package models

import "testing"

func TestComputeReputation_NoActivity(t *testing.T) {
	bounceRate, complaintRate, score, throttled, reason := ComputeReputation(0, 0, 0)
	if bounceRate != 0 || complaintRate != 0 {
		t.Fatalf("expected zero rates with no sends, got bounce=%v complaint=%v", bounceRate, complaintRate)
	}
	if score != 100 {
		t.Fatalf("expected a perfect score with no activity, got %v", score)
	}
	if throttled || reason != "" {
		t.Fatalf("expected no throttle with no activity, got throttled=%v reason=%q", throttled, reason)
	}
}

func TestComputeReputation_BounceRateThrottle(t *testing.T) {
	// 15/100 = 15% bounce rate, over the 10% trigger.
	bounceRate, _, score, throttled, reason := ComputeReputation(100, 15, 0)
	if bounceRate != 15 {
		t.Fatalf("expected bounceRate=15, got %v", bounceRate)
	}
	if score != 70 {
		t.Fatalf("expected score=100-2*15=70, got %v", score)
	}
	if !throttled || reason != "bounce_rate" {
		t.Fatalf("expected bounce_rate throttle, got throttled=%v reason=%q", throttled, reason)
	}
}

func TestComputeReputation_BounceRateThrottleTakesPrecedenceWhenBothTrigger(t *testing.T) {
	// 20/100 bounce (throttles) and 2/100 complaint (also throttles);
	// complaint check runs after bounce but only overwrites an empty reason,
	// so the first trigger in evaluation order (bounce) wins the label.
	_, complaintRate, _, throttled, reason := ComputeReputation(100, 20, 2)
	if complaintRate != 2 {
		t.Fatalf("expected complaintRate=2, got %v", complaintRate)
	}
	if !throttled || reason != "bounce_rate" {
		t.Fatalf("expected bounce_rate to win as the first trigger, got reason=%q", reason)
	}
}

func TestComputeReputation_ScoreClampsAtZero(t *testing.T) {
	_, _, score, throttled, _ := ComputeReputation(10, 10, 10)
	if score != 0 {
		t.Fatalf("expected score to clamp at 0, got %v", score)
	}
	if !throttled {
		t.Fatal("expected throttled at 100% bounce and complaint rates")
	}
}
