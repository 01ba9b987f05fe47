package domain

import (
	"testing"
	"time"
)

func TestPlanEconomics(t *testing.T) {
	if PlanPrice(PlanTypeSingle) != 5 {
		t.Errorf("single plan price = %v, want 5", PlanPrice(PlanTypeSingle))
	}
	if PlanPrice(PlanTypeProfessional) != 49 {
		t.Errorf("professional plan price = %v, want 49", PlanPrice(PlanTypeProfessional))
	}
	if PlanTypeSingle.Downloads() != 1 {
		t.Errorf("single plan downloads = %d, want 1", PlanTypeSingle.Downloads())
	}
	if PlanTypeProfessional.Downloads() != 10 {
		t.Errorf("professional plan downloads = %d, want 10", PlanTypeProfessional.Downloads())
	}
	if PlanTypeSingle.Validity() != 24*time.Hour {
		t.Errorf("single plan validity = %v, want 24h", PlanTypeSingle.Validity())
	}
	if PlanTypeProfessional.Validity() != 30*24*time.Hour {
		t.Errorf("professional plan validity = %v, want 720h", PlanTypeProfessional.Validity())
	}
}

func TestPlanTypeIsValid(t *testing.T) {
	if !PlanTypeSingle.IsValid() || !PlanTypeProfessional.IsValid() {
		t.Error("known plans must be valid")
	}
	if PlanType("enterprise").IsValid() {
		t.Error("unknown plan must be invalid")
	}
	if PlanType("").IsValid() {
		t.Error("empty plan must be invalid")
	}
}

func TestMinorUnits(t *testing.T) {
	cases := []struct {
		amount float64
		want   int64
	}{
		{5, 500},
		{49, 4900},
		{0.5, 50},
		{19.99, 1999},
		// math.Round защищает от усечения double-представления
		{0.29, 29},
	}
	for _, tc := range cases {
		if got := MinorUnits(tc.amount); got != tc.want {
			t.Errorf("MinorUnits(%v) = %d, want %d", tc.amount, got, tc.want)
		}
	}
}

func TestDownloadEligible(t *testing.T) {
	now := time.Now()
	future := now.Add(time.Hour)
	past := now.Add(-time.Hour)

	base := Purchase{
		Status:             PurchaseStatusCompleted,
		DownloadsRemaining: 1,
		ExpiresAt:          &future,
	}

	if !base.DownloadEligible(now) {
		t.Error("completed purchase with quota and future expiry must be eligible")
	}

	pending := base
	pending.Status = PurchaseStatusPending
	if pending.DownloadEligible(now) {
		t.Error("pending purchase must not be eligible")
	}

	exhausted := base
	exhausted.DownloadsRemaining = 0
	if exhausted.DownloadEligible(now) {
		t.Error("purchase with exhausted quota must not be eligible")
	}

	expired := base
	expired.ExpiresAt = &past
	if expired.DownloadEligible(now) {
		t.Error("expired purchase must not be eligible")
	}

	noExpiry := base
	noExpiry.ExpiresAt = nil
	if !noExpiry.DownloadEligible(now) {
		t.Error("purchase without expiry must be eligible while quota remains")
	}
}
