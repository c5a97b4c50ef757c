package models

import "testing"

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to FIRStatus
		want     bool
	}{
		{FIRStatusDraft, FIRStatusPendingApproval, true},
		{FIRStatusPendingApproval, FIRStatusApproved, true},
		{FIRStatusPendingApproval, FIRStatusDraft, true}, // rejection
		{FIRStatusDraft, FIRStatusApproved, false},       // no skipping review
		{FIRStatusApproved, FIRStatusDraft, false},       // approved is terminal
		{FIRStatusApproved, FIRStatusPendingApproval, false},
		{FIRStatusDraft, FIRStatusDraft, false},
	}
	for _, tc := range cases {
		if got := CanTransition(tc.from, tc.to); got != tc.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestIsValidFIRStatus(t *testing.T) {
	for _, valid := range []string{"draft", "pending_approval", "approved"} {
		if !IsValidFIRStatus(valid) {
			t.Errorf("IsValidFIRStatus(%q) = false", valid)
		}
	}
	for _, invalid := range []string{"pending", "rejected", "", "Draft"} {
		if IsValidFIRStatus(invalid) {
			t.Errorf("IsValidFIRStatus(%q) = true", invalid)
		}
	}
}

func TestNotificationTypeForEvent(t *testing.T) {
	if notificationTypeForEvent(FIREventApproved) != NotificationTypeApproval {
		t.Error("approved event should map to approval")
	}
	if notificationTypeForEvent(FIREventRejected) != NotificationTypeRejection {
		t.Error("rejected event should map to rejection")
	}
	if notificationTypeForEvent(FIREventSubmitted) != NotificationTypeSubmission {
		t.Error("submitted event should map to submission")
	}
}
