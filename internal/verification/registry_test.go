package verification

import (
	"context"
	"testing"
)

func TestRegistryAnswersOnlyRecordedEvidence(t *testing.T) {
	r := NewRegistry()
	ctx := context.Background()

	if ok, _ := r.PhoneVerified(ctx, "guest-1"); ok {
		t.Fatal("PhoneVerified() = true before anything was recorded")
	}

	r.RecordPhoneVerified("guest-1")
	r.RecordDocumentStored("guest-1")
	r.RecordVouch("guest-1", " elder@kigali ")

	if ok, _ := r.PhoneVerified(ctx, "guest-1"); !ok {
		t.Fatal("PhoneVerified() = false after RecordPhoneVerified")
	}

	if ok, _ := r.DocumentStored(ctx, "guest-1"); !ok {
		t.Fatal("DocumentStored() = false after RecordDocumentStored")
	}

	ok, contact, _ := r.ConfirmVouch(ctx, "guest-1")
	if !ok || contact != "elder@kigali" {
		t.Fatalf("ConfirmVouch() = %t, %q; want true, elder@kigali", ok, contact)
	}

	if ok, _ := r.DocumentStored(ctx, "guest-2"); ok {
		t.Fatal("DocumentStored() leaked across participants")
	}
}

func TestRegistryWithdrawsVouchOnEmptyContact(t *testing.T) {
	r := NewRegistry()

	r.RecordVouch("guest-1", "elder@kigali")
	r.RecordVouch("guest-1", "  ")

	if ok, _, _ := r.ConfirmVouch(context.Background(), "guest-1"); ok {
		t.Fatal("ConfirmVouch() = true after the vouch was withdrawn")
	}
}
