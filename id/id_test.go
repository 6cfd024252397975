package id_test

import (
	"testing"

	"github.com/farmer1st/farmcode/id"
)

func TestNew_GeneratesPrefixedIDs(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		gen    func() id.ID
		prefix id.Prefix
	}{
		{"workflow", id.NewWorkflowID, id.PrefixWorkflow},
		{"job", id.NewJobID, id.PrefixJob},
		{"event", id.NewEventID, id.PrefixEvent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.gen()
			if got.IsNil() {
				t.Fatal("generated ID is nil")
			}
			if got.Prefix() != tt.prefix {
				t.Errorf("Prefix() = %q, want %q", got.Prefix(), tt.prefix)
			}
		})
	}
}

func TestParse_RoundTrip(t *testing.T) {
	t.Parallel()

	orig := id.NewWorkflowID()
	parsed, err := id.Parse(orig.String())
	if err != nil {
		t.Fatalf("Parse(%q) returned error: %v", orig.String(), err)
	}
	if parsed.String() != orig.String() {
		t.Errorf("round trip = %q, want %q", parsed.String(), orig.String())
	}
}

func TestParse_RejectsInvalid(t *testing.T) {
	t.Parallel()

	for _, s := range []string{"", "not a typeid", "UPPER_01h2xcejqtf2nbrexx3vqjhp41"} {
		if _, err := id.Parse(s); err == nil {
			t.Errorf("Parse(%q) succeeded, want error", s)
		}
	}
}

func TestParseWithPrefix_RejectsMismatch(t *testing.T) {
	t.Parallel()

	jobID := id.NewJobID()
	if _, err := id.ParseWorkflowID(jobID.String()); err == nil {
		t.Errorf("ParseWorkflowID(%q) succeeded, want prefix mismatch error", jobID.String())
	}
}

func TestNil_MarshalsToEmpty(t *testing.T) {
	t.Parallel()

	data, err := id.Nil.MarshalText()
	if err != nil {
		t.Fatalf("MarshalText returned error: %v", err)
	}
	if len(data) != 0 {
		t.Errorf("Nil.MarshalText() = %q, want empty", data)
	}

	var back id.ID
	if err := back.UnmarshalText(nil); err != nil {
		t.Fatalf("UnmarshalText(nil) returned error: %v", err)
	}
	if !back.IsNil() {
		t.Error("UnmarshalText(nil) produced non-nil ID")
	}
}

func TestScan_StringAndBytes(t *testing.T) {
	t.Parallel()

	orig := id.NewJobID()

	var fromString id.ID
	if err := fromString.Scan(orig.String()); err != nil {
		t.Fatalf("Scan(string) returned error: %v", err)
	}
	if fromString.String() != orig.String() {
		t.Errorf("Scan(string) = %q, want %q", fromString.String(), orig.String())
	}

	var fromNil id.ID
	if err := fromNil.Scan(nil); err != nil {
		t.Fatalf("Scan(nil) returned error: %v", err)
	}
	if !fromNil.IsNil() {
		t.Error("Scan(nil) produced non-nil ID")
	}
}
