package phase_test

import (
	"errors"
	"testing"

	"github.com/farmer1st/farmcode"
	"github.com/farmer1st/farmcode/phase"
)

func TestSequenceValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		seq     phase.Sequence
		wantErr bool
	}{
		{
			name:    "empty sequence",
			seq:     phase.Sequence{},
			wantErr: true,
		},
		{
			name: "valid with await phases",
			seq: phase.Sequence{
				{Name: "specs", Role: phase.RoleArchitect},
				{Name: "specs-approval"},
				{Name: "review", Role: phase.RoleReviewer, CanReject: true},
			},
			wantErr: false,
		},
		{
			name: "unnamed phase",
			seq: phase.Sequence{
				{Name: "", Role: phase.RoleArchitect},
			},
			wantErr: true,
		},
		{
			name: "duplicate name",
			seq: phase.Sequence{
				{Name: "specs", Role: phase.RoleArchitect},
				{Name: "specs", Role: phase.RolePlanner},
			},
			wantErr: true,
		},
		{
			name: "unknown role",
			seq: phase.Sequence{
				{Name: "specs", Role: phase.Role("intern")},
			},
			wantErr: true,
		},
		{
			name: "rejectable await phase",
			seq: phase.Sequence{
				{Name: "gate", CanReject: true},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.seq.Validate()
			if tt.wantErr && !errors.Is(err, farmcode.ErrSequenceInvalid) {
				t.Errorf("Validate() = %v, want ErrSequenceInvalid", err)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("Validate() = %v, want nil", err)
			}
		})
	}
}

func TestSequenceAt(t *testing.T) {
	t.Parallel()

	seq := phase.DefaultSequence()

	if _, ok := seq.At(-1); ok {
		t.Error("At(-1) = ok, want out of range")
	}
	if _, ok := seq.At(len(seq)); ok {
		t.Error("At(len) = ok, want out of range")
	}
	p, ok := seq.At(0)
	if !ok || p.Name != "specs" {
		t.Errorf("At(0) = %+v, %v; want specs phase", p, ok)
	}
}

func TestDefaultSequence_IsValid(t *testing.T) {
	t.Parallel()

	if err := phase.DefaultSequence().Validate(); err != nil {
		t.Fatalf("DefaultSequence().Validate() = %v", err)
	}
}

func TestIsAwait(t *testing.T) {
	t.Parallel()

	if (phase.Phase{Name: "specs", Role: phase.RoleArchitect}).IsAwait() {
		t.Error("worker phase reported as await")
	}
	if !(phase.Phase{Name: "gate"}).IsAwait() {
		t.Error("await phase not reported as await")
	}
}
