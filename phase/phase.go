// Package phase defines the fixed, ordered sequence of delivery phases a
// workflow moves through. The sequence is validated once at workflow
// creation and never mutated at runtime.
package phase

import (
	"fmt"

	"github.com/farmer1st/farmcode"
)

// Role identifies the worker role assigned to a phase. Roles form a closed,
// enumerated set; a sequence referencing any other role is rejected at
// workflow creation rather than failing at dispatch time.
type Role string

const (
	// RoleNone marks an await-phase: no worker is dispatched and the phase
	// is exited only by an external notification.
	RoleNone Role = ""

	RoleArchitect   Role = "architect"
	RolePlanner     Role = "planner"
	RoleTester      Role = "tester"
	RoleImplementer Role = "implementer"
	RoleReviewer    Role = "reviewer"
)

// Roles lists every dispatchable role.
var Roles = []Role{RoleArchitect, RolePlanner, RoleTester, RoleImplementer, RoleReviewer}

// Valid reports whether the role is in the closed set. RoleNone is valid:
// it denotes an await-phase.
func (r Role) Valid() bool {
	if r == RoleNone {
		return true
	}
	for _, known := range Roles {
		if r == known {
			return true
		}
	}
	return false
}

// Phase is one ordered step in the workflow sequence.
type Phase struct {
	// Name identifies the phase within its sequence. Unique, non-empty.
	Name string `json:"name"`

	// Role is the worker role dispatched for this phase. RoleNone makes
	// this an await-phase.
	Role Role `json:"role,omitempty"`

	// CanReject marks phases allowed to produce a REJECT outcome. A REJECT
	// from any other phase is a protocol violation.
	CanReject bool `json:"can_reject,omitempty"`
}

// IsAwait reports whether this phase has no worker role.
func (p Phase) IsAwait() bool { return p.Role == RoleNone }

// Sequence is an immutable ordered list of phases.
type Sequence []Phase

// Validate checks the sequence invariants: non-empty, unique non-empty
// names, all roles in the closed set, and no await-phase flagged CanReject.
func (s Sequence) Validate() error {
	if len(s) == 0 {
		return fmt.Errorf("%w: empty sequence", farmcode.ErrSequenceInvalid)
	}

	seen := make(map[string]struct{}, len(s))
	for i, p := range s {
		if p.Name == "" {
			return fmt.Errorf("%w: phase %d has no name", farmcode.ErrSequenceInvalid, i)
		}
		if _, dup := seen[p.Name]; dup {
			return fmt.Errorf("%w: duplicate phase name %q", farmcode.ErrSequenceInvalid, p.Name)
		}
		seen[p.Name] = struct{}{}

		if !p.Role.Valid() {
			return fmt.Errorf("%w: phase %q has unknown role %q", farmcode.ErrSequenceInvalid, p.Name, p.Role)
		}
		if p.IsAwait() && p.CanReject {
			return fmt.Errorf("%w: await-phase %q cannot reject", farmcode.ErrSequenceInvalid, p.Name)
		}
	}
	return nil
}

// At returns the phase at index i, or false if i is out of range.
func (s Sequence) At(i int) (Phase, bool) {
	if i < 0 || i >= len(s) {
		return Phase{}, false
	}
	return s[i], true
}

// DefaultSequence returns the standard delivery pipeline: specification,
// planning, test design, and implementation, each gated by a human approval
// await-phase, followed by a rejectable review and a final merge approval.
func DefaultSequence() Sequence {
	return Sequence{
		{Name: "specs", Role: RoleArchitect},
		{Name: "specs-approval"},
		{Name: "plans", Role: RolePlanner},
		{Name: "plans-approval"},
		{Name: "tests", Role: RoleTester},
		{Name: "tests-approval"},
		{Name: "implementation", Role: RoleImplementer},
		{Name: "review", Role: RoleReviewer, CanReject: true},
		{Name: "merge-approval"},
	}
}
