package conversation

import "fmt"

// VerdictKind classifies a validator outcome.
type VerdictKind int

const (
	VerdictPass VerdictKind = iota
	VerdictFail
	VerdictEnd
)

func (k VerdictKind) String() string {
	switch k {
	case VerdictPass:
		return "PASS"
	case VerdictFail:
		return "FAIL"
	case VerdictEnd:
		return "END"
	default:
		return fmt.Sprintf("VerdictKind(%d)", int(k))
	}
}

// DefaultFailReason is used when a failure carries no usable explanation.
const DefaultFailReason = "response did not satisfy the required answer structure"

// Verdict is the validator's control signal. It is never stored as conversation content.
type Verdict struct {
	Kind   VerdictKind
	Reason string
}

// Pass accepts the candidate answer.
func Pass() Verdict { return Verdict{Kind: VerdictPass} }

// End forces termination because the loop limit was reached.
func End() Verdict { return Verdict{Kind: VerdictEnd, Reason: "loop limit reached"} }

// Fail rejects the candidate answer. An empty reason is replaced by DefaultFailReason.
func Fail(reason string) Verdict {
	if reason == "" {
		reason = DefaultFailReason
	}
	return Verdict{Kind: VerdictFail, Reason: reason}
}

// Terminal reports whether the verdict ends the turn.
func (v Verdict) Terminal() bool { return v.Kind != VerdictFail }

func (v Verdict) String() string {
	if v.Kind == VerdictFail {
		return "FAIL(" + v.Reason + ")"
	}
	return v.Kind.String()
}
