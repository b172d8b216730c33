package conversation

// QueryKind is the coarse intent of a user query, used to pick regeneration guidance.
type QueryKind int

const (
	// QueryGeneral asks about a product as a whole and expects the full attribute structure.
	QueryGeneral QueryKind = iota
	// QueryTargeted asks for specific attributes only.
	QueryTargeted
	// QueryFollowUp refers back to an earlier answer or is a short acknowledgement.
	QueryFollowUp
)

func (k QueryKind) String() string {
	switch k {
	case QueryTargeted:
		return "targeted"
	case QueryFollowUp:
		return "follow-up"
	default:
		return "general"
	}
}

// Regeneration is the guidance handed to the Responder after a failed validation.
type Regeneration struct {
	Reason      string
	Evidence    []string
	PriorAnswer string
	Kind        QueryKind
}

// Mode selects how the Responder is prompted. A nil Regenerate means normal mode.
type Mode struct {
	Regenerate *Regeneration
}

// Normal is the default responder mode.
func Normal() Mode { return Mode{} }
