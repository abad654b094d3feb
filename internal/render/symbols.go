package render

// ToolStatus is the state of a tool call in the view.
type ToolStatus int

const (
	StatusRunning ToolStatus = iota
	StatusSuccess
	StatusError
	StatusPending
)

// Symbol returns the status glyph, or its ASCII stand-in for terminals that
// cannot draw it.
func (s ToolStatus) Symbol(unicode bool) string {
	if unicode {
		if s == StatusPending {
			return "○"
		}
		return "●"
	}
	switch s {
	case StatusSuccess:
		return "+"
	case StatusError:
		return "x"
	case StatusPending:
		return "-"
	default:
		return "*"
	}
}

func (s ToolStatus) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusError:
		return "error"
	case StatusPending:
		return "pending"
	default:
		return "running"
	}
}
