package compliance

import (
	"fmt"

	"ROLLCALL-backend/internal/persistence"
)

type Status string

const (
	StatusNormal   Status = "Normal"
	StatusWarning  Status = "Warning"
	StatusExcluded Status = "Excluded"
)

// Evaluate は現在の件数だけから状態を決める。記録順や履歴には依存しない
func Evaluate(c persistence.MarkCounts, p Policy) Status {
	switch {
	case c.Unjustified >= p.ExcludeUnjustified || c.Justified >= p.ExcludeJustified:
		return StatusExcluded
	case c.Unjustified >= p.WarnUnjustified || c.Unjustified+c.Justified >= p.WarnTotal:
		return StatusWarning
	default:
		return StatusNormal
	}
}

// Reason はマーカーに残す文言
func Reason(s Status, c persistence.MarkCounts) string {
	switch s {
	case StatusExcluded:
		return fmt.Sprintf("excluded: %d unjustified and %d justified absences", c.Unjustified, c.Justified)
	case StatusWarning:
		return fmt.Sprintf("warning: %d unjustified and %d justified absences", c.Unjustified, c.Justified)
	}
	return ""
}
