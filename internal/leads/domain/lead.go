// Package domain provides core business rules for the leads bounded context.
package domain

const (
	LeadStatusOpen   = "open"
	LeadStatusClosed = "closed"
)

// terminalStatuses are lead statuses that accept no further fee entries or
// status changes.
var terminalStatuses = map[string]bool{
	LeadStatusClosed: true,
}

// IsKnownLeadStatus reports whether status is a valid lead status.
func IsKnownLeadStatus(status string) bool {
	return status == LeadStatusOpen || status == LeadStatusClosed
}

// IsTerminalStatus returns true if the status is terminal.
func IsTerminalStatus(status string) bool {
	return terminalStatuses[status]
}

// ValidateStatusTransition checks a lead status change. Returns a non-empty
// reason string when the change is not allowed.
func ValidateStatusTransition(from, to string) string {
	if !IsKnownLeadStatus(to) {
		return "unknown lead status " + to
	}
	if from == to {
		return "lead is already " + to
	}
	if IsTerminalStatus(from) {
		return "lead is " + from
	}
	return ""
}
