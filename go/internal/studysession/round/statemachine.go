// Package round holds the pure rules for moving a round between phases.
// Nothing here performs I/O; the coordinator feeds it persisted state.
package round

import (
	"fmt"

	"github.com/mcdev12/studysprint/go/internal/models"
	apperrors "github.com/mcdev12/studysprint/go/internal/platform/errors"
)

var transitions = map[models.RoundStatus][]models.RoundStatus{
	models.RoundStatusCreated:    {models.RoundStatusVoting},
	models.RoundStatusVoting:     {models.RoundStatusDiscussing},
	models.RoundStatusDiscussing: {models.RoundStatusRevoting, models.RoundStatusExplaining},
	models.RoundStatusRevoting:   {models.RoundStatusDiscussing, models.RoundStatusExplaining},
	models.RoundStatusExplaining: {models.RoundStatusDone},
}

// AllowedNext lists the statuses reachable from current in one step.
func AllowedNext(current models.RoundStatus) []models.RoundStatus {
	return append([]models.RoundStatus(nil), transitions[current]...)
}

// CanTransition reports whether from -> to is an allowed edge.
func CanTransition(from, to models.RoundStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// AlreadyReached reports whether a round now in current has been through
// status to, so a request for that edge lost to an earlier one. CREATED is
// never reached by a transition.
func AlreadyReached(current, to models.RoundStatus) bool {
	if to == models.RoundStatusCreated {
		return false
	}
	seen := map[models.RoundStatus]bool{to: true}
	queue := []models.RoundStatus{to}
	for len(queue) > 0 {
		status := queue[0]
		queue = queue[1:]
		if status == current {
			return true
		}
		for _, next := range transitions[status] {
			if !seen[next] {
				seen[next] = true
				queue = append(queue, next)
			}
		}
	}
	return false
}

// IsTerminal reports whether no transition leaves status.
func IsTerminal(status models.RoundStatus) bool {
	return status == models.RoundStatusDone
}

// IsOpen reports whether the round is in a timed phase.
func IsOpen(status models.RoundStatus) bool {
	switch status {
	case models.RoundStatusVoting, models.RoundStatusDiscussing,
		models.RoundStatusRevoting, models.RoundStatusExplaining:
		return true
	}
	return false
}

// CanControl reports whether m may drive round and session transitions.
func CanControl(m *models.Member) bool {
	if m == nil {
		return false
	}
	return m.AssignedRole == models.AssignedRoleFacilitator ||
		m.GroupRole == models.GroupRoleOwner ||
		m.GroupRole == models.GroupRoleMod
}

// CanKeepTime reports whether m may extend a running deadline.
func CanKeepTime(m *models.Member) bool {
	return CanControl(m) || (m != nil && m.AssignedRole == models.AssignedRoleTimekeeper)
}

// ValidateTransition checks current -> requested for caller. An edge outside
// the whitelist fails validation whatever the caller's role; a valid edge
// then requires a caller who can control rounds. caller is nil for users
// who are not session members.
func ValidateTransition(current, requested models.RoundStatus, caller *models.Member) error {
	if !CanTransition(current, requested) {
		return apperrors.WithMetadata(
			apperrors.CodeInvalidTransition,
			fmt.Sprintf("cannot move round from %s to %s", current, requested),
			map[string]string{"from": string(current), "to": string(requested)},
		)
	}
	if !CanControl(caller) {
		return apperrors.New(apperrors.CodeNotAuthorized, "only a facilitator, owner or moderator can advance rounds")
	}
	return nil
}

// AcceptedSubmission returns the submission kind the phase collects.
func AcceptedSubmission(status models.RoundStatus) (models.SubmissionKind, bool) {
	switch status {
	case models.RoundStatusVoting:
		return models.SubmissionKindVote, true
	case models.RoundStatusRevoting:
		return models.SubmissionKindRevote, true
	case models.RoundStatusExplaining:
		return models.SubmissionKindExplanation, true
	}
	return "", false
}

// ValidateSubmission checks that a round in status collects kind.
func ValidateSubmission(status models.RoundStatus, kind models.SubmissionKind) error {
	if accepted, ok := AcceptedSubmission(status); ok && accepted == kind {
		return nil
	}
	return apperrors.WithMetadata(
		apperrors.CodeRoundNotAccepting,
		fmt.Sprintf("round in %s does not accept %s submissions", status, kind),
		map[string]string{"status": string(status), "kind": string(kind)},
	)
}
