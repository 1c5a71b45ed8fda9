package repository

import (
	"fmt"

	"github.com/google/uuid"
	apperrors "github.com/mcdev12/studysprint/go/internal/platform/errors"
)

// SessionNotFound is returned by stores for unknown session ids.
func SessionNotFound(id uuid.UUID) error {
	return apperrors.WithMetadata(apperrors.CodeSessionNotFound,
		fmt.Sprintf("session %s not found", id),
		map[string]string{"session_id": id.String()})
}

// RoundNotFound is returned by stores for an index outside 1..N.
func RoundNotFound(id uuid.UUID, index int) error {
	return apperrors.WithMetadata(apperrors.CodeRoundNotFound,
		fmt.Sprintf("round %d not found in session %s", index, id),
		map[string]string{"session_id": id.String(), "round_index": fmt.Sprint(index)})
}

// MemberNotFound is returned when a user is not part of the session.
func MemberNotFound(id uuid.UUID, userID string) error {
	return apperrors.WithMetadata(apperrors.CodeMemberNotFound,
		fmt.Sprintf("user %s is not a member of session %s", userID, id),
		map[string]string{"session_id": id.String(), "user_id": userID})
}
