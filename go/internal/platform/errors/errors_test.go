package errors

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"connectrpc.com/connect"
	"github.com/google/uuid"
	"github.com/mcdev12/studysprint/go/internal/models"
)

func TestCodeKind(t *testing.T) {
	tests := []struct {
		code Code
		want Kind
	}{
		{CodeInvalidTransition, KindValidation},
		{CodeSessionNotActive, KindValidation},
		{CodeNotAuthorized, KindAuthorization},
		{CodeNotMember, KindAuthorization},
		{CodeRoundConflict, KindConflict},
		{CodeSessionNotFound, KindNotFound},
		{CodeStoreUnavailable, KindConnectivity},
		{CodeUnknown, KindInternal},
	}
	for _, tt := range tests {
		if got := tt.code.Kind(); got != tt.want {
			t.Errorf("%s.Kind() = %s want %s", tt.code, got, tt.want)
		}
	}
}

func TestConnectCode(t *testing.T) {
	if got := CodeRoundConflict.ConnectCode(); got != connect.CodeAborted {
		t.Fatalf("conflict maps to %v want %v", got, connect.CodeAborted)
	}
	if got := CodeNotAuthorized.ConnectCode(); got != connect.CodePermissionDenied {
		t.Fatalf("not authorized maps to %v", got)
	}
	if got := CodeStoreUnavailable.ConnectCode(); got != connect.CodeUnavailable {
		t.Fatalf("store unavailable maps to %v", got)
	}
}

func TestIsMatchesByCode(t *testing.T) {
	err := fmt.Errorf("advance: %w", New(CodeInvalidTransition, "VOTING -> DONE"))
	if !errors.Is(err, New(CodeInvalidTransition, "")) {
		t.Fatal("expected errors.Is to match by code")
	}
	if errors.Is(err, New(CodeRoundConflict, "")) {
		t.Fatal("unexpected match on different code")
	}
	if !IsKind(err, KindValidation) {
		t.Fatalf("KindOf = %s want validation", KindOf(err))
	}
	if KindOf(errors.New("boom")) != KindInternal {
		t.Fatal("plain errors should be internal")
	}
}

func TestConnectErrorCarriesActualRound(t *testing.T) {
	started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	deadline := started.Add(5 * time.Minute)
	actual := models.Round{
		SessionID:  uuid.New(),
		RoundIndex: 2,
		Status:     models.RoundStatusDiscussing,
		Prompt:     "why?",
		StartedAt:  &started,
		DeadlineAt: &deadline,
	}

	wire := ToConnectError(RoundConflict(actual))
	var cerr *connect.Error
	if !errors.As(wire, &cerr) {
		t.Fatalf("expected connect error, got %T", wire)
	}
	if cerr.Code() != connect.CodeAborted {
		t.Fatalf("code = %v want aborted", cerr.Code())
	}

	back := FromConnectError(wire)
	e, ok := As(back)
	if !ok {
		t.Fatalf("expected domain error, got %T", back)
	}
	if e.Code != CodeRoundConflict {
		t.Fatalf("code = %s want %s", e.Code, CodeRoundConflict)
	}
	if e.ActualRound == nil {
		t.Fatal("actual round missing")
	}
	got := e.ActualRound
	if got.SessionID != actual.SessionID || got.RoundIndex != 2 || got.Status != models.RoundStatusDiscussing {
		t.Fatalf("actual round = %+v", got)
	}
	if got.DeadlineAt == nil || !got.DeadlineAt.Equal(deadline) {
		t.Fatalf("deadline = %v want %v", got.DeadlineAt, deadline)
	}
}

func TestFromConnectErrorWithoutDetail(t *testing.T) {
	err := FromConnectError(connect.NewError(connect.CodeUnavailable, errors.New("down")))
	if !IsKind(err, KindConnectivity) {
		t.Fatalf("kind = %s want connectivity", KindOf(err))
	}
	err = FromConnectError(errors.New("dial tcp: refused"))
	if !IsKind(err, KindConnectivity) {
		t.Fatalf("transport failure kind = %s want connectivity", KindOf(err))
	}
}
