package errors

import (
	"errors"
	"time"

	"connectrpc.com/connect"
	"github.com/google/uuid"
	"github.com/mcdev12/studysprint/go/internal/models"
	"google.golang.org/protobuf/types/known/structpb"
)

// ToConnectError converts err into a connect error. Domain errors carry a
// structured detail with the code, metadata and, for conflicts, the actual
// round.
func ToConnectError(err error) error {
	if err == nil {
		return nil
	}
	var cerr *connect.Error
	if errors.As(err, &cerr) {
		return cerr
	}
	e, ok := As(err)
	if !ok {
		return connect.NewError(connect.CodeInternal, err)
	}

	out := connect.NewError(e.Code.ConnectCode(), errors.New(e.Message))
	fields := map[string]any{
		"code": string(e.Code),
	}
	if len(e.Metadata) > 0 {
		md := make(map[string]any, len(e.Metadata))
		for k, v := range e.Metadata {
			md[k] = v
		}
		fields["metadata"] = md
	}
	if e.ActualRound != nil {
		fields["actualRound"] = roundToMap(*e.ActualRound)
	}
	st, serr := structpb.NewStruct(fields)
	if serr != nil {
		return out
	}
	if detail, derr := connect.NewErrorDetail(st); derr == nil {
		out.AddDetail(detail)
	}
	return out
}

// FromConnectError restores a domain error from a connect error returned by
// a client call. Transport failures become connectivity errors.
func FromConnectError(err error) error {
	if err == nil {
		return nil
	}
	var cerr *connect.Error
	if !errors.As(err, &cerr) {
		return Wrap(CodeStoreUnavailable, "rpc failed", err)
	}

	for _, d := range cerr.Details() {
		msg, verr := d.Value()
		if verr != nil {
			continue
		}
		st, ok := msg.(*structpb.Struct)
		if !ok {
			continue
		}
		fields := st.AsMap()
		code, _ := fields["code"].(string)
		if code == "" {
			continue
		}
		out := &Error{Code: Code(code), Message: cerr.Message()}
		if md, ok := fields["metadata"].(map[string]any); ok {
			out.Metadata = make(map[string]string, len(md))
			for k, v := range md {
				if s, ok := v.(string); ok {
					out.Metadata[k] = s
				}
			}
		}
		if rm, ok := fields["actualRound"].(map[string]any); ok {
			r := roundFromMap(rm)
			out.ActualRound = &r
		}
		return out
	}

	return Wrap(codeFromConnect(cerr.Code()), cerr.Message(), err)
}

func roundToMap(r models.Round) map[string]any {
	m := map[string]any{
		"sessionId":  r.SessionID.String(),
		"roundIndex": r.RoundIndex,
		"status":     string(r.Status),
		"prompt":     r.Prompt,
	}
	if r.StartedAt != nil {
		m["startedAt"] = r.StartedAt.UTC().Format(time.RFC3339Nano)
	}
	if r.DeadlineAt != nil {
		m["deadlineAt"] = r.DeadlineAt.UTC().Format(time.RFC3339Nano)
	}
	return m
}

func roundFromMap(m map[string]any) models.Round {
	var r models.Round
	if s, ok := m["sessionId"].(string); ok {
		r.SessionID, _ = uuid.Parse(s)
	}
	if n, ok := m["roundIndex"].(float64); ok {
		r.RoundIndex = int(n)
	}
	if s, ok := m["status"].(string); ok {
		r.Status = models.RoundStatus(s)
	}
	if s, ok := m["prompt"].(string); ok {
		r.Prompt = s
	}
	r.StartedAt = parseTime(m["startedAt"])
	r.DeadlineAt = parseTime(m["deadlineAt"])
	return r
}

func parseTime(v any) *time.Time {
	s, ok := v.(string)
	if !ok {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return nil
	}
	return &t
}
