package sqlutil

import (
	"database/sql"
	"testing"
	"time"
)

func TestNullMillisRoundTrip(t *testing.T) {
	if v := ToNullMillis(nil); v.Valid {
		t.Fatal("nil time should be invalid")
	}
	if got := FromNullMillis(sql.NullInt64{}); got != nil {
		t.Fatalf("FromNullMillis(invalid) = %v want nil", got)
	}

	at := time.Date(2026, 5, 1, 12, 0, 0, int(250*time.Millisecond), time.FixedZone("x", 3600))
	got := FromNullMillis(ToNullMillis(&at))
	if got == nil || !got.Equal(at) {
		t.Fatalf("round trip = %v want %v", got, at)
	}
	if got.Location() != time.UTC {
		t.Fatalf("location = %v want UTC", got.Location())
	}
}
