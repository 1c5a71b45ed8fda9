package presence

import (
	"reflect"
	"testing"
)

func TestJoinAndLeave(t *testing.T) {
	r := NewRegistry()

	added, first := r.Join("s1", "c1", "alice")
	if !added || !first {
		t.Fatalf("first join = %v %v", added, first)
	}
	added, first = r.Join("s1", "c1", "alice")
	if added || first {
		t.Fatalf("repeated join = %v %v", added, first)
	}
	added, first = r.Join("s1", "c2", "alice")
	if !added || first {
		t.Fatalf("second tab = %v %v", added, first)
	}
	r.Join("s1", "c3", "bob")

	if got, want := r.Connections("s1"), []string{"c1", "c2", "c3"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("Connections() = %v want %v", got, want)
	}
	if got, want := r.Users("s1"), []string{"alice", "bob"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("Users() = %v want %v", got, want)
	}

	d, ok := r.Leave("s1", "c1")
	if !ok || d.UserID != "alice" || d.LastForUser {
		t.Fatalf("leave c1 = %+v %v", d, ok)
	}
	d, ok = r.Leave("s1", "c2")
	if !ok || !d.LastForUser {
		t.Fatalf("leave c2 = %+v %v", d, ok)
	}
	if _, ok := r.Leave("s1", "c2"); ok {
		t.Fatal("leaving twice should report nothing")
	}
	if r.InRoom("s1", "c2") || !r.InRoom("s1", "c3") {
		t.Fatal("InRoom mismatch")
	}
}

func TestLeaveAll(t *testing.T) {
	r := NewRegistry()
	r.Join("s2", "c1", "alice")
	r.Join("s1", "c1", "alice")
	r.Join("s1", "c2", "bob")

	got := r.LeaveAll("c1")
	want := []Departure{
		{SessionID: "s1", UserID: "alice", LastForUser: true},
		{SessionID: "s2", UserID: "alice", LastForUser: true},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("LeaveAll() = %+v want %+v", got, want)
	}
	if len(r.Sessions("c1")) != 0 {
		t.Fatal("connection still indexed")
	}
	if sizes := r.RoomSizes(); !reflect.DeepEqual(sizes, map[string]int{"s1": 1}) {
		t.Fatalf("RoomSizes() = %v", sizes)
	}
}
