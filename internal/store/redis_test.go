package store

import (
	"reflect"
	"testing"
)

func TestBoardFields(t *testing.T) {
	got := BoardFields("north", "checkin", "late")
	want := []string{"checkin", "checkin:late", "branch:north:checkin", "branch:north:checkin:late"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("fields = %v", got)
	}
	if got := BoardFields("", "checkout", "early"); len(got) != 2 {
		t.Fatalf("fields without branch = %v", got)
	}
}

func TestBoardForBranch(t *testing.T) {
	b := Board{
		"checkin":                   3,
		"branch:north:checkin":      2,
		"branch:north:checkin:late": 1,
		"branch:south:checkin":      1,
	}
	got := b.ForBranch("north")
	want := Board{"checkin": 2, "checkin:late": 1}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("north = %v", got)
	}
	if len(b.ForBranch("east")) != 0 {
		t.Fatal("unknown branch should be empty")
	}
}
