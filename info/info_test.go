// SPDX-License-Identifier: GPL-2.0-or-later

package info

import (
	"strings"
	"testing"

	"github.com/pkg/errors"
)

func TestSetGet(t *testing.T) {
	in := NewUserInfo()
	if err := in.Set("name", "player"); err != nil {
		t.Fatalf("Set name: %v", err)
	}
	if err := in.Set("rate", "2500"); err != nil {
		t.Fatalf("Set rate: %v", err)
	}
	if got := in.Get("name"); got != "player" {
		t.Errorf("Get name: got %q", got)
	}
	if got := in.String(); got != `\name\player\rate\2500` {
		t.Errorf("String: got %q", got)
	}

	if err := in.Set("name", "renamed"); err != nil {
		t.Fatalf("Set again: %v", err)
	}
	if got := in.Get("name"); got != "renamed" {
		t.Errorf("after update: got %q", got)
	}

	in.Remove("rate")
	if got := in.Get("rate"); got != "" {
		t.Errorf("after remove: got %q", got)
	}
}

func TestParseRoundTrip(t *testing.T) {
	in, err := Parse(`\name\player\team\red\rate\2500`, 196)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got := in.Get("team"); got != "red" {
		t.Errorf("team: got %q", got)
	}
	if got := in.String(); got != `\name\player\team\red\rate\2500` {
		t.Errorf("round trip: got %q", got)
	}
}

func TestParseRejectsMalformed(t *testing.T) {
	tests := []string{
		`name\player`,       // missing leading backslash
		`\name`,             // unpaired
		`\` + strings.Repeat("k", 64) + `\v`, // key too long
	}
	for i, s := range tests {
		if _, err := Parse(s, 196); err == nil {
			t.Errorf("Testcase %d: %q should not parse", i, s)
		}
	}
}

func TestStarKeys(t *testing.T) {
	in := NewUserInfo()
	if err := in.Set("*ver", "28"); !errors.Is(err, ErrDisallowedStarKey) {
		t.Errorf("Set star key: got %v", err)
	}
	if err := in.SetStar("*ver", "28"); err != nil {
		t.Fatalf("SetStar: %v", err)
	}
	if got := in.Get("*ver"); got != "28" {
		t.Errorf("Get star key: got %q", got)
	}
}

func TestInvalidInput(t *testing.T) {
	in := NewUserInfo()
	if err := in.Set("", "v"); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("empty key: got %v", err)
	}
	if err := in.Set(`a\b`, "v"); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("backslash key: got %v", err)
	}
	if err := in.Set("k", `a"b`); !errors.Is(err, ErrInvalidValue) {
		t.Errorf("quote value: got %v", err)
	}
}

func TestLengthCapLeavesStringUntouched(t *testing.T) {
	in := NewUserInfo()
	long := strings.Repeat("x", 60)
	for _, k := range []string{"a", "b", "c"} {
		if err := in.Set(k, long); err != nil {
			t.Fatalf("fill %s: %v", k, err)
		}
	}
	before := in.String()
	if err := in.Set("d", long); !errors.Is(err, ErrLengthExceeded) {
		t.Fatalf("overlong set: got %v", err)
	}
	if in.String() != before {
		t.Errorf("failed set modified the string")
	}
}

func TestSanitizeStripsControlBytes(t *testing.T) {
	in := NewUserInfo()
	if err := in.Set("skin", "ba\x01se"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if got := in.Get("skin"); got != "base" {
		t.Errorf("sanitize: got %q", got)
	}
	// names keep their raw bytes
	if err := in.Set("name", "pl\x01yr"); err != nil {
		t.Fatalf("Set name: %v", err)
	}
	if got := in.Get("name"); got != "pl\x01yr" {
		t.Errorf("name bytes: got %q", got)
	}
}

func TestEachVisitsInOrder(t *testing.T) {
	in := NewUserInfo()
	in.Set("name", "player")
	in.Set("rate", "2500")
	var got []string
	in.Each(func(key, value string) {
		got = append(got, key+"="+value)
	})
	want := []string{"name=player", "rate=2500"}
	if len(got) != len(want) {
		t.Fatalf("pairs: got %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("pair %d: got %q, want %q", i, got[i], want[i])
		}
	}
}
