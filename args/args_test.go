// SPDX-License-Identifier: GPL-2.0-or-later

package args

import "testing"

func TestParse(t *testing.T) {
	for _, tc := range []struct {
		in     string
		wantF  string
		wantAS string
		wantA  []Arg
	}{
		{
			in:     `say hello world`,
			wantF:  `say hello world`,
			wantAS: `hello world`,
			wantA:  []Arg{{"say"}, {"hello"}, {"world"}},
		},
		{
			in:     `say "hello world"`,
			wantF:  `say "hello world"`,
			wantAS: `hello world`,
			wantA:  []Arg{{"say"}, {"hello world"}},
		},
		{
			in:     ` setinfo  name  "the player" `,
			wantF:  `setinfo  name  "the player"`,
			wantAS: `name  "the player"`,
			wantA:  []Arg{{"setinfo"}, {"name"}, {"the player"}},
		},
		{
			in:     `connect 28 27001 999 "\name\grunt with spaces"`,
			wantF:  `connect 28 27001 999 "\name\grunt with spaces"`,
			wantAS: `28 27001 999 "\name\grunt with spaces"`,
			wantA:  []Arg{{"connect"}, {"28"}, {"27001"}, {"999"}, {`\name\grunt with spaces`}},
		},
		{
			in:     `soundlist 7 0 // trailing comment`,
			wantF:  `soundlist 7 0 // trailing comment`,
			wantAS: `7 0 // trailing comment`,
			wantA:  []Arg{{"soundlist"}, {"7"}, {"0"}},
		},
	} {
		arg := Parse(tc.in)
		if tc.wantF != arg.Full() {
			t.Errorf("Parse(%q).Full()=%q, want %q", tc.in, arg.Full(), tc.wantF)
		}
		if tc.wantAS != arg.ArgumentString() {
			t.Errorf("Parse(%q).ArgumentString()=%q, want %q", tc.in, arg.ArgumentString(), tc.wantAS)
		}
		as := arg.Args()
		if len(tc.wantA) != len(as) {
			t.Fatalf("Parse(%q).Args() has len(%d), want %d", tc.in, len(as), len(tc.wantA))
		}
		for i := range tc.wantA {
			if tc.wantA[i] != as[i] {
				t.Errorf("Arg[%d]=%q, want %q", i, as[i], tc.wantA[i])
			}
		}
	}
}

func TestArgConversions(t *testing.T) {
	a := Parse("connect 28 27001 999")
	if got := a.Argv(1).Int(); got != 28 {
		t.Errorf("Int() = %d, want 28", got)
	}
	if got := a.Argv(2).Uint16(); got != 27001 {
		t.Errorf("Uint16() = %d, want 27001", got)
	}
	if got := a.Argv(3).Int32(); got != 999 {
		t.Errorf("Int32() = %d, want 999", got)
	}
	if got := a.Argv(9).String(); got != "" {
		t.Errorf("out of range Argv = %q, want empty", got)
	}
	if got := Parse("speed 2.5").Argv(1).Float32(); got != 2.5 {
		t.Errorf("Float32() = %v, want 2.5", got)
	}
}
