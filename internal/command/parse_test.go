package command

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParse(t *testing.T) {
	cases := []struct {
		input string
		want  Command
		ok    bool
	}{
		{input: "hello", ok: false},
		{input: "/", want: Command{}, ok: true},
		{input: "  /Open cron", want: Command{Name: "open", Args: []string{"cron"}, Raw: "Open cron", Remainder: "cron"}, ok: true},
		{input: `/panic "F9"`, want: Command{Name: "panic", Args: []string{"F9"}, Raw: `panic "F9"`, Remainder: `"F9"`}, ok: true},
		{input: `/rename 'my tab' now`, want: Command{Name: "rename", Args: []string{"my tab", "now"}, Raw: `rename 'my tab' now`, Remainder: `'my tab' now`}, ok: true},
		{input: `/rename "broken`, want: Command{Name: "rename", Args: []string{`"broken`}, Raw: `rename "broken`, Remainder: `"broken`}, ok: true},
	}
	for _, tc := range cases {
		got, ok := Parse(tc.input)
		if ok != tc.ok {
			t.Fatalf("%q: expected ok=%v", tc.input, tc.ok)
		}
		if diff := cmp.Diff(tc.want, got); diff != "" {
			t.Fatalf("%q: mismatch (-want +got):\n%s", tc.input, diff)
		}
	}
}
