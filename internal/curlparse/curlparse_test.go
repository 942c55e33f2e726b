package curlparse

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParse(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want Parsed
	}{
		{
			name: "plain get",
			in:   "curl https://api.example.com/users",
			want: Parsed{Method: "GET", URL: "https://api.example.com/users", Headers: map[string]string{}},
		},
		{
			name: "headers and data imply post",
			in:   `curl 'https://api.example.com/users' -H 'Content-Type: application/json' -H "Authorization: Bearer a:b" -d '{"name":"x"}'`,
			want: Parsed{
				Method:  "POST",
				URL:     "https://api.example.com/users",
				Headers: map[string]string{"Content-Type": "application/json", "Authorization": "Bearer a:b"},
				Body:    `{"name":"x"}`,
			},
		},
		{
			name: "explicit method wins",
			in:   `curl -X put --data-raw 'a=1' https://example.com/x`,
			want: Parsed{Method: "PUT", URL: "https://example.com/x", Headers: map[string]string{}, Body: "a=1"},
		},
		{
			name: "line continuations",
			in:   "curl \\\n  -XDELETE \\\n  https://example.com/items/1",
			want: Parsed{Method: "DELETE", URL: "https://example.com/items/1", Headers: map[string]string{}},
		},
		{
			name: "basic auth and user agent",
			in:   `curl -u bob:secret -A swissblade https://example.com`,
			want: Parsed{
				Method:  "GET",
				URL:     "https://example.com",
				Headers: map[string]string{"Authorization": "Basic Ym9iOnNlY3JldA==", "User-Agent": "swissblade"},
			},
		},
		{
			name: "get with data moves to query",
			in:   `curl -G --data-urlencode 'q=hello world' https://example.com/search`,
			want: Parsed{Method: "GET", URL: "https://example.com/search?q=hello+world", Headers: map[string]string{}},
		},
		{
			name: "json flag",
			in:   `curl --json '{"a":1}' --url=https://example.com/j`,
			want: Parsed{
				Method:  "POST",
				URL:     "https://example.com/j",
				Headers: map[string]string{"Content-Type": "application/json", "Accept": "application/json"},
				Body:    `{"a":1}`,
			},
		},
		{
			name: "trailing value flags keep the url",
			in:   `curl https://api.example.com/x --retry 3 -c jar.txt --max-redirs 5 --resolve api.example.com:443:10.0.0.1`,
			want: Parsed{Method: "GET", URL: "https://api.example.com/x", Headers: map[string]string{}},
		},
		{
			name: "unknown value flag after url",
			in:   `curl https://api.example.com/x --happy-eyeballs-timeout-ms 200`,
			want: Parsed{Method: "GET", URL: "https://api.example.com/x", Headers: map[string]string{}},
		},
		{
			name: "scheme-less url",
			in:   `curl example.com/ping`,
			want: Parsed{Method: "GET", URL: "example.com/ping", Headers: map[string]string{}},
		},
		{
			name: "head",
			in:   `curl -I https://example.com`,
			want: Parsed{Method: "HEAD", URL: "https://example.com", Headers: map[string]string{}},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Parse(tc.in)
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Fatalf("parse mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseRejectsNonCurl(t *testing.T) {
	if _, err := Parse("wget https://example.com"); !errors.Is(err, ErrNotCurl) {
		t.Fatalf("expected ErrNotCurl, got %v", err)
	}
	if _, err := Parse("curl -H"); err == nil {
		t.Fatalf("expected error for dangling flag")
	}
}

func TestFormatRoundTrip(t *testing.T) {
	in := `curl -X POST -H 'Content-Type: application/json' --data-raw '{"it'\''s":1}' 'https://example.com/a'`
	parsed, err := Parse(in)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	out := Format(parsed.ProxyRequest())
	again, err := Parse(out)
	if err != nil {
		t.Fatalf("reparse %q: %v", out, err)
	}
	if diff := cmp.Diff(parsed, again); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}
}
