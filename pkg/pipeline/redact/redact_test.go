package redact_test

import (
	"testing"

	"github.com/shpitdev/movement-enricher/pkg/pipeline/redact"
)

func TestSecrets(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "empty", in: "", want: ""},
		{name: "plain", in: "  nothing to hide ", want: "nothing to hide"},
		{
			name: "devtools url",
			in:   "dial ws://127.0.0.1:9222/devtools/browser/4f1c2a9e-0b7d-4d38-9e57-0d1b0f3c2a11: refused",
			want: "dial ws://127.0.0.1:9222/devtools/browser/<redacted>: refused",
		},
		{name: "bearer", in: "auth: Bearer abc.def.ghi", want: "auth: Bearer <redacted>"},
		{name: "cookie", in: "cookie JSESSIONID=ABC123; path=/", want: "cookie JSESSIONID=<redacted>; path=/"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			if got := redact.Secrets(tt.in); got != tt.want {
				t.Fatalf("Secrets(%q)=%q want=%q", tt.in, got, tt.want)
			}
		})
	}
}
