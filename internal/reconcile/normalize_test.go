package reconcile

import (
	"testing"

	"github.com/nalgeon/be"
)

func TestNormalizeAddress(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "display-name", input: "Bulk Offer <spam@ads.com>", want: "spam@ads.com"},
		{name: "bare", input: "user@domain.org", want: "user@domain.org"},
		{name: "angle-only", input: "<user@domain.org>", want: "user@domain.org"},
		{name: "quoted-lookalike", input: `"boss@corp.com" <phish@evil.net>`, want: "phish@evil.net"},
		{name: "surrounding-space", input: "  a@b.c  ", want: "a@b.c"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := NormalizeAddress(tc.input)
			be.Err(t, err, nil)
			be.Equal(t, got, tc.want)
		})
	}
}

func TestNormalizeAddressMalformed(t *testing.T) {
	for _, input := range []string{"", "Mailer Daemon", "no at sign <here>", "@", "a@"} {
		_, err := NormalizeAddress(input)
		be.Err(t, err, ErrMalformedHeader)
	}
}
