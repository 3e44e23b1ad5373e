package ident

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrefixFormat(t *testing.T) {
	assert.Equal(t, "symslash0", DefaultPrefix.Format(0))
	assert.Equal(t, "symslash42", DefaultPrefix.Format(42))
	assert.Equal(t, "x18446744073709551615", Prefix("x").Format(Identity(^uint64(0))))
}

func TestPrefixFormat_Injective(t *testing.T) {
	seen := make(map[string]Identity)
	for id := Identity(0); id < 2000; id++ {
		s := DefaultPrefix.Format(id)
		prev, dup := seen[s]
		require.False(t, dup, "identities %d and %d share %q", prev, id, s)
		seen[s] = id
	}
}

func TestPrefixParse(t *testing.T) {
	tests := []struct {
		in     string
		want   Identity
		wantOK bool
	}{
		{"symslash0", 0, true},
		{"symslash17", 17, true},
		{"symslash", 0, false},
		{"symslash01", 0, false},
		{"symslash-1", 0, false},
		{"symslash+1", 0, false},
		{"symslash1a", 0, false},
		{"symslash18446744073709551616", 0, false},
		{"Symslash1", 0, false},
		{"malloc", 0, false},
		{"", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := DefaultPrefix.Parse(tt.in)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPrefixParse_RoundTrip(t *testing.T) {
	for _, p := range []Prefix{"symslash", "_Z", "a1"} {
		for _, id := range []Identity{0, 1, 9, 10, 12345} {
			got, ok := p.Parse(p.Format(id))
			require.True(t, ok, "prefix %q id %d", p, id)
			assert.Equal(t, id, got)
		}
	}
}

func TestParsePrefix(t *testing.T) {
	p, err := ParsePrefix("obf_")
	require.NoError(t, err)
	assert.Equal(t, Prefix("obf_"), p)

	for _, bad := range []string{"", "has space", "tab\t", "nul\x00", "del\x7f"} {
		_, err := ParsePrefix(bad)
		assert.ErrorIs(t, err, ErrInvalidPrefix, "prefix %q", bad)
	}
}
