package portspec

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	cases := []Set{
		{},
		{"27015/udp": {27015, UDP}},
		{
			"27015/udp": {27015, UDP},
			"34197/udp": {34197, UDP},
			"80/tcp":    {80, TCP},
		},
	}
	for _, c := range cases {
		tag := c.Serialize()
		got, err := Parse(tag)
		require.NoError(t, err)
		require.Equal(t, c, got)
	}
}

func TestSerializeIsSorted(t *testing.T) {
	s := Set{
		"34197/udp": {34197, UDP},
		"27015/tcp": {27015, TCP},
	}
	require.Equal(t, "27015/tcp,34197/udp", s.Serialize())
}

func TestParseRejectsGarbage(t *testing.T) {
	_, err := Parse("not-a-port")
	require.Error(t, err)

	_, err = Parse("27015/sctp")
	require.Error(t, err)
}

func TestParseEmpty(t *testing.T) {
	s, err := Parse("")
	require.NoError(t, err)
	require.Equal(t, Set{}, s)
}
