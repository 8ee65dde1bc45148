package power

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNodeNameParseNIDRoundTrip(t *testing.T) {
	for _, n := range []int{0, 1, 7, 42, 999, 12345, 99999} {
		name := NodeName(n)
		got, err := ParseNID(name)
		require.NoError(t, err)
		require.Equal(t, n, got, "round trip for nid %d via %q", n, name)
	}
}

func TestNodeNameZeroPad(t *testing.T) {
	require.Equal(t, "nid00042", NodeName(42))
	require.Equal(t, "nid00000", NodeName(0))
}

func TestParseNID_InvalidPrefix(t *testing.T) {
	_, err := ParseNID("node00042")
	require.Error(t, err)
}

func TestRangeString(t *testing.T) {
	cases := []struct {
		in   []int
		want string
	}{
		{nil, ""},
		{[]int{5}, "5"},
		{[]int{2, 3, 4, 7, 8}, "2-4,7-8"},
		{[]int{1, 2, 3}, "1-3"},
		{[]int{9, 1, 5}, "1,5,9"},
		{[]int{3, 3, 3}, "3"},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprint(tc.in), func(t *testing.T) {
			require.Equal(t, tc.want, RangeString(tc.in))
		})
	}
}

func TestBuildFullRange(t *testing.T) {
	nodes := []*Node{
		{Name: NodeName(1)},
		{Name: NodeName(2)},
		{Name: NodeName(3)},
		{Name: "not-a-node"},
	}
	require.Equal(t, "1-3", BuildFullRange(nodes))
}
