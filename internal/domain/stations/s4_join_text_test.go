package stations

import "testing"

func TestJoin(t *testing.T) {
	cases := []struct {
		in   []string
		want string
	}{
		{nil, ""},
		{[]string{"A"}, "A"},
		{[]string{"A", "B"}, "A B"},
		{[]string{"A", "", "C"}, "A  C"},
	}
	for _, tc := range cases {
		if got := Join(tc.in); got != tc.want {
			t.Fatalf("Join(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
