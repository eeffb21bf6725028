package internal

import "testing"

func TestNormalizeIdentity(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Alice", "alice"},
		{"alice_01", "alice_01"},
		{"sc-reen.name", "sc-reenname"},
		{"@handle", "handle"},
		{"user name", "username"},
		{"..//..", "anonymous"},
		{"", "anonymous"},
		{"ÜBER", "über"},
	}
	for _, tc := range cases {
		if got := NormalizeIdentity(tc.in); got != tc.want {
			t.Fatalf("NormalizeIdentity(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestNormalizeIdentityIdempotent(t *testing.T) {
	for _, in := range []string{"Alice", "@ha.nd-le", "", "a b c"} {
		once := NormalizeIdentity(in)
		if twice := NormalizeIdentity(once); twice != once {
			t.Fatalf("normalization not idempotent for %q: %q != %q", in, once, twice)
		}
	}
}
