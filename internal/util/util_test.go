package util

import "testing"

func TestMaskSecret(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"":           "",
		"1234":       "****",
		"CAV1234":    "CAV****",
		"eyJhbGciOi": "e...i",
	}
	for in, want := range cases {
		if got := MaskSecret(in); got != want {
			t.Fatalf("MaskSecret(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestMaskSensitiveQuery(t *testing.T) {
	t.Parallel()

	got := MaskSensitiveQuery("control_number=MOC-0001&passcode=CAV1234&page=2")
	want := "control_number=MOC-0001&passcode=CAV%2A%2A%2A%2A&page=2"
	if got != want {
		t.Fatalf("MaskSensitiveQuery = %q, want %q", got, want)
	}
	if raw := "page=1&q=MOC"; MaskSensitiveQuery(raw) != raw {
		t.Fatalf("expected untouched query")
	}
}

func TestWritablePath(t *testing.T) {
	t.Setenv("CARDHUB_WRITABLE_PATH", " /var/lib/cardhub/ ")
	if got := WritablePath(); got != "/var/lib/cardhub" {
		t.Fatalf("WritablePath = %q", got)
	}
}
