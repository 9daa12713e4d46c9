package phone

import "testing"

func TestNormalizeE164(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"(512) 555-0100", "+15125550100"},
		{" 512.555.0100 ", "+15125550100"},
		{"+44 20 7946 0958", "+442079460958"},
		{"call me", "call me"},
		{"   ", ""},
	}
	for _, c := range cases {
		if got := NormalizeE164(c.in); got != c.want {
			t.Errorf("NormalizeE164(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestNormalizeBlankIsNil(t *testing.T) {
	if got := Normalize(""); got != nil {
		t.Fatalf("expected nil, got %q", *got)
	}
	if got := Normalize("512-555-0100"); got == nil || *got != "+15125550100" {
		t.Fatalf("unexpected %v", got)
	}
}

func TestDisplay(t *testing.T) {
	if got := Display("+15125550100"); got != "(512) 555-0100" {
		t.Fatalf("US number shown as %q", got)
	}
	if got := Display("+442079460958"); got != "+44 20 7946 0958" {
		t.Fatalf("UK number shown as %q", got)
	}
	if got := Display("ext. 12"); got != "ext. 12" {
		t.Fatalf("unparseable number shown as %q", got)
	}
}
