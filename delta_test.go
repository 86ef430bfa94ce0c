package revdb

import "testing"

func TestDelta_RoundTrip(t *testing.T) {
	cases := []struct {
		name       string
		reference  string
		target     string
	}{
		{"identical", "line one\nline two\n", "line one\nline two\n"},
		{"appended line", "line one\n", "line one\nline two\n"},
		{"removed line", "line one\nline two\n", "line one\n"},
		{"replaced line", "a\nb\nc\n", "a\nX\nc\n"},
		{"empty reference", "", "new content\n"},
		{"empty target", "old content\n", ""},
		{"no trailing newline", "a\nb", "a\nc"},
		{"unrelated bodies", `{"x":1,"y":2}`, `{"z":"totally different"}`},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			delta, err := CreateDelta([]byte(c.reference), []byte(c.target), DeltaFlagNoChecksum)
			if err != nil {
				t.Fatalf("CreateDelta: %v", err)
			}
			got, err := ApplyDelta([]byte(c.reference), delta, DeltaFlagNoChecksum)
			if err != nil {
				t.Fatalf("ApplyDelta: %v", err)
			}
			if string(got) != c.target {
				t.Fatalf("ApplyDelta(reference, CreateDelta(reference, target)) = %q, wanted %q", got, c.target)
			}
		})
	}
}

func TestDelta_IdenticalBodiesProduceSmallDelta(t *testing.T) {
	body := []byte(`{"same":"body","repeated":"text here to pad things out"}`)
	delta, err := CreateDelta(body, body, DeltaFlagNoChecksum)
	if err != nil {
		t.Fatalf("CreateDelta: %v", err)
	}
	if len(delta) >= len(body) {
		t.Fatalf("delta for identical bodies should be smaller than the body itself: delta=%d body=%d", len(delta), len(body))
	}
}
