package isbn

import "testing"

func TestParse(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		want   ISBN
		wantOK bool
	}{
		{name: "ISBN-13 hyphenated", input: "978-0-306-40615-7", want: "9780306406157", wantOK: true},
		{name: "ISBN-13 plain", input: "9780306406157", want: "9780306406157", wantOK: true},
		{name: "ISBN-13 with spaces", input: "  978 0 306 40615 7\t", want: "9780306406157", wantOK: true},
		{name: "ISBN-13 mixed separators", input: "978 - 0306-40615 - 7", want: "9780306406157", wantOK: true},
		{name: "ISBN-10 X check digit", input: "0-8044-2957-X", want: "080442957X", wantOK: true},
		{name: "ISBN-10 lowercase x", input: "080442957x", want: "080442957X", wantOK: true},
		{name: "ISBN-10 numeric check digit", input: "0-306-40615-2", want: "0306406152", wantOK: true},
		{name: "invalid ISBN-13 checksum", input: "9780306406158", wantOK: false},
		{name: "invalid ISBN-10 checksum", input: "0306406153", wantOK: false},
		{name: "non numeric characters", input: "ABC-DEF", wantOK: false},
		{name: "empty", input: "", wantOK: false},
		{name: "only separators", input: " - - ", wantOK: false},
		{name: "wrong length", input: "97803064061", wantOK: false},
		{name: "X inside ISBN-10", input: "08044X9575", wantOK: false},
		{name: "X in ISBN-13", input: "978030640615X", wantOK: false},
		{name: "punctuation", input: "978.0.306.40615.7", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Parse(tt.input)
			if ok != tt.wantOK {
				t.Fatalf("Parse(%q) ok = %v, want %v", tt.input, ok, tt.wantOK)
			}
			if got != tt.want {
				t.Errorf("Parse(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestParse_SeparatorVariantsAgree(t *testing.T) {
	variants := []string{
		"9780306406157",
		"978-0306406157",
		"978-0-306-40615-7",
		"978 0 306 40615 7",
		"\n978-0-306-40615-7 ",
	}
	for _, v := range variants {
		got, ok := Parse(v)
		if !ok || got != "9780306406157" {
			t.Errorf("Parse(%q) = %q, %v; want 9780306406157, true", v, got, ok)
		}
	}
}

func TestParse_FlippedCheckDigitRejected(t *testing.T) {
	valid := "9780306406157"
	for d := byte('0'); d <= '9'; d++ {
		if d == valid[12] {
			continue
		}
		flipped := valid[:12] + string(d)
		if _, ok := Parse(flipped); ok {
			t.Errorf("Parse(%q) accepted a wrong check digit", flipped)
		}
	}
}

func TestMustParse(t *testing.T) {
	if got := MustParse("0-8044-2957-X"); got.String() != "080442957X" {
		t.Errorf("MustParse = %q", got)
	}

	defer func() {
		if recover() == nil {
			t.Error("MustParse did not panic on invalid input")
		}
	}()
	MustParse("not-an-isbn")
}
