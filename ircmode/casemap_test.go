package ircmode

import "testing"

func TestCaseFoldRFC1459(t *testing.T) {
	got := CaseFold(`Foo[Bar]^Baz\`, CasemapRFC1459)
	want := `foo{bar}~baz|`
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestCaseFoldStrictExcludesCaret(t *testing.T) {
	got := CaseFold("Foo^Bar", CasemapStrictRFC1459)
	want := "foo^bar"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestCaseFoldASCIIDoesNotFoldBrackets(t *testing.T) {
	got := CaseFold("Foo[Bar]", CasemapASCII)
	want := "foo[bar]"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestCaseFoldEqual(t *testing.T) {
	if !CaseFoldEqual("Foo{Bar}", "foo[bar]", CasemapRFC1459) {
		t.Fatalf("expected RFC1459-equivalent strings to be equal")
	}
	if CaseFoldEqual("Foo^Bar", "foo~bar", CasemapStrictRFC1459) {
		t.Fatalf("strict-rfc1459 must not fold ^ to ~")
	}
}

func TestParseCasemap(t *testing.T) {
	cases := map[string]Casemap{
		"ascii":          CasemapASCII,
		"ASCII":          CasemapASCII,
		"strict-rfc1459": CasemapStrictRFC1459,
		"rfc1459":        CasemapRFC1459,
		"":               CasemapRFC1459,
	}
	for in, want := range cases {
		if got := ParseCasemap(in); got != want {
			t.Fatalf("ParseCasemap(%q) = %v, want %v", in, got, want)
		}
	}
}
