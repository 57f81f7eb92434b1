package relay

import "testing"

func TestTagNickAppendsNetwork(t *testing.T) {
	got := tagNick("Alice", "oragono", true, 0)
	if got != "Alice/oragono" {
		t.Fatalf("got %q", got)
	}
}

func TestTagNickFallbackUsesPipe(t *testing.T) {
	got := tagNickFallback("Alice", "oragono", 0)
	if got != "Alice|oragono" {
		t.Fatalf("got %q", got)
	}
}

func TestTagNickTruncatesToMaxLen(t *testing.T) {
	got := tagNick("averylongnickname", "net", true, 12)
	if len(got) > 12 {
		t.Fatalf("tagged nick %q exceeds maxLen 12", got)
	}
	if got[len(got)-4:] != "/net" {
		t.Fatalf("expected suffix preserved, got %q", got)
	}
}

func TestTagNickTransliteratesWithoutFreeform(t *testing.T) {
	got := tagNick("Ålice", "net", false, 0)
	if got != "lice/net" && got != "-lice/net" {
		t.Fatalf("expected non-ASCII stripped, got %q", got)
	}
}

func TestTransliterateEmptyFallsBackToPlaceholder(t *testing.T) {
	if got := transliterate("日本語"); got != "relayuser" {
		t.Fatalf("expected relayuser placeholder, got %q", got)
	}
}
