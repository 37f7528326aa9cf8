package browser

import (
	"strings"
	"testing"
)

func TestResolveLinksResolvesRelativeHrefs(t *testing.T) {
	base := "https://service.example.org/extern/appointment_showMonth.do?locationCode=kahi"
	hrefs := []string{
		"appointment_showDay.do?date=15.10.2026",
		"/extern/appointment_showDay.do?date=16.10.2026",
		"https://other.example.org/appointment_showDay.do?date=17.10.2026",
	}

	got := ResolveLinks(base, hrefs)
	want := []string{
		"https://service.example.org/extern/appointment_showDay.do?date=15.10.2026",
		"https://service.example.org/extern/appointment_showDay.do?date=16.10.2026",
		"https://other.example.org/appointment_showDay.do?date=17.10.2026",
	}
	if len(got) != len(want) {
		t.Fatalf("ResolveLinks returned %d links, want %d: %v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("link %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestResolveLinksDropsDuplicatesAndNoise(t *testing.T) {
	base := "https://service.example.org/extern/showMonth.do"
	hrefs := []string{
		"showDay.do?date=15.10.2026",
		"showDay.do?date=15.10.2026",
		"  ",
		"#top",
		"javascript:void(0)",
		"showDay.do?date=16.10.2026",
	}

	got := ResolveLinks(base, hrefs)
	if len(got) != 2 {
		t.Fatalf("ResolveLinks returned %d links, want 2: %v", len(got), got)
	}
	if !strings.HasSuffix(got[0], "date=15.10.2026") || !strings.HasSuffix(got[1], "date=16.10.2026") {
		t.Errorf("unexpected links after dedup: %v", got)
	}
}

func TestResolveLinksPreservesOrder(t *testing.T) {
	base := "https://service.example.org/"
	hrefs := []string{"c.do", "a.do", "b.do", "a.do"}

	got := ResolveLinks(base, hrefs)
	want := []string{
		"https://service.example.org/c.do",
		"https://service.example.org/a.do",
		"https://service.example.org/b.do",
	}
	if len(got) != len(want) {
		t.Fatalf("ResolveLinks returned %d links, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("link %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestResolveLinksSurvivesUnparsableBase(t *testing.T) {
	got := ResolveLinks("://broken", []string{"https://service.example.org/day.do"})
	if len(got) != 1 || got[0] != "https://service.example.org/day.do" {
		t.Fatalf("ResolveLinks with broken base = %v, want absolute link passed through", got)
	}
}

func TestTrimURL(t *testing.T) {
	short := "https://service.example.org/day.do"
	if trimURL(short) != short {
		t.Errorf("trimURL changed a short URL: %q", trimURL(short))
	}

	long := "https://service.example.org/" + strings.Repeat("x", 200)
	trimmed := trimURL(long)
	if len(trimmed) != 83 || !strings.HasSuffix(trimmed, "...") {
		t.Errorf("trimURL(long) = %q (len %d), want 80 chars plus ellipsis", trimmed, len(trimmed))
	}
}
