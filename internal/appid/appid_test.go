package appid

import (
	"regexp"
	"testing"
)

func TestDerive_MatchesExpectedShape(t *testing.T) {
	id := Derive("My App!")

	re := regexp.MustCompile(`^my-app-[0-9a-f]{8}$`)
	if !re.MatchString(id) {
		t.Fatalf("Derive(%q) = %q, want match of %s", "My App!", id, re.String())
	}
}

func TestDerive_Deterministic(t *testing.T) {
	a := Derive("My App!")
	b := Derive("My App!")

	if a != b {
		t.Fatalf("Derive is not deterministic: %q != %q", a, b)
	}
}

func TestSlug_Idempotent(t *testing.T) {
	cases := []string{"My App!", "  --Weird__Name--  ", "already-slug", ""}

	for _, c := range cases {
		once := Slug(c)
		twice := Slug(once)

		if once != twice {
			t.Fatalf("Slug not idempotent for %q: Slug(s)=%q, Slug(Slug(s))=%q", c, once, twice)
		}
	}
}

func TestSlug_OnlyPunctuationYieldsEmptySlug(t *testing.T) {
	if got := Slug("!!!"); got != "" {
		t.Fatalf("Slug(%q) = %q, want empty", "!!!", got)
	}
}

func TestDerive_EmptySlugPrefixedWithApp(t *testing.T) {
	id := Derive("!!!")

	re := regexp.MustCompile(`^app-[0-9a-f]{8}$`)
	if !re.MatchString(id) {
		t.Fatalf("Derive(%q) = %q, want match of %s", "!!!", id, re.String())
	}
}
