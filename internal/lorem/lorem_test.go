package lorem

import (
	"math/rand/v2"
	"strings"
	"testing"
)

func newTestGenerator() *Generator {
	return New(rand.New(rand.NewPCG(7, 11)))
}

func TestParagraphs(t *testing.T) {
	g := newTestGenerator()
	out := g.Paragraphs(3, Short, false)
	if got := len(strings.Split(out, "\n\n")); got != 3 {
		t.Fatalf("expected 3 paragraphs, got %d", got)
	}
	if out[0] < 'A' || out[0] > 'Z' || !strings.HasSuffix(out, ".") {
		t.Fatalf("expected capitalised sentence text, got %q", out)
	}
	if got := len(strings.Split(g.Paragraphs(50, Long, false), "\n\n")); got != MaxParagraphs {
		t.Fatalf("expected clamp to %d, got %d", MaxParagraphs, got)
	}
	if !strings.HasPrefix(g.Paragraphs(1, Medium, true), ClassicOpening) {
		t.Fatalf("expected classic opening")
	}
}

func TestSentenceMinimumWords(t *testing.T) {
	s := newTestGenerator().Sentence(1)
	if n := len(strings.Fields(s)); n != 4 {
		t.Fatalf("expected 4 words, got %d in %q", n, s)
	}
}

func TestCardIsLuhnValid(t *testing.T) {
	g := newTestGenerator()
	for brand, want := range map[string]int{"visa": 16, "mastercard": 16, "amex": 15} {
		card, err := g.Card(brand)
		if err != nil {
			t.Fatalf("card %s: %v", brand, err)
		}
		digits := strings.ReplaceAll(card, " ", "")
		if len(digits) != want {
			t.Fatalf("card %s: expected %d digits, got %q", brand, want, card)
		}
		if LuhnCheckDigit(digits[:len(digits)-1]) != int(digits[len(digits)-1]-'0') {
			t.Fatalf("card %s not luhn valid: %s", brand, card)
		}
	}
	if _, err := g.Card("diners"); err == nil {
		t.Fatalf("expected unsupported brand error")
	}
}

func TestLuhnKnownValue(t *testing.T) {
	if got := LuhnCheckDigit("7992739871"); got != 3 {
		t.Fatalf("expected 3, got %d", got)
	}
}

func TestIBAN(t *testing.T) {
	g := newTestGenerator()
	for country, length := range IBANLengths {
		iban, err := g.IBAN(country)
		if err != nil {
			t.Fatalf("iban %s: %v", country, err)
		}
		if len(iban) != length || !strings.HasPrefix(iban, country) {
			t.Fatalf("iban %s: unexpected %q", country, iban)
		}
		if !ValidIBAN(iban) {
			t.Fatalf("iban %s failed checksum: %s", country, iban)
		}
	}
	if !ValidIBAN("GB82 WEST 1234 5698 7654 32") {
		t.Fatalf("expected reference IBAN to validate")
	}
}

func TestEmailAndAddress(t *testing.T) {
	g := newTestGenerator()
	email := g.Email()
	if !strings.Contains(email, "@") || strings.Contains(email, " ") {
		t.Fatalf("unexpected email %q", email)
	}
	if lines := strings.Split(g.Address(), "\n"); len(lines) != 2 {
		t.Fatalf("expected two address lines, got %v", lines)
	}
}
