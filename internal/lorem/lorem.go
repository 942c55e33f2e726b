// Package lorem generates placeholder text and fake identity values.
package lorem

import (
	"fmt"
	"math/big"
	"math/rand/v2"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Length is a paragraph length preset.
type Length string

const (
	Short  Length = "short"
	Medium Length = "medium"
	Long   Length = "long"
)

// MaxParagraphs bounds Paragraphs.
const MaxParagraphs = 8

// ClassicOpening starts generated text when requested.
const ClassicOpening = "Lorem ipsum dolor sit amet, consectetur adipiscing elit."

var (
	words = []string{
		"lorem", "ipsum", "dolor", "sit", "amet", "consectetur", "adipiscing", "elit",
		"developer", "runtime", "scalable", "microservice", "resilient", "observability",
		"circuit", "breaker", "latency", "edge", "cloud", "container", "deploy", "ship",
		"build", "iterate", "refactor", "optimize", "throughput",
	}
	names   = []string{"Ada Lovelace", "Grace Hopper", "Alan Turing", "Linus Torvalds", "Margaret Hamilton", "Ken Thompson", "Evelyn Boyd", "Guido Rossum"}
	domains = []string{"example.com", "mail.test", "dev.local", "sandbox.dev"}
	streets = []string{"Maple", "Cedar", "Oak", "Pine", "Elm", "Sunset", "Riverside"}
	suffix  = []string{"St", "Ave", "Rd"}
	cities  = []string{"Zurich", "Berlin", "Taipei", "Seattle", "Sydney", "Toronto"}
	regions = []string{"CA", "NY", "WA", "TX", "BC", "ZH"}

	// IBANLengths holds the total IBAN length per supported country.
	IBANLengths = map[string]int{"DE": 22, "GB": 22, "FR": 27, "NL": 18, "ES": 24}

	cards = map[string]struct {
		prefixes []string
		length   int
	}{
		"visa":       {[]string{"4"}, 16},
		"mastercard": {[]string{"51", "52", "53", "54", "55"}, 16},
		"amex":       {[]string{"34", "37"}, 15},
	}

	slugStrip = regexp.MustCompile(`[^a-z0-9]+`)
)

// Generator produces random text from its source.
type Generator struct {
	rng *rand.Rand
}

// New returns a generator over rng; a nil rng seeds from the clock.
func New(rng *rand.Rand) *Generator {
	if rng == nil {
		seed := uint64(time.Now().UnixNano())
		rng = rand.New(rand.NewPCG(seed, seed>>1|1))
	}
	return &Generator{rng: rng}
}

func (g *Generator) pick(list []string) string {
	return list[g.rng.IntN(len(list))]
}

func (g *Generator) between(lo, hi int) int {
	return lo + g.rng.IntN(hi-lo+1)
}

// Words returns n space separated words.
func (g *Generator) Words(n int) string {
	if n <= 0 {
		return ""
	}
	out := make([]string, n)
	for i := range out {
		out[i] = g.pick(words)
	}
	return strings.Join(out, " ")
}

// Sentence returns a capitalised sentence of at least four words.
func (g *Generator) Sentence(target int) string {
	s := g.Words(max(4, target))
	return strings.ToUpper(s[:1]) + s[1:] + "."
}

// Paragraph returns one paragraph sized by the preset.
func (g *Generator) Paragraph(length Length) string {
	var sentences, target int
	switch length {
	case Short:
		sentences, target = g.between(2, 3), g.between(5, 7)
	case Long:
		sentences, target = g.between(5, 6), g.between(10, 14)
	default:
		sentences, target = g.between(3, 4), g.between(7, 10)
	}
	out := make([]string, sentences)
	for i := range out {
		out[i] = g.Sentence(target)
	}
	return strings.Join(out, " ")
}

// Paragraphs returns n paragraphs (clamped to 1..MaxParagraphs) separated by blank lines.
func (g *Generator) Paragraphs(n int, length Length, classic bool) string {
	n = min(MaxParagraphs, max(1, n))
	out := make([]string, n)
	for i := range out {
		out[i] = g.Paragraph(length)
	}
	if classic {
		out[0] = ClassicOpening + " " + out[0]
	}
	return strings.Join(out, "\n\n")
}

// Email returns a fake address derived from a well known name.
func (g *Generator) Email() string {
	slug := strings.Trim(slugStrip.ReplaceAllString(strings.ToLower(g.pick(names)), "-"), "-")
	return fmt.Sprintf("%s%d@%s", strings.ReplaceAll(slug, "-", "."), g.between(10, 99), g.pick(domains))
}

// Address returns a two line postal address.
func (g *Generator) Address() string {
	return fmt.Sprintf("%d %s %s\n%s, %s %d",
		g.between(10, 9999), g.pick(streets), g.pick(suffix),
		g.pick(cities), g.pick(regions), g.between(10000, 99999))
}

// Card returns a Luhn-valid test card number grouped in fours.
func (g *Generator) Card(brand string) (string, error) {
	cfg, ok := cards[strings.ToLower(brand)]
	if !ok {
		return "", fmt.Errorf("unsupported card brand %q", brand)
	}
	var b strings.Builder
	b.WriteString(g.pick(cfg.prefixes))
	for b.Len() < cfg.length-1 {
		b.WriteByte(byte('0' + g.rng.IntN(10)))
	}
	base := b.String()
	full := base + strconv.Itoa(LuhnCheckDigit(base))
	var grouped []string
	for i := 0; i < len(full); i += 4 {
		grouped = append(grouped, full[i:min(i+4, len(full))])
	}
	return strings.Join(grouped, " "), nil
}

// IBAN returns a checksum-valid IBAN for country.
func (g *Generator) IBAN(country string) (string, error) {
	country = strings.ToUpper(country)
	length, ok := IBANLengths[country]
	if !ok {
		return "", fmt.Errorf("unsupported IBAN country %q", country)
	}
	const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	bban := make([]byte, max(8, length-4))
	for i := range bban {
		bban[i] = alphabet[g.rng.IntN(len(alphabet))]
	}
	iban := country + IBANCheckDigits(country, string(bban)) + string(bban)
	return iban[:length], nil
}

// LuhnCheckDigit computes the digit that makes number+digit Luhn-valid.
func LuhnCheckDigit(number string) int {
	sum := 0
	double := true
	for i := len(number) - 1; i >= 0; i-- {
		d := int(number[i] - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return (10 - sum%10) % 10
}

// IBANCheckDigits computes the two ISO 7064 check digits.
func IBANCheckDigits(country, bban string) string {
	rem := mod97(bban + country + "00")
	return fmt.Sprintf("%02d", 98-rem)
}

// ValidIBAN reports whether the IBAN checksum holds.
func ValidIBAN(iban string) bool {
	iban = strings.ReplaceAll(strings.ToUpper(iban), " ", "")
	if len(iban) < 5 {
		return false
	}
	return mod97(iban[4:]+iban[:4]) == 1
}

func mod97(s string) int {
	var digits strings.Builder
	for _, c := range s {
		if c >= 'A' && c <= 'Z' {
			digits.WriteString(strconv.Itoa(int(c-'A') + 10))
			continue
		}
		digits.WriteRune(c)
	}
	n, ok := new(big.Int).SetString(digits.String(), 10)
	if !ok {
		return -1
	}
	return int(new(big.Int).Mod(n, big.NewInt(97)).Int64())
}
