// Package textnorm rewrites input text into a form speech engines read
// reliably: spelled-out numbers and abbreviations, plain quotes and dashes,
// collapsed whitespace and a closing sentence mark.
package textnorm

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// MaxSpelledNumber is the largest integer spelled out; bigger ones are kept as digits.
const MaxSpelledNumber = 999_999_999

const (
	urlPattern          = `https?://\S+`
	emailPattern        = `[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`
	numberPattern       = `\d+`
	repeatedPunctuation = `([!?,;:])[!?,;:]+`
	whitespacePattern   = `\s+`

	// Placeholders are private-use runes so no later step can match them.
	placeholderBase = 0xE000
)

var (
	ones = []string{
		"zero", "one", "two", "three", "four", "five", "six", "seven", "eight", "nine",
		"ten", "eleven", "twelve", "thirteen", "fourteen", "fifteen", "sixteen",
		"seventeen", "eighteen", "nineteen",
	}
	tens = []string{"", "", "twenty", "thirty", "forty", "fifty", "sixty", "seventy", "eighty", "ninety"}

	scales = []struct {
		value int
		name  string
	}{
		{value: 1_000_000, name: "million"},
		{value: 1_000, name: "thousand"},
	}
)

// Normalizer holds the compiled patterns. It is safe for concurrent use.
type Normalizer struct {
	tokens        []*regexp.Regexp
	numbers       *regexp.Regexp
	repeated      *regexp.Regexp
	whitespace    *regexp.Regexp
	abbreviations *strings.Replacer
	typography    *strings.Replacer
}

// New creates a Normalizer.
func New() *Normalizer {
	return &Normalizer{
		tokens:     []*regexp.Regexp{regexp.MustCompile(urlPattern), regexp.MustCompile(emailPattern)},
		numbers:    regexp.MustCompile(numberPattern),
		repeated:   regexp.MustCompile(repeatedPunctuation),
		whitespace: regexp.MustCompile(whitespacePattern),
		abbreviations: strings.NewReplacer(
			"Mr.", "Mister",
			"Mrs.", "Misses",
			"Ms.", "Miss",
			"Dr.", "Doctor",
			"St.", "Saint",
			"Ltd.", "Limited",
			"Corp.", "Corporation",
			"Inc.", "Incorporated",
			"vs.", "versus",
		),
		typography: strings.NewReplacer(
			"—", " - ",
			"–", "-",
			"‒", "-",
			"…", "...",
			"“", `"`, "”", `"`,
			"‘", "'", "’", "'",
		),
	}
}

// Normalize returns text prepared for synthesis. URLs and email addresses
// pass through untouched. Empty or blank input yields "".
func (n *Normalizer) Normalize(text string) string {
	if strings.TrimSpace(text) == "" {
		return ""
	}

	protected, originals := n.protect(text)

	protected = n.abbreviations.Replace(protected)
	protected = n.numbers.ReplaceAllStringFunc(protected, func(digits string) string {
		value, err := strconv.Atoi(digits)
		if err != nil {
			return digits
		}

		words, ok := NumberToWords(value)
		if !ok {
			return digits
		}

		return words
	})
	protected = n.typography.Replace(protected)
	protected = n.repeated.ReplaceAllString(protected, "$1")
	protected = strings.TrimSpace(n.whitespace.ReplaceAllString(protected, " "))

	for i, original := range originals {
		protected = strings.ReplaceAll(protected, placeholder(i), original)
	}

	return terminate(protected)
}

func (n *Normalizer) protect(text string) (string, []string) {
	var originals []string

	for _, pattern := range n.tokens {
		text = pattern.ReplaceAllStringFunc(text, func(match string) string {
			originals = append(originals, match)

			return placeholder(len(originals) - 1)
		})
	}

	return text, originals
}

func placeholder(index int) string {
	return string(rune(placeholderBase + index))
}

// terminate appends a period unless text already ends a sentence.
func terminate(text string) string {
	last, _ := utf8.DecodeLastRuneInString(text)

	switch last {
	case '.', '!', '?':
		return text
	}

	if unicode.IsPunct(last) && last != '"' && last != '\'' && last != ')' {
		return strings.TrimRightFunc(text, unicode.IsPunct) + "."
	}

	return text + "."
}

// NumberToWords spells out value in English. It reports false for negative
// values and values above MaxSpelledNumber.
func NumberToWords(value int) (string, bool) {
	if value < 0 || value > MaxSpelledNumber {
		return "", false
	}

	if value == 0 {
		return ones[0], true
	}

	var parts []string

	for _, scale := range scales {
		if value >= scale.value {
			parts = append(parts, underThousand(value/scale.value), scale.name)
			value %= scale.value
		}
	}

	if value > 0 {
		parts = append(parts, underThousand(value))
	}

	return strings.Join(parts, " "), true
}

func underThousand(value int) string {
	var parts []string

	if value >= 100 {
		parts = append(parts, ones[value/100], "hundred")
		value %= 100
	}

	switch {
	case value == 0:
	case value < len(ones):
		parts = append(parts, ones[value])
	case value%10 == 0:
		parts = append(parts, tens[value/10])
	default:
		parts = append(parts, tens[value/10]+"-"+ones[value%10])
	}

	return strings.Join(parts, " ")
}
