// Package text normalizes dialogue lines before they are sent to a speech engine.
package text

import (
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

// MaxNumberForWords is the largest integer spelled out in English text.
const MaxNumberForWords = 999999

const (
	languageEnglish = "en"

	// Only sentence punctuation is collapsed; "//" in URLs and "--" must survive.
	collapsiblePunctuation = "!?,;:。！？、，；："

	urlRegexPattern        = `https?://\S+`
	emailRegexPattern      = `[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`
	numberRegexPattern     = `\d+`
	referenceRegexPattern  = `\[\d+\]`
	whitespaceRegexPattern = `\s+`
)

var (
	ones = []string{
		"", "one", "two", "three", "four", "five", "six", "seven", "eight", "nine",
	}
	teens = []string{
		"ten", "eleven", "twelve", "thirteen", "fourteen",
		"fifteen", "sixteen", "seventeen", "eighteen", "nineteen",
	}
	tens = []string{
		"", "", "twenty", "thirty", "forty", "fifty", "sixty", "seventy", "eighty", "ninety",
	}
)

// Preprocessor cleans text for speech. It is safe for concurrent use.
type Preprocessor struct {
	urlPattern        *regexp.Regexp
	emailPattern      *regexp.Regexp
	numberPattern     *regexp.Regexp
	referencePattern  *regexp.Regexp
	whitespacePattern *regexp.Regexp
	punctuation       *strings.Replacer
	abbreviations     *strings.Replacer
}

// NewPreprocessor compiles the patterns once.
func NewPreprocessor() *Preprocessor {
	return &Preprocessor{
		urlPattern:        regexp.MustCompile(urlRegexPattern),
		emailPattern:      regexp.MustCompile(emailRegexPattern),
		numberPattern:     regexp.MustCompile(numberRegexPattern),
		referencePattern:  regexp.MustCompile(referenceRegexPattern),
		whitespacePattern: regexp.MustCompile(whitespaceRegexPattern),
		punctuation: strings.NewReplacer(
			"—", "-", "–", "-", "‒", "-",
			"…", "...",
			"“", `"`, "”", `"`,
			"‘", "'", "’", "'",
		),
		abbreviations: strings.NewReplacer(
			"Mr.", "Mister",
			"Mrs.", "Misses",
			"Ms.", "Miss",
			"Dr.", "Doctor",
			"St.", "Saint",
			"Inc.", "Incorporated",
			"Ltd.", "Limited",
		),
	}
}

// Prepare returns the text to speak for one line in lang. Every language gets
// whitespace, quote and repeated punctuation cleanup. English additionally gets
// abbreviations and integers spelled out, bracketed references removed and a
// terminal period. An empty result means there is nothing to speak.
func (p *Preprocessor) Prepare(text, lang string) string {
	text = p.whitespacePattern.ReplaceAllString(text, " ")
	text = strings.TrimSpace(text)

	if text == "" {
		return ""
	}

	text = p.punctuation.Replace(text)

	if strings.EqualFold(lang, languageEnglish) || strings.HasPrefix(strings.ToLower(lang), languageEnglish+"-") {
		text = p.prepareEnglish(text)
	}

	return collapseRepeatedPunctuation(text)
}

func (p *Preprocessor) prepareEnglish(text string) string {
	preserved, placeholders := p.preserveTokens(text)

	preserved = p.referencePattern.ReplaceAllString(preserved, "")
	preserved = p.abbreviations.Replace(preserved)
	preserved = p.numberPattern.ReplaceAllStringFunc(preserved, func(digits string) string {
		number, atoiErr := strconv.Atoi(digits)
		if atoiErr != nil {
			return digits
		}

		return IntegerToWords(number)
	})
	preserved = strings.TrimSpace(p.whitespacePattern.ReplaceAllString(preserved, " "))

	for placeholder, original := range placeholders {
		preserved = strings.ReplaceAll(preserved, placeholder, original)
	}

	return ensureSentenceEnding(preserved)
}

// preserveTokens swaps URLs and emails for placeholders so later steps leave them
// intact.
func (p *Preprocessor) preserveTokens(text string) (string, map[string]string) {
	placeholders := make(map[string]string)

	for _, pattern := range []*regexp.Regexp{p.urlPattern, p.emailPattern} {
		text = pattern.ReplaceAllStringFunc(text, func(match string) string {
			// Placeholders contain no digits so number expansion cannot touch them.
			placeholder := "\x00" + strings.Repeat("\x01", len(placeholders)+1) + "\x00"
			placeholders[placeholder] = match

			return placeholder
		})
	}

	return text, placeholders
}

// collapseRepeatedPunctuation turns "!!!" into "!" but keeps ellipses and URLs.
func collapseRepeatedPunctuation(text string) string {
	var (
		builder  strings.Builder
		previous rune
	)

	builder.Grow(len(text))

	for _, char := range text {
		if char == previous && strings.ContainsRune(collapsiblePunctuation, char) {
			continue
		}

		builder.WriteRune(char)
		previous = char
	}

	return builder.String()
}

func ensureSentenceEnding(text string) string {
	if text == "" {
		return text
	}

	lastChar, _ := utf8.DecodeLastRuneInString(text)
	switch lastChar {
	case '.', '!', '?', '"', '\'':
		return text
	default:
		return text + "."
	}
}

// IntegerToWords spells out an integer in English. Numbers outside
// [0, MaxNumberForWords] are returned as digits.
func IntegerToWords(number int) string {
	if number < 0 || number > MaxNumberForWords {
		return strconv.Itoa(number)
	}

	if number == 0 {
		return "zero"
	}

	var parts []string

	if number >= 1000 {
		parts = append(parts, underThousand(number/1000), "thousand")
		number %= 1000
	}

	if number > 0 {
		parts = append(parts, underThousand(number))
	}

	return strings.Join(parts, " ")
}

func underThousand(number int) string {
	var parts []string

	if number >= 100 {
		parts = append(parts, ones[number/100], "hundred")
		number %= 100
	}

	switch {
	case number == 0:
	case number < 10:
		parts = append(parts, ones[number])
	case number < 20:
		parts = append(parts, teens[number-10])
	default:
		word := tens[number/10]
		if number%10 > 0 {
			word += " " + ones[number%10]
		}

		parts = append(parts, word)
	}

	return strings.Join(parts, " ")
}
