package text_test

import (
	"testing"

	"github.com/book-expert/video-service/internal/tts/text"
	"github.com/stretchr/testify/assert"
)

func TestPrepare_AllLanguages(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		input    string
		lang     string
		expected string
	}{
		{name: "empty", input: "", lang: "ja", expected: ""},
		{name: "whitespace only", input: " \t\n ", lang: "en", expected: ""},
		{name: "japanese untouched", input: "こんにちは、世界。", lang: "ja", expected: "こんにちは、世界。"},
		{name: "japanese whitespace", input: "  おはよう\n ございます ", lang: "ja", expected: "おはよう ございます"},
		{name: "numbers kept outside english", input: "残り 3 回", lang: "ja", expected: "残り 3 回"},
		{name: "repeated punctuation", input: "本当！！！", lang: "ja", expected: "本当！"},
		{name: "url kept", input: "詳細は https://example.com/a を見て", lang: "ja", expected: "詳細は https://example.com/a を見て"},
		{name: "mixed repeats", input: "えっ？？、、本当", lang: "ja", expected: "えっ？、本当"},
		{name: "dashes kept", input: "a -- b", lang: "de", expected: "a -- b"},
		{name: "smart quotes", input: "“Hi” — ‘there’…", lang: "fr", expected: `"Hi" - 'there'...`},
	}

	preprocessor := text.NewPreprocessor()

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, testCase.expected, preprocessor.Prepare(testCase.input, testCase.lang))
		})
	}
}

func TestPrepare_English(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "adds period", input: "Hello world", expected: "Hello world."},
		{name: "keeps question", input: "Are you there?", expected: "Are you there?"},
		{name: "abbreviations", input: "Mr. Smith met Dr. Jones", expected: "Mister Smith met Doctor Jones."},
		{name: "numbers", input: "I have 3 apples and 42 pears", expected: "I have three apples and forty two pears."},
		{name: "references", input: "As shown [12] here", expected: "As shown here."},
		{name: "url preserved", input: "See https://example.com/page2 now", expected: "See https://example.com/page2 now."},
		{name: "email preserved", input: "Mail bob2@example.com", expected: "Mail bob2@example.com."},
		{name: "collapses", input: "Wait!!!", expected: "Wait!"},
		{name: "region tag", input: "Room 7", expected: "Room seven."},
	}

	preprocessor := text.NewPreprocessor()

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			lang := "en"
			if testCase.name == "region tag" {
				lang = "en-GB"
			}

			assert.Equal(t, testCase.expected, preprocessor.Prepare(testCase.input, lang))
		})
	}
}

func TestIntegerToWords(t *testing.T) {
	t.Parallel()

	tests := map[int]string{
		0:       "zero",
		7:       "seven",
		13:      "thirteen",
		40:      "forty",
		99:      "ninety nine",
		100:     "one hundred",
		101:     "one hundred one",
		1000:    "one thousand",
		1234:    "one thousand two hundred thirty four",
		999999:  "nine hundred ninety nine thousand nine hundred ninety nine",
		1000000: "1000000",
		-5:      "-5",
	}

	for number, expected := range tests {
		assert.Equal(t, expected, text.IntegerToWords(number), number)
	}
}
