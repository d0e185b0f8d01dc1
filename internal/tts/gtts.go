package tts

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

const (
	defaultGTTSBinary  = "gtts-cli"
	defaultGTTSTimeout = 30 * time.Second
)

// GTTSEngine is an Engine that shells out to gtts-cli (Google Translate TTS) and
// returns mp3 audio.
type GTTSEngine struct {
	binary  string
	slow    bool
	tld     string
	timeout time.Duration
}

// NewGTTSEngine creates a gtts-cli engine. An empty binary means gtts-cli on PATH.
func NewGTTSEngine(binary string, slow bool, tld string, timeout time.Duration) *GTTSEngine {
	if binary == "" {
		binary = defaultGTTSBinary
	}

	if timeout <= 0 {
		timeout = defaultGTTSTimeout
	}

	return &GTTSEngine{binary: binary, slow: slow, tld: tld, timeout: timeout}
}

// Name identifies the engine in cache keys and logs.
func (e *GTTSEngine) Name() string {
	return EngineGTTS
}

// Args builds the gtts-cli arguments. The text follows "--" so a line starting with a
// dash is not read as a flag.
func (e *GTTSEngine) Args(text, lang string) []string {
	args := []string{"--lang", lang}

	if e.slow {
		args = append(args, "--slow")
	}

	if e.tld != "" {
		args = append(args, "--tld", e.tld)
	}

	return append(args, "--output", "-", "--", text)
}

// Generate implements Engine.
func (e *GTTSEngine) Generate(ctx context.Context, text, lang string) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}

	if lang == "" {
		lang = DefaultLanguage
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer

	// #nosec G204 -- the binary comes from configuration, the text is a single argument
	cmd := exec.CommandContext(ctx, e.binary, e.Args(text, lang)...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	if runErr != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("gtts-cli timed out after %v: %w", e.timeout, ctx.Err())
		}

		return nil, fmt.Errorf("gtts-cli failed: %w - output: %s", runErr, strings.TrimSpace(stderr.String()))
	}

	if stdout.Len() == 0 {
		return nil, ErrEmptyAudio
	}

	return stdout.Bytes(), nil
}

// Check implements Engine by asking gtts-cli for its version.
func (e *GTTSEngine) Check(ctx context.Context) error {
	output, runErr := exec.CommandContext(ctx, e.binary, "--version").CombinedOutput()
	if runErr != nil {
		return fmt.Errorf("%s not callable: %w - output: %s", e.binary, runErr, strings.TrimSpace(string(output)))
	}

	return nil
}
