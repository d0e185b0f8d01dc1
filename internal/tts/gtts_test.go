package tts_test

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/book-expert/video-service/internal/tts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBinary writes a shell script standing in for gtts-cli. Tests that execute it
// are not parallel: a concurrent fork can keep the script open for writing (ETXTBSY).
func fakeBinary(t *testing.T, body string) string {
	t.Helper()

	if runtime.GOOS == "windows" {
		t.Skip("shell scripts are not executable on windows")
	}

	path := filepath.Join(t.TempDir(), "gtts-cli")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o700))

	return path
}

func TestGTTSEngine_Args(t *testing.T) {
	t.Parallel()

	plain := tts.NewGTTSEngine("", false, "", 0)
	assert.Equal(t, []string{"--lang", "ja", "--output", "-", "--", "-dash"}, plain.Args("-dash", "ja"))

	tuned := tts.NewGTTSEngine("", true, "co.jp", 0)
	assert.Equal(t,
		[]string{"--lang", "en", "--slow", "--tld", "co.jp", "--output", "-", "--", "hi"},
		tuned.Args("hi", "en"))
}

func TestGTTSEngine_GenerateReturnsStdout(t *testing.T) {
	engine := tts.NewGTTSEngine(fakeBinary(t, `printf 'mp3:%s' "$*"`), false, "", 5*time.Second)

	data, err := engine.Generate(context.Background(), "こんにちは", "")
	require.NoError(t, err)
	assert.Equal(t, "mp3:--lang ja --output - -- こんにちは", string(data))
	assert.Equal(t, tts.EngineGTTS, engine.Name())
}

func TestGTTSEngine_Failures(t *testing.T) {
	failing := tts.NewGTTSEngine(fakeBinary(t, "echo 'no network' >&2; exit 3"), false, "", 5*time.Second)

	_, err := failing.Generate(context.Background(), "hello", "en")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no network")

	silent := tts.NewGTTSEngine(fakeBinary(t, "exit 0"), false, "", 5*time.Second)

	_, err = silent.Generate(context.Background(), "hello", "en")
	require.ErrorIs(t, err, tts.ErrEmptyAudio)

	_, err = silent.Generate(context.Background(), "  ", "en")
	require.ErrorIs(t, err, tts.ErrEmptyText)
}

func TestGTTSEngine_Check(t *testing.T) {
	require.NoError(t, tts.NewGTTSEngine(fakeBinary(t, "echo 2.5.0"), false, "", 0).Check(context.Background()))
	require.Error(t, tts.NewGTTSEngine(filepath.Join(t.TempDir(), "missing"), false, "", 0).Check(context.Background()))
}
