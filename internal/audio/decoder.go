package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"time"
)

const defaultDecodeTimeout = 30 * time.Second

var (
	// ErrNoAudioData indicates an empty encoded payload.
	ErrNoAudioData = errors.New("no audio data to decode")
	// ErrDecodedTooLarge indicates decoded audio longer than the configured maximum.
	ErrDecodedTooLarge = errors.New("decoded audio exceeds maximum duration")
)

// Decoder turns encoded audio (mp3, wav, anything ffmpeg reads) into a Track.
// The payload is decoded exactly once; sampling afterwards never touches the codec.
type Decoder struct {
	ffmpegPath string
	options    DecodeOptions
	timeout    time.Duration
}

// NewDecoder creates a decoder that shells out to the ffmpeg binary at ffmpegPath.
func NewDecoder(ffmpegPath string, options DecodeOptions, timeout time.Duration) (*Decoder, error) {
	optionsErr := options.Validate()
	if optionsErr != nil {
		return nil, optionsErr
	}

	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}

	if timeout <= 0 {
		timeout = defaultDecodeTimeout
	}

	return &Decoder{
		ffmpegPath: ffmpegPath,
		options:    options,
		timeout:    timeout,
	}, nil
}

// Decode converts the encoded payload to mono PCM at the configured sample rate.
func (d *Decoder) Decode(ctx context.Context, encoded []byte) (*Track, error) {
	if len(encoded) == 0 {
		return nil, ErrNoAudioData
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	// #nosec G204 -- binary path comes from trusted configuration
	cmd := exec.CommandContext(ctx, d.ffmpegPath, d.args()...)
	cmd.Stdin = bytes.NewReader(encoded)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	if runErr != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("ffmpeg decode timeout: %w", ctx.Err())
		}

		return nil, fmt.Errorf("ffmpeg decode failed: %w, stderr: %s", runErr, stderr.String())
	}

	if stdout.Len() > d.options.maxBytes() {
		return nil, fmt.Errorf("%w: %.1fs", ErrDecodedTooLarge, d.options.MaxDuration)
	}

	track, err := ParsePCM16(stdout.Bytes(), d.options.SampleRate)
	if err != nil {
		return nil, fmt.Errorf("failed to parse decoded pcm: %w", err)
	}

	return track, nil
}

func (d *Decoder) args() []string {
	return []string{
		"-hide_banner",
		"-loglevel", "error",
		"-i", "pipe:0",
		"-f", "s16le",
		"-acodec", "pcm_s16le",
		"-ac", "1",
		"-ar", strconv.Itoa(d.options.SampleRate),
		"pipe:1",
	}
}
