package encoder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// ProbeResult describes an encoded file as reported by ffprobe.
type ProbeResult struct {
	Duration   float64
	Width      int
	Height     int
	VideoCodec string
	AudioCodec string
}

type probeOutput struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
	Streams []struct {
		CodecType string `json:"codec_type"`
		CodecName string `json:"codec_name"`
		Width     int    `json:"width"`
		Height    int    `json:"height"`
	} `json:"streams"`
}

// Probe reads the container duration and stream codecs of path.
func (f *FFmpeg) Probe(ctx context.Context, path string) (*ProbeResult, error) {
	var stdout, stderr bytes.Buffer

	cmd := exec.CommandContext(ctx, f.cfg.FFprobePath,
		"-v", "error",
		"-show_entries", "format=duration:stream=codec_type,codec_name,width,height",
		"-of", "json",
		path,
	)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	if runErr != nil {
		return nil, fmt.Errorf("failed to probe %s: %w: %s", path, runErr, strings.TrimSpace(stderr.String()))
	}

	return ParseProbe(stdout.Bytes())
}

// ParseProbe decodes ffprobe's JSON output.
func ParseProbe(data []byte) (*ProbeResult, error) {
	var output probeOutput

	unmarshalErr := json.Unmarshal(data, &output)
	if unmarshalErr != nil {
		return nil, fmt.Errorf("failed to parse ffprobe output: %w", unmarshalErr)
	}

	duration, parseErr := strconv.ParseFloat(strings.TrimSpace(output.Format.Duration), 64)
	if parseErr != nil {
		return nil, fmt.Errorf("failed to parse duration %q: %w", output.Format.Duration, parseErr)
	}

	if duration < 0 {
		return nil, fmt.Errorf("negative duration %f", duration)
	}

	result := &ProbeResult{Duration: duration}

	for _, stream := range output.Streams {
		switch stream.CodecType {
		case "video":
			result.VideoCodec = stream.CodecName
			result.Width = stream.Width
			result.Height = stream.Height
		case "audio":
			result.AudioCodec = stream.CodecName
		}
	}

	return result, nil
}
