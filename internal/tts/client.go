package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"time"
)

const (
	apiGenerateSpeech = "/v1/generate/speech"
	apiHealth         = "/health"
)

const (
	headerContentType = "Content-Type"
	headerAccept      = "Accept"
	contentTypeJSON   = "application/json"
	contentTypeWAV    = "audio/wav"
	contentTypeMPEG   = "audio/mpeg"
)

const defaultTemperature = 0.75

const (
	errFmtServiceErrorWithCode = "TTS service error (%s): %s (code: %s)"
	errFmtServiceNonOKStatus   = "TTS service returned non-OK status: %s, body: %s"
)

var (
	// ErrEmptyText is returned when there is nothing to speak.
	ErrEmptyText = errors.New("text cannot be empty")
	// ErrUnexpectedContentType is returned when the service answers with something
	// other than audio.
	ErrUnexpectedContentType = errors.New("unexpected content type")
	// ErrEmptyAudio is returned when the service answers with no audio bytes.
	ErrEmptyAudio = errors.New("received empty audio data")
)

// HTTPClient is an Engine backed by a standalone TTS HTTP service.
type HTTPClient struct {
	httpClient     *http.Client
	baseURL        string
	speakerRefPath string
	temperature    float64
}

// SpeechRequest is the JSON body of a speech generation request.
type SpeechRequest struct {
	Text           string  `json:"text"`
	SpeakerRefPath string  `json:"speaker_ref_path,omitempty"`
	Language       string  `json:"language"`
	Temperature    float64 `json:"temperature"`
}

// ErrorResponse is the structured error body returned by the service.
type ErrorResponse struct {
	Detail    string `json:"detail"`
	ErrorCode string `json:"error_code,omitempty"`
}

// NewHTTPClient creates a client for the service at baseURL (e.g.
// "http://localhost:8000"). timeout applies to every request.
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL:     baseURL,
		temperature: defaultTemperature,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// WithSpeaker sets the server-side speaker reference used for every request.
func (c *HTTPClient) WithSpeaker(speakerRefPath string) *HTTPClient {
	c.speakerRefPath = speakerRefPath

	return c
}

// Name identifies the engine in cache keys and logs.
func (c *HTTPClient) Name() string {
	return EngineHTTP
}

// Generate implements Engine.
func (c *HTTPClient) Generate(ctx context.Context, text, lang string) ([]byte, error) {
	return c.GenerateSpeech(ctx, SpeechRequest{
		Text:           text,
		SpeakerRefPath: c.speakerRefPath,
		Language:       lang,
		Temperature:    c.temperature,
	})
}

// GenerateSpeech posts req and returns the encoded audio (wav or mp3).
func (c *HTTPClient) GenerateSpeech(ctx context.Context, req SpeechRequest) ([]byte, error) {
	if req.Text == "" {
		return nil, ErrEmptyText
	}

	if req.Temperature == 0 {
		req.Temperature = defaultTemperature
	}

	if req.Language == "" {
		req.Language = DefaultLanguage
	}

	requestBody, marshalErr := json.Marshal(req)
	if marshalErr != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", marshalErr)
	}

	httpReq, requestErr := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		c.baseURL+apiGenerateSpeech,
		bytes.NewReader(requestBody),
	)
	if requestErr != nil {
		return nil, fmt.Errorf("failed to create request: %w", requestErr)
	}

	httpReq.Header.Set(headerContentType, contentTypeJSON)
	httpReq.Header.Set(headerAccept, contentTypeWAV+", "+contentTypeMPEG)

	resp, doErr := c.httpClient.Do(httpReq)
	if doErr != nil {
		return nil, fmt.Errorf("failed to send request to TTS service at %s: %w", c.baseURL, doErr)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, parseErrorResponse(resp)
	}

	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get(headerContentType))
	if mediaType != contentTypeWAV && mediaType != contentTypeMPEG {
		return nil, fmt.Errorf("%w: %q", ErrUnexpectedContentType, resp.Header.Get(headerContentType))
	}

	audioData, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return nil, fmt.Errorf("failed to read audio data: %w", readErr)
	}

	if len(audioData) == 0 {
		return nil, ErrEmptyAudio
	}

	return audioData, nil
}

// Check implements Engine by calling the service health endpoint.
func (c *HTTPClient) Check(ctx context.Context) error {
	req, requestErr := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+apiHealth, http.NoBody)
	if requestErr != nil {
		return fmt.Errorf("failed to create health check request: %w", requestErr)
	}

	resp, doErr := c.httpClient.Do(req)
	if doErr != nil {
		return fmt.Errorf("health check failed for service at %s: %w", c.baseURL, doErr)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check failed with status: %s", resp.Status)
	}

	return nil
}

// parseErrorResponse prefers the structured JSON error and falls back to the raw body.
func parseErrorResponse(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)

	var errorResp ErrorResponse

	unmarshalErr := json.Unmarshal(body, &errorResp)
	if unmarshalErr == nil && errorResp.Detail != "" {
		return fmt.Errorf(errFmtServiceErrorWithCode, resp.Status, errorResp.Detail, errorResp.ErrorCode)
	}

	return fmt.Errorf(errFmtServiceNonOKStatus, resp.Status, string(body))
}
