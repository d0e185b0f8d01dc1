package worker

import "github.com/book-expert/events"

// RenderRequestedEvent asks the service to render the script stored under ScriptKey
// in the script bucket. Language overrides the script's own language when set.
type RenderRequestedEvent struct {
	Header    events.EventHeader `json:"header"`
	ScriptKey string             `json:"scriptKey"`
	Language  string             `json:"language,omitempty"`
}

// VideoRenderedEvent is the reply to a RenderRequestedEvent. Error is empty on
// success, in which case VideoKey names the video in the video bucket.
type VideoRenderedEvent struct {
	Header          events.EventHeader `json:"header"`
	JobID           string             `json:"jobId"`
	VideoKey        string             `json:"videoKey,omitempty"`
	LineCount       int                `json:"lineCount"`
	SkippedLines    []int              `json:"skippedLines,omitempty"`
	DurationSeconds float64            `json:"durationSeconds"`
	Error           string             `json:"error,omitempty"`
}
