// Package core defines the core business interfaces and error taxonomy for the
// video service.
package core

import (
	"context"

	"github.com/book-expert/video-service/internal/audio"
	"github.com/book-expert/video-service/internal/pose"
)

// ObjectStore defines the interface for interacting with a key-value blob store.
type ObjectStore interface {
	Download(ctx context.Context, key string) ([]byte, error)
	Upload(ctx context.Context, key string, data []byte) error
	UploadFile(ctx context.Context, key, path string) error
}

// Synthesizer turns one line of text into a decoded audio track.
// Implementations return an error wrapping ErrSynthesis when the provider is
// unreachable or the text is empty.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, lang string) (*audio.Track, error)
}

// AssetProvider resolves a character id to the pose images available for it.
// An unknown character yields an empty mapping, never an error.
type AssetProvider interface {
	ResolvePoseImages(characterID string) pose.Paths
}
