package tts

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
)

const (
	cacheFileExt      = ".zst"
	cacheDirPerm      = 0o750
	cacheFilePerm     = 0o600
	cacheKeyHashBytes = 16
)

// AudioCache stores encoded speech on disk, zstd-compressed, so a script rendered
// twice only calls the engine once per distinct line. It is safe for concurrent use.
type AudioCache struct {
	dir     string
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

// NewAudioCache opens (and creates) a cache rooted at dir.
func NewAudioCache(dir string) (*AudioCache, error) {
	mkdirErr := os.MkdirAll(dir, cacheDirPerm)
	if mkdirErr != nil {
		return nil, fmt.Errorf("failed to create cache dir %s: %w", dir, mkdirErr)
	}

	encoder, encoderErr := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if encoderErr != nil {
		return nil, fmt.Errorf("failed to create zstd encoder: %w", encoderErr)
	}

	decoder, decoderErr := zstd.NewReader(nil)
	if decoderErr != nil {
		return nil, fmt.Errorf("failed to create zstd decoder: %w", decoderErr)
	}

	return &AudioCache{dir: dir, encoder: encoder, decoder: decoder}, nil
}

// CacheKey derives the cache key for one synthesis request.
func CacheKey(engine, lang, text string) string {
	hash := sha256.Sum256([]byte(engine + "|" + lang + "|" + text))

	return hex.EncodeToString(hash[:cacheKeyHashBytes])
}

// Get returns the cached audio for key. Unreadable or corrupt entries are removed and
// reported as misses.
func (c *AudioCache) Get(key string) ([]byte, bool) {
	path := c.path(key)

	compressed, readErr := os.ReadFile(path)
	if readErr != nil {
		return nil, false
	}

	data, decodeErr := c.decoder.DecodeAll(compressed, nil)

	if decodeErr != nil || len(data) == 0 {
		_ = os.Remove(path)

		return nil, false
	}

	return data, true
}

// Put stores data under key. The entry is written to a temporary file and renamed so
// readers never see a partial entry.
func (c *AudioCache) Put(key string, data []byte) error {
	path := c.path(key)

	mkdirErr := os.MkdirAll(filepath.Dir(path), cacheDirPerm)
	if mkdirErr != nil {
		return fmt.Errorf("failed to create cache shard: %w", mkdirErr)
	}

	compressed := c.encoder.EncodeAll(data, nil)

	tempFile, createErr := os.CreateTemp(filepath.Dir(path), ".entry-*")
	if createErr != nil {
		return fmt.Errorf("failed to create cache entry: %w", createErr)
	}

	tempPath := tempFile.Name()

	_, writeErr := tempFile.Write(compressed)

	closeErr := tempFile.Close()
	if writeErr == nil {
		writeErr = closeErr
	}

	if writeErr == nil {
		writeErr = os.Chmod(tempPath, cacheFilePerm)
	}

	if writeErr == nil {
		writeErr = os.Rename(tempPath, path)
	}

	if writeErr != nil {
		_ = os.Remove(tempPath)

		return fmt.Errorf("failed to write cache entry: %w", writeErr)
	}

	return nil
}

// Close releases the compressor resources.
func (c *AudioCache) Close() {
	_ = c.encoder.Close()
	c.decoder.Close()
}

func (c *AudioCache) path(key string) string {
	shard := key
	if len(shard) > 2 {
		shard = key[:2]
	}

	return filepath.Join(c.dir, shard, key+cacheFileExt)
}
