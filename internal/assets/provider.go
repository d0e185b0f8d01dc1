// Package assets resolves characters to their pose images on disk.
package assets

import (
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/book-expert/logger"
	"github.com/book-expert/video-service/internal/core"
	"github.com/book-expert/video-service/internal/fsutil"
	"github.com/book-expert/video-service/internal/pose"
	"github.com/book-expert/video-service/internal/script"
)

const (
	logFmtUnknownCharacter = "Character %q has no image directory at %s"
	logFmtFirstImage       = "Character %q has no pose-named images, using %s as pose 00"
	logFmtOutsideRoot      = "Ignoring image directory %s for character %q: not under %s"
	logFmtInvalidID        = "Ignoring character id %q: not a directory name"
)

// CharacterInfo describes a character directory.
type CharacterInfo struct {
	ID     string
	Name   string
	Path   string
	Images []string
}

// DirProvider looks up characters under a root directory: the images of character
// "alice" live in <root>/alice and are named after the pose they draw (00.png ... 03.png).
type DirProvider struct {
	root      string
	overrides map[string]string
	log       *logger.Logger
}

// NewDirProvider creates a provider rooted at root.
func NewDirProvider(root string, log *logger.Logger) *DirProvider {
	return &DirProvider{root: root, overrides: make(map[string]string), log: log}
}

// WithCharacters returns a copy of the provider in which characters that carry an
// explicit image directory are looked up there instead of under <root>/<id>.
// Relative directories are taken from the root; directories outside the root
// are ignored, since scripts can arrive from remote clients.
func (p *DirProvider) WithCharacters(characters []script.Character) core.AssetProvider {
	overrides := make(map[string]string, len(p.overrides)+len(characters))
	for id, dir := range p.overrides {
		overrides[id] = dir
	}

	for _, character := range characters {
		if character.ID == "" || character.ImageBasePath == "" {
			continue
		}

		dir, inside := p.underRoot(character.ImageBasePath)
		if !inside {
			p.log.Warn(logFmtOutsideRoot, character.ImageBasePath, character.ID, p.root)

			continue
		}

		overrides[character.ID] = dir
	}

	return &DirProvider{root: p.root, overrides: overrides, log: p.log}
}

func (p *DirProvider) underRoot(dir string) (string, bool) {
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(p.root, dir)
	}

	rootAbs, rootErr := filepath.Abs(p.root)
	dirAbs, dirErr := filepath.Abs(dir)

	if rootErr != nil || dirErr != nil {
		return "", false
	}

	rel, relErr := filepath.Rel(rootAbs, dirAbs)
	if relErr != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}

	return dir, true
}

// ResolvePoseImages maps the character's images to poses. Files named after a pose
// key win; if there are none, the first image in name order becomes pose 00.
// An unknown character yields an empty mapping.
func (p *DirProvider) ResolvePoseImages(characterID string) pose.Paths {
	paths := pose.Paths{}
	if characterID == "" {
		return paths
	}

	dir, ok := p.characterDir(characterID)
	if !ok {
		p.log.Warn(logFmtInvalidID, characterID)

		return paths
	}

	images := listImages(dir)
	if len(images) == 0 {
		p.log.Warn(logFmtUnknownCharacter, characterID, dir)

		return paths
	}

	for _, image := range images {
		key, ok := pose.ParseKey(fsutil.Stem(image))
		if !ok {
			continue
		}

		if _, taken := paths[key]; !taken {
			paths[key] = filepath.Join(dir, image)
		}
	}

	if len(paths) == 0 {
		first := filepath.Join(dir, images[0])
		p.log.Warn(logFmtFirstImage, characterID, first)
		paths[pose.EyesOpenMouthClosed] = first
	}

	return paths
}

// Characters lists every character directory under the root, sorted by id.
func (p *DirProvider) Characters() ([]CharacterInfo, error) {
	entries, readErr := os.ReadDir(p.root)
	if readErr != nil {
		return nil, readErr
	}

	var characters []CharacterInfo

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		path := filepath.Join(p.root, entry.Name())
		characters = append(characters, CharacterInfo{
			ID:     entry.Name(),
			Name:   displayName(entry.Name()),
			Path:   path,
			Images: listImages(path),
		})
	}

	return characters, nil
}

func (p *DirProvider) characterDir(characterID string) (string, bool) {
	if dir, ok := p.overrides[characterID]; ok {
		return dir, true
	}

	name := fsutil.SanitizeFilename(characterID)
	if name == "." || name == ".." {
		return "", false
	}

	return filepath.Join(p.root, name), true
}

// Resolve builds the explicit per-render mapping from character id to pose images.
func Resolve(provider core.AssetProvider, characterIDs []string) map[string]pose.Paths {
	resolved := make(map[string]pose.Paths, len(characterIDs))

	for _, id := range characterIDs {
		resolved[id] = provider.ResolvePoseImages(id)
	}

	return resolved
}

func listImages(dir string) []string {
	entries, readErr := os.ReadDir(dir)
	if readErr != nil {
		return nil
	}

	var images []string

	for _, entry := range entries {
		if entry.Type().IsRegular() && fsutil.IsImageFile(entry.Name()) {
			images = append(images, entry.Name())
		}
	}

	slices.Sort(images)

	return images
}

func displayName(id string) string {
	if id == "" {
		return id
	}

	return strings.ToUpper(id[:1]) + id[1:]
}
