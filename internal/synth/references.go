package synth

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/book-expert/logger"
	"github.com/book-expert/voiceclone/internal/audio"
	"github.com/book-expert/voiceclone/internal/core"
	"github.com/book-expert/voiceclone/internal/fileutil"
)

// Reference loading errors.
var (
	ErrVoiceDirNotFound = errors.New("voice sample directory not found")
	ErrNoReferences     = errors.New("no decodable voice samples")
)

// LoadReferences decodes every WAV file in dir, sorted by name, as mono audio
// at sampleRate. Files that fail to decode are logged and skipped.
func LoadReferences(dir string, sampleRate int, log *logger.Logger) ([]core.Reference, error) {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrVoiceDirNotFound, dir)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list voice samples in %s: %w", dir, err)
	}

	names := make([]string, 0, len(entries))

	for _, entry := range entries {
		if entry.IsDir() || !fileutil.HasExtension(entry.Name(), ".wav") {
			continue
		}

		names = append(names, entry.Name())
	}

	sort.Strings(names)

	references := make([]core.Reference, 0, len(names))

	for _, name := range names {
		path := filepath.Join(dir, name)

		clip, readErr := audio.ReadWAV(path)
		if readErr != nil {
			log.Warn("Skipping voice sample %s: %v", path, readErr)

			continue
		}

		clip = clip.Mono().Resample(sampleRate)

		references = append(references, core.Reference{
			Name:       name,
			Path:       path,
			Samples:    clip.Float32(),
			SampleRate: sampleRate,
		})
	}

	if len(references) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoReferences, dir)
	}

	log.Info("Loaded %d voice samples from %s", len(references), dir)

	return references, nil
}
