package artifact

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// Store resolves artifact references against a models directory.
type Store struct {
	root string
}

func NewStore(root string) *Store {
	return &Store{root: root}
}

// Load reads the artifact for ref, a version name or a version directory.
func (s *Store) Load(ref string) (*Artifact, error) {
	return Load(s.root, ref)
}

// Versions lists the version directories under root that hold a bundle file.
func (s *Store) Versions() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: models directory %s", ErrArtifactNotFound, s.root)
		}
		return nil, err
	}
	versions := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if _, err := os.Stat(filepath.Join(s.root, entry.Name(), BundleFile)); err == nil {
			versions = append(versions, entry.Name())
		}
	}
	sort.Strings(versions)
	return versions, nil
}
