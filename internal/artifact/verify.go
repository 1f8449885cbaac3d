package artifact

import (
	"fmt"
	"os"
)

// MissingArtifactError reports that a tracked artifact does not exist
// on disk.
type MissingArtifactError struct {
	Tag  string
	Path string
}

func (e *MissingArtifactError) Error() string {
	return fmt.Sprintf("artifact for tag '%s' missing at %s", e.Tag, e.Path)
}

// DimensionMismatchError reports a PNG whose pixel dimensions differ
// from the manifest entry. Both sides are carried so reports can cite
// the exact values.
type DimensionMismatchError struct {
	Path       string
	WantWidth  int
	WantHeight int
	GotWidth   int
	GotHeight  int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("%s is %dx%d, manifest expects %dx%d",
		e.Path, e.GotWidth, e.GotHeight, e.WantWidth, e.WantHeight)
}

// HashMismatchError reports content drift: the artifact's sha256 does
// not match the manifest entry.
type HashMismatchError struct {
	Path string
	Want string
	Got  string
}

func (e *HashMismatchError) Error() string {
	return fmt.Sprintf("%s sha256 %s does not match manifest %s",
		e.Path, ShortHash(e.Got), ShortHash(e.Want))
}

// Verify probes the PNG at path and checks it against the manifest
// entry: existence, then dimensions, then content hash. The probed
// identity is returned whenever the file was readable so reports can
// show what was actually on disk.
func Verify(tag, path string, want Capture) (Identity, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return Identity{}, &MissingArtifactError{Tag: tag, Path: path}
		}
		return Identity{}, fmt.Errorf("failed to stat %s: %w", path, err)
	}

	got, err := Probe(path)
	if err != nil {
		return Identity{}, err
	}
	if got.Width != want.Width || got.Height != want.Height {
		return got, &DimensionMismatchError{
			Path:       path,
			WantWidth:  want.Width,
			WantHeight: want.Height,
			GotWidth:   got.Width,
			GotHeight:  got.Height,
		}
	}
	if got.SHA256 != want.SHA256 {
		return got, &HashMismatchError{Path: path, Want: want.SHA256, Got: got.SHA256}
	}
	return got, nil
}
