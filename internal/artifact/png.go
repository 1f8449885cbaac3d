package artifact

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	"os"
)

// pngSignature is the 8-byte magic every PNG file starts with.
var pngSignature = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}

// Identity is the physical identity of a PNG artifact: its pixel
// dimensions and the sha256 of its bytes.
type Identity struct {
	Width  int    `json:"width"`
	Height int    `json:"height"`
	SHA256 string `json:"sha256"`
}

// ReadPNGSize reads the pixel dimensions from a PNG header without
// decoding the image. Only the first 24 bytes are examined: the
// signature, the IHDR chunk type, and the big-endian width and height.
func ReadPNGSize(path string) (width, height int, err error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer file.Close()

	header := make([]byte, 24)
	if _, err := io.ReadFull(file, header); err != nil {
		return 0, 0, fmt.Errorf("%s is not a valid PNG file", path)
	}
	if !bytes.Equal(header[:8], pngSignature) || string(header[12:16]) != "IHDR" {
		return 0, 0, fmt.Errorf("%s is not a valid PNG file", path)
	}

	width = int(binary.BigEndian.Uint32(header[16:20]))
	height = int(binary.BigEndian.Uint32(header[20:24]))
	return width, height, nil
}

// HashFile computes the sha256 of a file, streaming it in 8 KiB blocks.
func HashFile(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer file.Close()

	hash := sha256.New()
	if _, err := io.CopyBuffer(hash, file, make([]byte, 8192)); err != nil {
		return "", fmt.Errorf("failed to hash %s: %w", path, err)
	}
	return hex.EncodeToString(hash.Sum(nil)), nil
}

// Probe reads the full identity of a PNG artifact on disk.
func Probe(path string) (Identity, error) {
	width, height, err := ReadPNGSize(path)
	if err != nil {
		return Identity{}, err
	}
	digest, err := HashFile(path)
	if err != nil {
		return Identity{}, err
	}
	return Identity{Width: width, Height: height, SHA256: digest}, nil
}

// ShortHash truncates a hex digest for human-facing messages. Reports
// meant for automation keep the full digest.
func ShortHash(digest string) string {
	if len(digest) <= 12 {
		return digest
	}
	return digest[:12]
}
