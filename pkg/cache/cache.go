// Package cache memoizes the decode-and-convert step of a run. Entries are
// keyed by a content fingerprint of the source files, so an unchanged
// acquisition is never decoded twice while an edited one always is.
package cache

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/golang/snappy"
	blake2b "github.com/minio/blake2b-simd"
	"gopkg.in/yaml.v3"

	"mriroimask/internal/models"
)

// Entry describes one cached conversion
type Entry struct {
	// Key is the fingerprint of the source files
	Key string `yaml:"key"`

	// Sources lists the files the fingerprint covers
	Sources []string `yaml:"sources"`

	// Artifact is the converted file produced from the sources
	Artifact string `yaml:"artifact"`

	// Dims is the shape of the cached volume
	Dims []int `yaml:"dims"`

	CreatedAt time.Time `yaml:"createdAt"`
}

// Store keeps entries as a YAML manifest plus a snappy-compressed volume
// blob per key
type Store struct {
	dir string
}

// Open returns a store rooted at dir, creating it if needed
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("error creating cache directory: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Fingerprint hashes the contents of the given files, in order, with
// BLAKE2b-256
func Fingerprint(paths ...string) (string, error) {
	h := blake2b.New256()
	for _, p := range paths {
		f, err := os.Open(p)
		if err != nil {
			return "", fmt.Errorf("error fingerprinting %s: %w", p, err)
		}
		n, err := io.Copy(h, f)
		f.Close()
		if err != nil {
			return "", fmt.Errorf("error fingerprinting %s: %w", p, err)
		}
		// length delimits files so that moving bytes between them changes the key
		var size [8]byte
		binary.LittleEndian.PutUint64(size[:], uint64(n))
		h.Write(size[:])
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func (s *Store) manifestPath(key string) string {
	return filepath.Join(s.dir, key+".yaml")
}

func (s *Store) blobPath(key string) string {
	return filepath.Join(s.dir, key+".vol.sz")
}

// Get returns the entry and volume stored under key. ok is false when the
// entry is absent or its artifact no longer exists.
func (s *Store) Get(key string) (entry *Entry, vol *models.Volume, ok bool, err error) {
	data, err := os.ReadFile(s.manifestPath(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil, false, nil
	}
	if err != nil {
		return nil, nil, false, fmt.Errorf("error reading cache manifest: %w", err)
	}

	entry = &Entry{}
	if err := yaml.Unmarshal(data, entry); err != nil {
		return nil, nil, false, fmt.Errorf("error parsing cache manifest: %w", err)
	}
	if entry.Artifact != "" {
		if _, err := os.Stat(entry.Artifact); err != nil {
			return nil, nil, false, nil
		}
	}

	compressed, err := os.ReadFile(s.blobPath(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil, false, nil
	}
	if err != nil {
		return nil, nil, false, fmt.Errorf("error reading cached volume: %w", err)
	}
	vol, err = decodeVolume(compressed, entry.Dims)
	if err != nil {
		return nil, nil, false, fmt.Errorf("cache entry %s: %w", key, err)
	}
	return entry, vol, true, nil
}

// Put stores entry and vol under entry.Key, replacing any previous entry
func (s *Store) Put(entry *Entry, vol *models.Volume) error {
	if err := vol.Validate(); err != nil {
		return err
	}
	if entry.Key == "" {
		return fmt.Errorf("cache entry has no key")
	}
	entry.Dims = append([]int(nil), vol.Dims[:]...)
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	// Blob first so that a manifest never points at a missing volume
	if err := os.WriteFile(s.blobPath(entry.Key), encodeVolume(vol), 0644); err != nil {
		return fmt.Errorf("error writing cached volume: %w", err)
	}
	data, err := yaml.Marshal(entry)
	if err != nil {
		return fmt.Errorf("error marshaling cache manifest: %w", err)
	}
	if err := os.WriteFile(s.manifestPath(entry.Key), data, 0644); err != nil {
		return fmt.Errorf("error writing cache manifest: %w", err)
	}
	return nil
}

// Remove deletes the entry stored under key, if any
func (s *Store) Remove(key string) error {
	for _, p := range []string{s.manifestPath(key), s.blobPath(key)} {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}
	return nil
}

func encodeVolume(v *models.Volume) []byte {
	raw := make([]byte, 8*len(v.Data))
	for i, value := range v.Data {
		binary.LittleEndian.PutUint64(raw[8*i:], math.Float64bits(value))
	}
	return snappy.Encode(nil, raw)
}

func decodeVolume(compressed []byte, shape []int) (*models.Volume, error) {
	if len(shape) != 3 {
		return nil, fmt.Errorf("cached volume has %d dimensions", len(shape))
	}
	dims := [3]int{shape[0], shape[1], shape[2]}
	raw, err := snappy.Decode(nil, compressed)
	if err != nil {
		return nil, fmt.Errorf("error decompressing volume: %w", err)
	}
	if len(raw)%8 != 0 {
		return nil, fmt.Errorf("volume blob has %d bytes, not a multiple of 8", len(raw))
	}
	data := make([]float64, len(raw)/8)
	for i := range data {
		data[i] = math.Float64frombits(binary.LittleEndian.Uint64(raw[8*i:]))
	}
	return models.FromData(data, dims)
}
