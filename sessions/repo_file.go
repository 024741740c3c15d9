package sessions

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/chacha20poly1305"
)

// fileFormatVersion prefixes encrypted documents and is authenticated as AAD
const fileFormatVersion byte = 0x01

var _ Repo = (*FileRepo)(nil)

// FileRepo stores the record as one JSON document on disk. When a key is
// configured the document is sealed with XChaCha20-Poly1305:
//
//	[version: 1 byte] [nonce: 24 bytes] [ciphertext+tag]
//
// A document that cannot be opened or decoded is reported as empty.
type FileRepo struct {
	mu   sync.Mutex
	path string
	key  []byte
}

// FileRepoOption configures a FileRepo
type FileRepoOption func(*FileRepo)

// WithEncryptionKey enables at-rest encryption. The key must be 32 bytes.
func WithEncryptionKey(key []byte) FileRepoOption {
	return func(r *FileRepo) {
		r.key = key
	}
}

// NewFileRepo creates a repository backed by path, creating its directory
func NewFileRepo(path string, opts ...FileRepoOption) (*FileRepo, error) {
	if path == "" {
		return nil, errors.New("[NewFileRepo] path is required")
	}

	r := &FileRepo{path: path}
	for _, opt := range opts {
		opt(r)
	}

	if r.key != nil && len(r.key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("[NewFileRepo] encryption key must be %d bytes, got %d", chacha20poly1305.KeySize, len(r.key))
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("[NewFileRepo] creating directory: %w", err)
	}
	return r, nil
}

// Load reads and decodes the document
func (r *FileRepo) Load(_ context.Context) (Fields, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	data, err := os.ReadFile(r.path)
	if errors.Is(err, fs.ErrNotExist) {
		return Fields{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("[FileRepo.Load] read: %w", err)
	}
	if len(data) == 0 {
		return Fields{}, nil
	}

	if r.key != nil {
		data, err = r.open(data)
		if err != nil {
			log.Warn().Err(err).Str("path", r.path).Msg("session file could not be decrypted, treating as empty")
			return Fields{}, nil
		}
	}

	fields := Fields{}
	if err := json.Unmarshal(data, &fields); err != nil {
		log.Warn().Err(err).Str("path", r.path).Msg("session file is not valid JSON, treating as empty")
		return Fields{}, nil
	}
	return fields, nil
}

// Replace writes the document to a temp file and renames it over the old one
func (r *FileRepo) Replace(_ context.Context, fields Fields) error {
	data, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("[FileRepo.Replace] marshal: %w", err)
	}

	if r.key != nil {
		if data, err = r.seal(data); err != nil {
			return fmt.Errorf("[FileRepo.Replace] seal: %w", err)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	tmp, err := os.CreateTemp(filepath.Dir(r.path), ".session-*.tmp")
	if err != nil {
		return fmt.Errorf("[FileRepo.Replace] create temp: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("[FileRepo.Replace] chmod: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("[FileRepo.Replace] write: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("[FileRepo.Replace] sync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("[FileRepo.Replace] close: %w", err)
	}
	if err := os.Rename(tmpName, r.path); err != nil {
		return fmt.Errorf("[FileRepo.Replace] rename: %w", err)
	}
	return nil
}

// Remove deletes the document
func (r *FileRepo) Remove(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := os.Remove(r.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("[FileRepo.Remove] %w", err)
	}
	return nil
}

// Path returns the document location
func (r *FileRepo) Path() string {
	return r.path
}

func (r *FileRepo) seal(plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(r.key)
	if err != nil {
		return nil, fmt.Errorf("creating XChaCha20-Poly1305 cipher: %w", err)
	}

	var nonce [chacha20poly1305.NonceSizeX]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, fmt.Errorf("generating random nonce: %w", err)
	}

	out := make([]byte, 1+chacha20poly1305.NonceSizeX, 1+chacha20poly1305.NonceSizeX+len(plaintext)+aead.Overhead())
	out[0] = fileFormatVersion
	copy(out[1:], nonce[:])
	return aead.Seal(out, nonce[:], plaintext, []byte{fileFormatVersion}), nil
}

func (r *FileRepo) open(blob []byte) ([]byte, error) {
	if len(blob) < 1+chacha20poly1305.NonceSizeX+chacha20poly1305.Overhead {
		return nil, fmt.Errorf("encrypted document is %d bytes, too short", len(blob))
	}
	if blob[0] != fileFormatVersion {
		return nil, fmt.Errorf("encrypted document version %d is not supported", blob[0])
	}

	aead, err := chacha20poly1305.NewX(r.key)
	if err != nil {
		return nil, fmt.Errorf("creating XChaCha20-Poly1305 cipher: %w", err)
	}

	nonce := blob[1 : 1+chacha20poly1305.NonceSizeX]
	plaintext, err := aead.Open(nil, nonce, blob[1+chacha20poly1305.NonceSizeX:], blob[:1])
	if err != nil {
		return nil, fmt.Errorf("decryption failed (wrong key or tampered data): %w", err)
	}
	return plaintext, nil
}
