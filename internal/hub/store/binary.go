package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"

	"github.com/contracthub-dev/contracthub/internal/hub/types"
)

var (
	// ErrNoUploadGrant is returned when an operator stages chunks without a
	// matching grant.
	ErrNoUploadGrant = errors.New("no binary upload grant for caller")
	// ErrBinaryLength is returned when staged data does not fit the grant.
	ErrBinaryLength = errors.New("staged binary length does not match the grant")
	// ErrBinaryNotFound is returned when a template's binary is not staged.
	ErrBinaryNotFound = errors.New("binary not found")
)

// GrantUpload opens a binary staging slot for one operator. Only one grant
// is in flight at a time; a new grant discards any previously staged data.
func (s *Store) GrantUpload(operator types.Principal, binaryLength int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.uploadGrant = &types.UploadGrant{Operator: operator, BinaryLength: binaryLength}
	s.staged = nil
}

// UploadGrant returns the in-flight grant, if any.
func (s *Store) UploadGrant() *types.UploadGrant {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.uploadGrant == nil {
		return nil
	}
	grant := *s.uploadGrant
	return &grant
}

// AppendBinaryChunk stages the next chunk of the granted upload.
func (s *Store) AppendBinaryChunk(operator types.Principal, chunk []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.uploadGrant == nil || s.uploadGrant.Operator != operator {
		return ErrNoUploadGrant
	}
	if len(s.staged)+len(chunk) > s.uploadGrant.BinaryLength {
		return ErrBinaryLength
	}

	s.staged = append(s.staged, chunk...)
	return nil
}

// CommitBinary finishes the granted upload: the staged bytes must match the
// granted length exactly. It persists the binary under its hash, clears the
// grant and returns the hash.
func (s *Store) CommitBinary(ctx context.Context, operator types.Principal) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.uploadGrant == nil || s.uploadGrant.Operator != operator {
		return "", ErrNoUploadGrant
	}
	if len(s.staged) != s.uploadGrant.BinaryLength {
		return "", ErrBinaryLength
	}

	sum := sha256.Sum256(s.staged)
	hash := hex.EncodeToString(sum[:])

	if err := s.backend.SaveBinary(ctx, hash, s.staged); err != nil {
		return "", err
	}

	s.binaries[hash] = s.staged
	s.uploadGrant = nil
	s.staged = nil
	return hash, nil
}

// Binary returns the staged binary for a template's hash.
func (s *Store) Binary(hash string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, ok := s.binaries[hash]
	if !ok {
		return nil, ErrBinaryNotFound
	}
	return data, nil
}
