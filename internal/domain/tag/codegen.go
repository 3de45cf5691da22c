package tag

import (
	"encoding/base32"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

const (
	DefaultCodeLength = 10
	MinCodeLength     = 6
	MaxCodeLength     = 26
)

var codeEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// Generator derives codes from random UUIDs.
type Generator struct {
	length int
}

// NewGenerator creates a generator for codes of the given length.
func NewGenerator(length int) (*Generator, error) {
	if length == 0 {
		length = DefaultCodeLength
	}
	if length < MinCodeLength || length > MaxCodeLength {
		return nil, fmt.Errorf("code length %d out of range [%d, %d]", length, MinCodeLength, MaxCodeLength)
	}
	return &Generator{length: length}, nil
}

// NewCode returns a fresh upper-case alphanumeric code.
func (g *Generator) NewCode() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("reading randomness: %w", err)
	}
	return codeEncoding.EncodeToString(id[:])[:g.length], nil
}

// NormalizeCode trims and upper-cases user supplied codes.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
