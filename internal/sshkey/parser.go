// Copyright (c) 2026 Keymaster Team
// Keymaster - SSH key management system
// This source code is licensed under the MIT license found in the LICENSE file.

// Package sshkey parses and serializes OpenSSH public key lines as found in
// *.pub files and authorized_keys. Parsing a single line is strict, parsing a
// whole file is best effort.
package sshkey // import "github.com/toeirei/keymaster-hub/internal/sshkey"

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/toeirei/keymaster-hub/internal/logging"
	"github.com/toeirei/keymaster-hub/internal/model"
)

// ErrMalformedKey is returned when a line lacks a type or a key data token.
var ErrMalformedKey = errors.New("malformed public key")

var algorithmPrefixes = []string{"ssh-", "ecdsa-", "sk-ssh-", "sk-ecdsa-"}

// IsAlgorithm reports whether token looks like an OpenSSH key type.
func IsAlgorithm(token string) bool {
	for _, p := range algorithmPrefixes {
		if strings.HasPrefix(token, p) {
			return true
		}
	}
	return false
}

// IsComment reports whether line is an authorized_keys comment line.
func IsComment(line string) bool {
	return strings.HasPrefix(strings.TrimSpace(line), "#")
}

// Parse parses a single `type base64[ comment]` line. The comment is the rest
// of the line after the key data and may contain spaces. A leading options
// field (`no-pty,command="x y" ssh-ed25519 ...`) is recognised when the first
// token is not a key type but the one after it is. The returned key is
// Unowned.
func Parse(line string) (model.PublicKey, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return model.PublicKey{}, fmt.Errorf("%w: empty line", ErrMalformedKey)
	}

	var options string
	first, rest := nextField(line)
	if !IsAlgorithm(first) {
		if second, _ := cutField(rest); IsAlgorithm(second) {
			options = first
			line = rest
		}
	}

	keyType, rest := cutField(line)
	keyData, comment := cutField(rest)
	if keyType == "" || keyData == "" {
		return model.PublicKey{}, fmt.Errorf("%w: %q", ErrMalformedKey, truncate(line, 40))
	}
	return model.PublicKey{
		Type:    keyType,
		Base64:  keyData,
		Comment: comment,
		Options: options,
		Owner:   model.Unowned{},
	}, nil
}

// ParseMany parses every line of text, skipping blank and comment lines.
// Malformed lines are logged and dropped; the order of the remaining keys is
// preserved.
func ParseMany(text string) []model.PublicKey {
	var keys []model.PublicKey
	for i, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(strings.TrimSuffix(line, "\r"))
		if line == "" || IsComment(line) {
			continue
		}
		k, err := Parse(line)
		if err != nil {
			logging.Warnf("sshkey: skipping line %d: %v", i+1, err)
			continue
		}
		keys = append(keys, k)
	}
	return keys
}

// Format is the inverse of Parse.
func Format(k model.PublicKey) string {
	return k.String()
}

// cutField splits s at the first run of whitespace. The remainder keeps its
// interior spacing.
func cutField(s string) (field, rest string) {
	s = strings.TrimLeftFunc(s, unicode.IsSpace)
	i := strings.IndexFunc(s, unicode.IsSpace)
	if i < 0 {
		return s, ""
	}
	return s[:i], strings.TrimSpace(s[i:])
}

// nextField is cutField for an options field: whitespace inside double
// quotes does not end the field.
func nextField(s string) (field, rest string) {
	s = strings.TrimLeftFunc(s, unicode.IsSpace)
	inQuote, escaped := false, false
	for i, r := range s {
		switch {
		case escaped:
			escaped = false
		case r == '\\':
			escaped = true
		case r == '"':
			inQuote = !inQuote
		case unicode.IsSpace(r) && !inQuote:
			return s[:i], strings.TrimSpace(s[i:])
		}
	}
	return s, ""
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
