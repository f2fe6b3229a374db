// Copyright (c) 2026 Keymaster Team
// Keymaster - SSH key management system
// This source code is licensed under the MIT license found in the LICENSE file.

package sshkey

import (
	"encoding/base64"
	"fmt"

	"github.com/toeirei/keymaster-hub/internal/model"
	"golang.org/x/crypto/ssh"
)

// FromSSH converts a wire-format key into a model key.
func FromSSH(pub ssh.PublicKey, comment string) model.PublicKey {
	return model.PublicKey{
		Type:    pub.Type(),
		Base64:  base64.StdEncoding.EncodeToString(pub.Marshal()),
		Comment: comment,
		Owner:   model.Unowned{},
	}
}

// ToSSH decodes the key material of k.
func ToSSH(k model.PublicKey) (ssh.PublicKey, error) {
	raw, err := base64.StdEncoding.DecodeString(k.Base64)
	if err != nil {
		return nil, fmt.Errorf("%w: key data is not base64: %v", ErrMalformedKey, err)
	}
	pub, err := ssh.ParsePublicKey(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedKey, err)
	}
	return pub, nil
}

// Fingerprint returns the SHA256 fingerprint of k in the OpenSSH format
// ("SHA256:...").
func Fingerprint(k model.PublicKey) (string, error) {
	pub, err := ToSSH(k)
	if err != nil {
		return "", err
	}
	return ssh.FingerprintSHA256(pub), nil
}

// CheckHostKeyAlgorithm returns a warning for host keys using weak or
// deprecated algorithms, or "" when the algorithm is fine.
func CheckHostKeyAlgorithm(pub ssh.PublicKey) string {
	switch pub.Type() {
	case ssh.KeyAlgoDSA:
		return "WARNING: the host presented a DSA key. DSA is deprecated and insecure."
	case ssh.KeyAlgoRSA:
		if ck, ok := pub.(ssh.CryptoPublicKey); ok {
			if rk, ok := ck.CryptoPublicKey().(interface{ Size() int }); ok && rk.Size()*8 < 2048 {
				return fmt.Sprintf("WARNING: the host presented a %d-bit RSA key. Use at least 2048 bits.", rk.Size()*8)
			}
		}
		return "WARNING: the host presented an ssh-rsa key. ssh-rsa signatures use SHA-1; prefer an ed25519 host key."
	}
	return ""
}
