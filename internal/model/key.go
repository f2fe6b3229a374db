// Copyright (c) 2026 Keymaster Team
// Keymaster - SSH key management system
// This source code is licensed under the MIT license found in the LICENSE file.

package model

import (
	"fmt"
	"strings"
)

// Owner tells who a public key belongs to. The set of implementations is
// closed: HostOwner, UserOwner and Unowned.
type Owner interface {
	isOwner()
	String() string
}

// HostOwner marks a key as one of a host's own server keys.
type HostOwner struct{ HostID int }

// UserOwner marks a key as presented by a user.
type UserOwner struct{ UserID int }

// Unowned marks a key discovered on a host and awaiting assignment.
type Unowned struct{}

func (HostOwner) isOwner() {}
func (UserOwner) isOwner() {}
func (Unowned) isOwner()   {}

func (o HostOwner) String() string { return fmt.Sprintf("host:%d", o.HostID) }
func (o UserOwner) String() string { return fmt.Sprintf("user:%d", o.UserID) }
func (Unowned) String() string     { return "unowned" }

// OwnerOrUnowned returns o, or Unowned when o is nil.
func OwnerOrUnowned(o Owner) Owner {
	if o == nil {
		return Unowned{}
	}
	return o
}

// KeyIdentity is the natural identity of a key. Comments and options do not
// take part in it.
type KeyIdentity struct {
	Type   string
	Base64 string
}

func (i KeyIdentity) String() string { return i.Type + " " + i.Base64 }

// PublicKey is an SSH public key with its owner.
type PublicKey struct {
	ID      int
	Type    string
	Base64  string
	Comment string
	// Options holds an authorized_keys options prefix such as
	// `no-pty,command="uptime"`. Empty for plain keys.
	Options string
	Owner   Owner
}

// Identity returns the (type, base64) identity of the key.
func (k PublicKey) Identity() KeyIdentity {
	return KeyIdentity{Type: k.Type, Base64: k.Base64}
}

// String serializes the key as an authorized_keys line:
// `[options ]type base64[ comment]`.
func (k PublicKey) String() string {
	var b strings.Builder
	if k.Options != "" {
		b.WriteString(k.Options)
		b.WriteByte(' ')
	}
	b.WriteString(k.Type)
	b.WriteByte(' ')
	b.WriteString(k.Base64)
	if k.Comment != "" {
		b.WriteByte(' ')
		b.WriteString(k.Comment)
	}
	return b.String()
}

// IsUnowned reports whether the key still awaits assignment.
func (k PublicKey) IsUnowned() bool {
	_, ok := OwnerOrUnowned(k.Owner).(Unowned)
	return ok
}
