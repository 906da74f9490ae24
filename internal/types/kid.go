// Package types defines the metadata model of the platform: custom record
// types, their fields and data types, record identifiers and in-memory
// record instances.
package types

import (
	"fmt"
	"strings"
)

// Key prefixes of built-in record kinds. Every identifier starts with a
// three-character prefix that encodes what kind of row it points at.
const (
	EnvPrefix                 = "001"
	TypePrefix                = "002"
	FieldPrefix               = "003"
	UserPrefix                = "004"
	ProfilePrefix             = "006"
	CommentPrefix             = "00l"
	FieldHistoryPrefix        = "00m"
	TypeTriggerPrefix         = "00n"
	UserRecordSharingPrefix   = "00o"
	TextLabelPrefix           = "00s"
	ValidationRulePrefix      = "00t"
	UserGroupPrefix           = "010"
	UserGroupAssignmentPrefix = "011"
	GroupRecordSharingPrefix  = "012"
)

// KIDLength is the fixed length of every record identifier.
const KIDLength = 13

const kidDigits = "0123456789abcdefghijklmnopqrstuvwxyz"

// KID is a typed record identifier: a 3-character key prefix followed by a
// 10-character base-36 encoded sequence number.
type KID string

// NilKID is the zero value of KID, meaning "no identifier".
const NilKID KID = ""

// NewKID builds an identifier from a key prefix and a sequence number.
func NewKID(prefix string, seq int64) (KID, error) {
	if len(prefix) != 3 {
		return NilKID, fmt.Errorf("invalid key prefix %q: must have length 3", prefix)
	}
	if seq < 0 {
		return NilKID, fmt.Errorf("invalid sequence value %d for KID", seq)
	}
	encoded := encodeBase36(seq)
	if len(encoded) > KIDLength-3 {
		return NilKID, fmt.Errorf("sequence value %d exceeds KID capacity", seq)
	}
	return KID(prefix + strings.Repeat("0", KIDLength-3-len(encoded)) + encoded), nil
}

// ParseKID validates a string representation of an identifier.
func ParseKID(s string) (KID, error) {
	if len(s) != KIDLength {
		return NilKID, fmt.Errorf("invalid KID %q: has length %d instead of expected %d", s, len(s), KIDLength)
	}
	for _, r := range s {
		if !strings.ContainsRune(kidDigits, r) {
			return NilKID, fmt.Errorf("invalid KID %q: illegal character %q", s, r)
		}
	}
	return KID(s), nil
}

// Prefix returns the 3-character key prefix of the identifier.
func (k KID) Prefix() string {
	if len(k) < 3 {
		return ""
	}
	return string(k[:3])
}

// IsNil reports whether the identifier is unset.
func (k KID) IsNil() bool {
	return k == NilKID
}

func (k KID) String() string {
	return string(k)
}

func encodeBase36(n int64) string {
	if n == 0 {
		return "0"
	}
	var buf [16]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = kidDigits[n%36]
		n /= 36
	}
	return string(buf[i:])
}
