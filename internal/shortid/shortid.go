// Package shortid はUUIDをURLに埋め込むための短い表現に相互変換する。
// 16バイトをパディングなしのURLセーフbase64で表し、22文字になる。
package shortid

import (
	"encoding/base64"
	"fmt"

	"github.com/google/uuid"
)

// Encode はUUIDを22文字の短い表現に変換する。
func Encode(id uuid.UUID) string {
	return base64.RawURLEncoding.EncodeToString(id[:])
}

// Decode は短い表現、または通常のUUID表記をUUIDに変換する。
func Decode(s string) (uuid.UUID, error) {
	if len(s) == base64.RawURLEncoding.EncodedLen(16) {
		b, err := base64.RawURLEncoding.DecodeString(s)
		if err != nil {
			return uuid.Nil, fmt.Errorf("invalid short id %q: %w", s, err)
		}
		return uuid.FromBytes(b)
	}

	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid id %q: %w", s, err)
	}
	return id, nil
}
