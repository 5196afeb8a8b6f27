package radio

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/base64"
	"encoding/binary"
	"strings"
)

// DefaultKey is the well-known Meshtastic default channel key, published as
// the base64 string "1PG7OiApB1nwvP+rz05pAQ==".
var DefaultKey = []byte{0xd4, 0xf1, 0xbb, 0x3a, 0x20, 0x29, 0x07, 0x59, 0xf0, 0xbc, 0xff, 0xab, 0xcf, 0x4e, 0x69, 0x01}

// ParseKey decodes a channel key from its published base64 form. Meshtastic
// channel keys are distributed as standard base64 but some exports use the
// URL-safe alphabet without padding, so both are tried.
func ParseKey(key string) ([]byte, error) {
	if b, err := base64.StdEncoding.DecodeString(key); err == nil {
		return b, nil
	}
	return base64.URLEncoding.DecodeString(padBase64(key))
}

func padBase64(s string) string {
	if n := len(s) % 4; n != 0 {
		s += strings.Repeat("=", 4-n)
	}
	return s
}

// decrypt runs AES-128-CTR over the encrypted payload using the given key.
// The nonce is the 16-byte concatenation of the little-endian packet id and
// the little-endian sender ("from") node id.
func decrypt(encrypted, key []byte, packetID, from uint32) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	var nonce [16]byte
	binary.LittleEndian.PutUint64(nonce[0:8], uint64(packetID))
	binary.LittleEndian.PutUint64(nonce[8:16], uint64(from))

	stream := cipher.NewCTR(block, nonce[:])
	out := make([]byte, len(encrypted))
	stream.XORKeyStream(out, encrypted)
	return out, nil
}
