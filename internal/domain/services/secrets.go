package services

import (
	"crypto/rand"
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/blake2b"
)

// secretSize gives 32 hex characters, the width of the secret column
const secretSize = 16

// GenerateSecret derives a link secret from the linkage facts and the
// exchange time
func GenerateSecret(now time.Time, parts ...string) string {
	h, err := blake2b.New(secretSize, nil)
	if err != nil {
		// only fails for an invalid size or key
		panic(err)
	}
	h.Write([]byte(strings.Join(parts, "\x00")))
	h.Write([]byte{0})
	h.Write([]byte(strconv.FormatInt(now.Unix(), 10)))
	return hex.EncodeToString(h.Sum(nil))
}

// GeneratePassword creates the password for a freshly registered account.
// Users never see it; they authenticate through the anchor provider.
func GeneratePassword(now time.Time, parts ...string) string {
	salt := make([]byte, 16)
	_, _ = rand.Read(salt)
	return GenerateSecret(now, append(parts, hex.EncodeToString(salt))...)
}
