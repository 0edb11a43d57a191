package utils

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
)

// FormatToken renders a per-doctor token number as the label printed on
// the patient's slip, e.g. 7 -> "A007". Numbers past 999 keep growing
// digits rather than wrapping.
func FormatToken(tokenNumber int) string {
	return fmt.Sprintf("A%03d", tokenNumber)
}

// GenerateCode returns an uppercase hex code of n random bytes, used for
// waiting-room display board access codes.
func GenerateCode(n int) (string, error) {
	byt := make([]byte, n)
	if _, err := rand.Read(byt); err != nil {
		return "", err
	}
	return strings.ToUpper(hex.EncodeToString(byt)), nil
}
