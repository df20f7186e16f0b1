package lobby

import (
	"math/rand"
	"strings"
)

const idAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// GenerateID returns a random room id of the given length, drawn from the
// id alphabet accepted by the server. Id generation is a caller concern:
// the engine never invents ids, a generated one goes through the same
// format validation as any other.
func GenerateID(length int) string {
	if length < 1 {
		length = 1
	} else if length > 12 {
		length = 12
	}

	var b strings.Builder
	b.Grow(length)
	for i := 0; i < length; i++ {
		b.WriteByte(idAlphabet[rand.Intn(len(idAlphabet))])
	}

	return b.String()
}
