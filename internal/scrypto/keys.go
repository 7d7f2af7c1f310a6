package scrypto

import (
	"runtime"

	"github.com/faanross/simulacra_img/internal/spec"
)

// SecureMessage contains all cryptographic components
type SecureMessage struct {
	Salt         []byte
	IVCiphertext []byte
	AuthTag      []byte // empty unless the container is authenticated
	OriginalSize int
}

// ContainerBody returns IV || ciphertext [|| tag], the part of the
// container that follows the salt.
func (m *SecureMessage) ContainerBody() []byte {
	out := make([]byte, 0, len(m.IVCiphertext)+len(m.AuthTag))
	out = append(out, m.IVCiphertext...)
	return append(out, m.AuthTag...)
}

// KeySet holds the keys derived for one container.
type KeySet struct {
	Encryption []byte
	MAC        []byte // nil unless authenticate was requested
}

// DeriveKeys runs PBKDF2 once and splits the output into an encryption key
// and, when authenticate is set, an independent MAC key.
func DeriveKeys(password, salt []byte, iterations int, authenticate bool) (*KeySet, error) {
	length := spec.KEY_SIZE
	if authenticate {
		length += spec.KEY_SIZE
	}
	raw, err := DeriveKey(password, salt, iterations, length)
	if err != nil {
		return nil, err
	}
	ks := &KeySet{Encryption: raw[:spec.KEY_SIZE]}
	if authenticate {
		ks.MAC = raw[spec.KEY_SIZE:]
	}
	return ks, nil
}

// PermutationKey returns the seed material for bit placement. By default this
// is the raw password; hardened mode stretches it with PBKDF2 under
// spec.PERMUTATION_CONTEXT.
func PermutationKey(password []byte, hardened bool, iterations int) ([]byte, error) {
	if !hardened {
		return password, nil
	}
	return DeriveKey(password, []byte(spec.PERMUTATION_CONTEXT), iterations, spec.KEY_SIZE)
}

// Wipe zeroes b in place.
func Wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
	runtime.KeepAlive(b)
}
