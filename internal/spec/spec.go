package spec

import "fmt"

// Steganography constants
const (
	HEADER_SIZE   = 4 // Big-endian uint32 container length
	BITS_PER_BYTE = 8 // Standard byte size
	MAX_CHANNELS  = 4 // RGBA
)

// Security constants
const (
	SALT_SIZE    = 16    // Salt for PBKDF2
	IV_SIZE      = 16    // AES-CBC IV size
	KEY_SIZE     = 32    // AES-256 key size
	MAC_SIZE     = 32    // HMAC-SHA256 tag (authenticated mode only)
	PBKDF2_ITERS = 10000 // Default PBKDF2 iterations

	// Fixed salt for the hardened permutation key. Must never change once
	// images exist that were embedded with it.
	PERMUTATION_CONTEXT = "simulacra_img/permutation/v1"

	// Random passphrase length (bytes, hex encoded for display)
	GENERATED_PASS_SIZE = 16
)

// Config carries the tunables of one embed or extract run. It is built once
// by the entry point and passed down by value.
type Config struct {
	// Iterations is the PBKDF2 round count. Embed and extract must agree.
	Iterations int

	// Concurrent runs the payload and masking passes of an embed in two
	// goroutines instead of one after the other.
	Concurrent bool

	// Authenticate appends an HMAC-SHA256 tag to the container and verifies
	// it before decryption.
	Authenticate bool

	// HardenedPermutation seeds the bit placement from a PBKDF2-derived key
	// instead of the raw passphrase bytes.
	HardenedPermutation bool
}

// DefaultConfig matches images produced without any hardening switches.
func DefaultConfig() Config {
	return Config{
		Iterations: PBKDF2_ITERS,
	}
}

// Validate rejects configurations the pipeline cannot run with.
func (c Config) Validate() error {
	if c.Iterations < 1 {
		return fmt.Errorf("iterations must be at least 1, got %d", c.Iterations)
	}
	return nil
}
