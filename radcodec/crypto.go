package radcodec

import (
	"crypto/hmac"
	"crypto/md5"
	"crypto/subtle"
	"math/rand"
	"time"
)

func init() {
	// Matches the reference library's BuildRandomAuthenticator/GetAuthenticator
	// idiom (core/common.go, radiuscodec/idGenerator.go): math/rand seeded once
	// from the wall clock, not a CSPRNG. The specification only requires a
	// "freshly generated" Request Authenticator, not an unpredictable one.
	rand.Seed(time.Now().UnixNano())
}

// BuildRandomAuthenticator returns a fresh 16-byte Request Authenticator.
func BuildRandomAuthenticator() [16]byte {
	var a [16]byte
	rand.Read(a[:])
	return a
}

// BuildRandomSalt returns a fresh 2-byte salt for the salted attribute
// encoding (draft-ietf-radius-saltencrypt).
func BuildRandomSalt() [2]byte {
	var s [2]byte
	rand.Read(s[:])
	// RFC: the most significant bit of the salt must be set.
	s[0] |= 0x80
	return s
}

// xorInPlace XORs src into dst, byte by byte, for min(len(dst), len(src)).
func xorInPlace(dst, src []byte) {
	for i := range dst {
		if i >= len(src) {
			break
		}
		dst[i] ^= src[i]
	}
}

// hidePassword implements the RFC 2865 §5.2 User-Password hiding algorithm,
// with the optional draft-ietf-radius-saltencrypt salt extension. plaintext
// is zero-padded to a multiple of 16 bytes (up to 128) by the caller's
// dictionary-driven encoder; this function operates on the already-padded
// buffer and returns a same-length ciphertext.
func hidePassword(plaintext []byte, secret string, requestAuthenticator [16]byte, salt []byte) []byte {
	out := make([]byte, len(plaintext))
	seed := make([]byte, 0, len(secret)+16+len(salt))
	seed = append(seed, secret...)
	seed = append(seed, requestAuthenticator[:]...)
	seed = append(seed, salt...)

	prev := seed
	for i := 0; i < len(plaintext); i += 16 {
		b := md5.Sum(prev)
		end := i + 16
		if end > len(plaintext) {
			end = len(plaintext)
		}
		block := make([]byte, end-i)
		copy(block, plaintext[i:end])
		xorInPlace(block, b[:])
		copy(out[i:end], block)

		// c_i for the next block's seed is this block's ciphertext. Callers
		// pre-pad plaintext to a multiple of 16, so block is always full
		// except possibly the last iteration, which has no successor.
		next := make([]byte, 0, len(secret)+len(block))
		next = append(next, secret...)
		next = append(next, block...)
		prev = next
	}
	return out
}

// unhidePassword reverses hidePassword. The caller is responsible for
// stripping trailing zero padding from the result (RFC 2865 does not encode
// the original plaintext length).
func unhidePassword(ciphertext []byte, secret string, requestAuthenticator [16]byte, salt []byte) []byte {
	out := make([]byte, len(ciphertext))
	seed := make([]byte, 0, len(secret)+16+len(salt))
	seed = append(seed, secret...)
	seed = append(seed, requestAuthenticator[:]...)
	seed = append(seed, salt...)

	prev := seed
	for i := 0; i < len(ciphertext); i += 16 {
		b := md5.Sum(prev)
		end := i + 16
		if end > len(ciphertext) {
			end = len(ciphertext)
		}
		block := make([]byte, end-i)
		copy(block, ciphertext[i:end])

		next := make([]byte, len(secret))
		copy(next, secret)
		next = append(next, block...)

		xorInPlace(block, b[:])
		copy(out[i:end], block)

		prev = next
	}
	return out
}

// computeAuthenticator computes MD5(header ‖ authenticatorSeed ‖ attributes ‖ secret),
// the shared construction behind both the Accounting-Request authenticator
// and the Access-Accept/Reject/Challenge/Accounting-Response authenticator
// (they differ only in which 16 bytes are used as authenticatorSeed).
func computeAuthenticator(code, identifier byte, length uint16, authenticatorSeed [16]byte, attributes []byte, secret string) [16]byte {
	h := md5.New()
	h.Write([]byte{code, identifier, byte(length >> 8), byte(length)})
	h.Write(authenticatorSeed[:])
	h.Write(attributes)
	h.Write([]byte(secret))
	var out [16]byte
	copy(out[:], h.Sum(nil))
	return out
}

// constantTimeEqual16 compares two 16-byte authenticators in constant time,
// per the specification's explicit "compare constant-time" invariant (§4.1).
// The reference library's own ValidateResponseAuthenticator/
// ValidateRequestAuthenticator use a plain byte-by-byte loop instead; this is
// a deliberate, spec-mandated deviation (see DESIGN.md).
func constantTimeEqual16(a, b [16]byte) bool {
	return subtle.ConstantTimeCompare(a[:], b[:]) == 1
}

// hmacMD5 computes HMAC-MD5(key, data), used for the Message-Authenticator
// attribute (RFC 3579 §3.2).
func hmacMD5(key, data []byte) []byte {
	mac := hmac.New(md5.New, key)
	mac.Write(data)
	return mac.Sum(nil)
}
