package radcodec

import (
	"fmt"

	"github.com/npax/radius/raddict"
)

// concatChunkSize is the maximum size of one wire fragment of a Concat
// attribute. The reference library splits at 240 bytes to "play on the safe
// side" of the 255-byte attribute length limit once tag/salt/with-len
// framing is added on top.
const concatChunkSize = 240

func padTo16(b []byte) []byte {
	pad := (16 - len(b)%16) % 16
	out := make([]byte, len(b)+pad)
	copy(out, b)
	return out
}

func stripTrailingZeros(b []byte) []byte {
	end := len(b)
	for end > 0 && b[end-1] == 0 {
		end--
	}
	return b[:end]
}

// encodeScalarAttribute serializes one non-VendorSpecific attribute value
// (already the raw bytes of whichever DataType it is, and already chunked
// if Concat) into a single wire attribute: [code][len][tag?][salt?][value].
func encodeScalarAttribute(d *raddict.AttributeDescriptor, raw []byte, tag byte, secret string, ra [16]byte) ([]byte, error) {
	value := append([]byte{}, raw...)

	if d.Tagged && d.Type == raddict.TypeInteger && !d.Encrypted {
		if len(value) == 4 {
			value[0] = tag
		}
	}

	if d.WithLen {
		if len(value) > 255 {
			return nil, fmt.Errorf("%w: %s: with-len value too long (%d bytes)", ErrInvalidValue, d.Name, len(value))
		}
		value = append([]byte{byte(len(value))}, value...)
	}

	var salt [2]byte
	if d.Salted {
		salt = BuildRandomSalt()
	}

	if d.Encrypted {
		var saltBytes []byte
		if d.Salted {
			saltBytes = salt[:]
		}
		padded := padTo16(value)
		if len(padded) > 128 {
			return nil, fmt.Errorf("%w: %s: hidden value exceeds 128 bytes", ErrInvalidValue, d.Name)
		}
		value = hidePassword(padded, secret, ra, saltBytes)
	}

	var header []byte
	if d.Tagged && !(d.Type == raddict.TypeInteger && !d.Encrypted) {
		header = append(header, tag)
	}
	if d.Salted {
		header = append(header, salt[:]...)
	}

	full := append(header, value...)
	if len(full)+2 > 255 {
		return nil, fmt.Errorf("%w: %s: encoded attribute exceeds 255 bytes", ErrInvalidValue, d.Name)
	}
	out := make([]byte, 2, 2+len(full))
	out[0] = d.Code
	out[1] = byte(2 + len(full))
	return append(out, full...), nil
}

// decodeScalarFraming reverses encodeScalarAttribute, given the wire value
// bytes (attribute payload after [code][len]), and returns the tag and the
// plain, unwrapped value bytes.
func decodeScalarFraming(d *raddict.AttributeDescriptor, wireValue []byte, secret string, ra [16]byte) (tag byte, value []byte, err error) {
	value = wireValue

	if d.Encrypted && secret == "" {
		// No secret to un-hide with: keep the wire value, still hidden.
		return 0, append([]byte{}, wireValue...), nil
	}

	integerTagged := d.Tagged && d.Type == raddict.TypeInteger && !d.Encrypted
	if d.Tagged && !integerTagged {
		if len(value) < 1 {
			return 0, nil, fmt.Errorf("%w: %s: missing tag byte", ErrMalformedAttribute, d.Name)
		}
		tag = value[0]
		value = value[1:]
	}

	var salt []byte
	if d.Salted {
		if len(value) < 2 {
			return 0, nil, fmt.Errorf("%w: %s: missing salt", ErrMalformedAttribute, d.Name)
		}
		salt = value[:2]
		value = value[2:]
	}

	if d.Encrypted {
		value = unhidePassword(value, secret, ra, salt)
	}

	if d.WithLen {
		if len(value) < 1 {
			return 0, nil, fmt.Errorf("%w: %s: missing with-len prefix", ErrMalformedAttribute, d.Name)
		}
		declared := int(value[0])
		if declared+1 > len(value) {
			return 0, nil, fmt.Errorf("%w: %s: with-len prefix overruns value", ErrMalformedAttribute, d.Name)
		}
		value = value[1 : 1+declared]
	} else if d.Encrypted {
		value = stripTrailingZeros(value)
	}

	if integerTagged {
		if len(value) != 4 {
			return 0, nil, fmt.Errorf("%w: %s: tagged integer requires 4 bytes", ErrMalformedAttribute, d.Name)
		}
		tag = value[0]
		value = append([]byte{0}, value[1:]...)
	}

	return tag, value, nil
}

// chunkBytes splits b into pieces of at most size bytes each (at least one
// piece, even for an empty slice, so a zero-length Concat value still
// produces one wire fragment).
func chunkBytes(b []byte, size int) [][]byte {
	if len(b) == 0 {
		return [][]byte{nil}
	}
	var chunks [][]byte
	for i := 0; i < len(b); i += size {
		end := i + size
		if end > len(b) {
			end = len(b)
		}
		chunks = append(chunks, b[i:end])
	}
	return chunks
}
