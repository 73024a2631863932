// Package did implements the did:key encoding used for every actor identity.
//
// A DID self-encodes its Ed25519 public key:
//
//	did:key:z<base58btc(0xed01 || public_key)>
//
// Decoding a DID therefore recovers exactly the key that created it, without
// any registry lookup. The base58btc alphabet contains no visually confusable
// characters (no 0, O, I, l).
package did

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"strings"

	"beantrace/pkg/domain"
	dErrors "beantrace/pkg/domain-errors"
)

const (
	prefix = "did:key:"

	// Ed25519 multicodec (0xed01), varint-encoded as two bytes.
	multicodecByte0 = 0xed
	multicodecByte1 = 0x01
)

// Generate creates a fresh Ed25519 keypair and the DID derived from its
// public key. The private key is returned exactly once, to be handed to the
// vault; it is never persisted in cleartext.
func Generate() (domain.DID, ed25519.PublicKey, ed25519.PrivateKey, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return "", nil, nil, dErrors.Wrap(err, dErrors.CodeInternal, "generate keypair")
	}
	d, err := FromPublicKey(pub)
	if err != nil {
		return "", nil, nil, err
	}
	return d, pub, priv, nil
}

// FromPublicKey derives the DID for a public key. Deterministic: the same key
// always yields the same DID.
func FromPublicKey(pub ed25519.PublicKey) (domain.DID, error) {
	if len(pub) != ed25519.PublicKeySize {
		return "", dErrors.New(dErrors.CodeEncoding,
			fmt.Sprintf("public key must be %d bytes, got %d", ed25519.PublicKeySize, len(pub)))
	}
	prefixed := make([]byte, 2+ed25519.PublicKeySize)
	prefixed[0] = multicodecByte0
	prefixed[1] = multicodecByte1
	copy(prefixed[2:], pub)
	return domain.DID(prefix + "z" + base58Encode(prefixed)), nil
}

// Decode recovers the public key a DID encodes.
func Decode(d domain.DID) (ed25519.PublicKey, error) {
	s := string(d)
	if !strings.HasPrefix(s, prefix) {
		return nil, dErrors.New(dErrors.CodeMalformedDID, "not a did:key identifier")
	}
	encoded := s[len(prefix):]
	if encoded == "" || encoded[0] != 'z' {
		return nil, dErrors.New(dErrors.CodeMalformedDID, "expected 'z' (base58btc) multibase prefix")
	}
	decoded, err := base58Decode(encoded[1:])
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeMalformedDID, "invalid base58btc encoding")
	}
	if len(decoded) < 2 || decoded[0] != multicodecByte0 || decoded[1] != multicodecByte1 {
		return nil, dErrors.New(dErrors.CodeMalformedDID, "expected Ed25519 multicodec (0xed01)")
	}
	pub := decoded[2:]
	if len(pub) != ed25519.PublicKeySize {
		return nil, dErrors.New(dErrors.CodeMalformedDID,
			fmt.Sprintf("public key must be %d bytes, got %d", ed25519.PublicKeySize, len(pub)))
	}
	return ed25519.PublicKey(pub), nil
}

// base58Alphabet is the Bitcoin Base58 alphabet.
const base58Alphabet = "123456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz"

var base58Index = func() [256]int8 {
	var idx [256]int8
	for i := range idx {
		idx[i] = -1
	}
	for i := 0; i < len(base58Alphabet); i++ {
		idx[base58Alphabet[i]] = int8(i)
	}
	return idx
}()

func base58Encode(input []byte) string {
	if len(input) == 0 {
		return ""
	}

	leadingZeros := 0
	for _, b := range input {
		if b != 0 {
			break
		}
		leadingZeros++
	}

	size := len(input)*138/100 + 1
	buf := make([]byte, size)

	var length int
	for _, b := range input {
		carry := int(b)
		for i := 0; i < length || carry != 0; i++ {
			if i < length {
				carry += 256 * int(buf[i])
			}
			buf[i] = byte(carry % 58)
			carry /= 58
			if i >= length {
				length = i + 1
			}
		}
	}

	result := make([]byte, leadingZeros+length)
	for i := 0; i < leadingZeros; i++ {
		result[i] = '1'
	}
	for i := 0; i < length; i++ {
		result[leadingZeros+i] = base58Alphabet[buf[length-1-i]]
	}
	return string(result)
}

func base58Decode(input string) ([]byte, error) {
	if len(input) == 0 {
		return nil, nil
	}

	leadingOnes := 0
	for i := 0; i < len(input); i++ {
		if input[i] != '1' {
			break
		}
		leadingOnes++
	}

	size := len(input)*733/1000 + 1
	buf := make([]byte, size)

	var length int
	for i := 0; i < len(input); i++ {
		val := base58Index[input[i]]
		if val < 0 {
			return nil, fmt.Errorf("invalid base58 character: %c", input[i])
		}

		carry := int(val)
		for j := 0; j < length || carry != 0; j++ {
			if j < length {
				carry += 58 * int(buf[j])
			}
			buf[j] = byte(carry % 256)
			carry /= 256
			if j >= length {
				length = j + 1
			}
		}
	}

	result := make([]byte, leadingOnes+length)
	for i := 0; i < length; i++ {
		result[leadingOnes+i] = buf[length-1-i]
	}
	return result, nil
}
