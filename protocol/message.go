package protocol

import (
	"encoding/json"
	"errors"
	"io"

	"github.com/flashbots/batchclear/crypto"
)

// signedDomain is mixed into every signing input so request signatures
// cannot be replayed against another deployment or message type.
const signedDomain = "batchclear/signed/v1"

// Signed wraps a request with the submitting participant's signature. The
// signature covers the serialized object, the public key, and a domain tag,
// preventing both payload substitution and signer substitution. The wallet
// collaborator produces these envelopes; the engine only ever verifies.
type Signed[T any] struct {
	PublicKey crypto.PublicKey `json:"public_key"`
	Signature crypto.Signature `json:"signature"`
	Object    *T               `json:"object"`
}

func signingInput[T any](obj *T, pubkey crypto.PublicKey) ([]byte, error) {
	serialized, err := SerializeMessage(obj)
	if err != nil {
		return nil, err
	}
	input := make([]byte, 0, len(signedDomain)+len(serialized)+len(pubkey))
	input = append(input, signedDomain...)
	input = append(input, serialized...)
	input = append(input, pubkey...)
	return input, nil
}

// NewSigned creates a signed envelope around obj.
func NewSigned[T any](privkey crypto.PrivateKey, obj *T) (*Signed[T], error) {
	pubkey, err := privkey.PublicKey()
	if err != nil {
		return nil, err
	}

	input, err := signingInput(obj, pubkey)
	if err != nil {
		return nil, err
	}

	signature, err := crypto.Sign(privkey, input)
	if err != nil {
		return nil, err
	}

	return &Signed[T]{
		PublicKey: pubkey,
		Signature: signature,
		Object:    obj,
	}, nil
}

// Recover verifies the signature and returns the object together with the
// signer's public key.
func (s *Signed[T]) Recover() (*T, crypto.PublicKey, error) {
	if s.Object == nil {
		return nil, nil, errors.New("signed envelope has no object")
	}

	input, err := signingInput(s.Object, s.PublicKey)
	if err != nil {
		return nil, nil, err
	}

	if !s.Signature.Verify(s.PublicKey, input) {
		return nil, nil, errors.New("signature not valid")
	}

	return s.Object, s.PublicKey, nil
}

// UnsafeObject returns the object without signature verification.
func (s *Signed[T]) UnsafeObject() *T {
	return s.Object
}

// UnmarshalMessage deserializes a message from JSON bytes.
func UnmarshalMessage[T any](data []byte) (*T, error) {
	var msg T
	err := json.Unmarshal(data, &msg)
	return &msg, err
}

// DecodeMessage deserializes a message from a JSON reader.
func DecodeMessage[T any](reader io.Reader) (*T, error) {
	var msg T
	err := json.NewDecoder(reader).Decode(&msg)
	return &msg, err
}

// SerializeMessage serializes a message to JSON bytes.
func SerializeMessage[T any](msg *T) ([]byte, error) {
	return json.Marshal(msg)
}
