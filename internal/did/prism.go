package did

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/petrijr/credflow/pkg/api"
)

// Field numbers of the PRISM node protobuf messages used by long-form DIDs.
const (
	fieldAtalaCreateDID    protowire.Number = 1 // AtalaOperation.create_did
	fieldCreateDIDData     protowire.Number = 1 // CreateDIDOperation.did_data
	fieldCreationPublicKey protowire.Number = 2 // DIDCreationData.public_keys

	fieldKeyID         protowire.Number = 1 // PublicKey.id
	fieldKeyUsage      protowire.Number = 2 // PublicKey.usage
	fieldKeyEC         protowire.Number = 8 // PublicKey.ec_key_data
	fieldKeyCompressed protowire.Number = 9 // PublicKey.compressed_ec_key_data

	fieldECCurve = protowire.Number(1)
	fieldECX     = protowire.Number(2)
	fieldECY     = protowire.Number(3)
	fieldECData  = protowire.Number(2)
)

// KeyUsage mirrors the PRISM KeyUsage enum.
type KeyUsage uint64

const (
	MasterKey  KeyUsage = 1
	IssuingKey KeyUsage = 2
)

// CurveSecp256k1 is the curve name PRISM uses for secp256k1 keys.
const CurveSecp256k1 = "secp256k1"

var stateEncoding = base64.RawURLEncoding

// PublicKeyEntry is one public key of a DID creation operation.
type PublicKeyEntry struct {
	ID    string
	Usage KeyUsage
	Curve string
	// Key is the SEC1 encoding, either 33 (compressed) or 65 bytes.
	Key []byte
}

// DecodeLongForm decodes the creation operation embedded in a long-form DID
// and returns the first secp256k1 issuing key.
func DecodeLongForm(d DID) (*secp256k1.PublicKey, error) {
	if d.Form != LongForm {
		return nil, api.Errorf(api.KindConfiguration, "DID %q is not long-form", d.Raw)
	}

	raw, err := stateEncoding.DecodeString(strings.TrimRight(d.EncodedState, "="))
	if err != nil {
		return nil, api.NewError(api.KindData, "invalid long-form DID state encoding", err)
	}
	sum := sha256.Sum256(raw)
	if !strings.EqualFold(hex.EncodeToString(sum[:]), d.Hash) {
		return nil, api.Errorf(api.KindData, "long-form DID state hash mismatch")
	}

	keys, err := decodeCreateKeys(raw)
	if err != nil {
		return nil, api.NewError(api.KindData, "invalid long-form DID state", err)
	}
	for _, k := range keys {
		if k.Usage != IssuingKey || !strings.EqualFold(k.Curve, CurveSecp256k1) {
			continue
		}
		pub, err := secp256k1.ParsePubKey(k.Key)
		if err != nil {
			return nil, api.NewError(api.KindCryptographic, "invalid issuing key "+k.ID, err)
		}
		return pub, nil
	}
	return nil, api.Errorf(api.KindData, "long-form DID has no secp256k1 issuing key")
}

// NewLongFormDID builds a long-form did:prism for a creation operation that
// declares pub as both master and issuing key.
func NewLongFormDID(pub *secp256k1.PublicKey) string {
	compressed := pub.SerializeCompressed()
	var keys []byte
	keys = appendPublicKey(keys, "master0", MasterKey, compressed)
	keys = appendPublicKey(keys, "issuing0", IssuingKey, compressed)

	var data []byte
	data = protowire.AppendTag(data, fieldCreateDIDData, protowire.BytesType)
	data = protowire.AppendBytes(data, keys)

	var op []byte
	op = protowire.AppendTag(op, fieldAtalaCreateDID, protowire.BytesType)
	op = protowire.AppendBytes(op, data)

	sum := sha256.Sum256(op)
	return PrismPrefix + hex.EncodeToString(sum[:]) + ":" + stateEncoding.EncodeToString(op)
}

func appendPublicKey(b []byte, id string, usage KeyUsage, compressed []byte) []byte {
	var ec []byte
	ec = protowire.AppendTag(ec, fieldECCurve, protowire.BytesType)
	ec = protowire.AppendString(ec, CurveSecp256k1)
	ec = protowire.AppendTag(ec, fieldECData, protowire.BytesType)
	ec = protowire.AppendBytes(ec, compressed)

	var key []byte
	key = protowire.AppendTag(key, fieldKeyID, protowire.BytesType)
	key = protowire.AppendString(key, id)
	key = protowire.AppendTag(key, fieldKeyUsage, protowire.VarintType)
	key = protowire.AppendVarint(key, uint64(usage))
	key = protowire.AppendTag(key, fieldKeyCompressed, protowire.BytesType)
	key = protowire.AppendBytes(key, ec)

	b = protowire.AppendTag(b, fieldCreationPublicKey, protowire.BytesType)
	return protowire.AppendBytes(b, key)
}

func decodeCreateKeys(op []byte) ([]PublicKeyEntry, error) {
	create, err := findBytesField(op, fieldAtalaCreateDID)
	if err != nil {
		return nil, fmt.Errorf("create_did: %w", err)
	}
	if create == nil {
		return nil, fmt.Errorf("operation is not a DID creation")
	}
	data, err := findBytesField(create, fieldCreateDIDData)
	if err != nil {
		return nil, fmt.Errorf("did_data: %w", err)
	}

	var keys []PublicKeyEntry
	err = walkFields(data, func(num protowire.Number, typ protowire.Type, v []byte, _ uint64) error {
		if num != fieldCreationPublicKey || typ != protowire.BytesType {
			return nil
		}
		k, err := decodePublicKey(v)
		if err != nil {
			return err
		}
		keys = append(keys, k)
		return nil
	})
	return keys, err
}

func decodePublicKey(b []byte) (PublicKeyEntry, error) {
	var k PublicKeyEntry
	var x, y []byte
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, v []byte, n uint64) error {
		switch {
		case num == fieldKeyID && typ == protowire.BytesType:
			k.ID = string(v)
		case num == fieldKeyUsage && typ == protowire.VarintType:
			k.Usage = KeyUsage(n)
		case num == fieldKeyEC && typ == protowire.BytesType:
			return walkFields(v, func(num protowire.Number, typ protowire.Type, v []byte, _ uint64) error {
				switch num {
				case fieldECCurve:
					k.Curve = string(v)
				case fieldECX:
					x = v
				case fieldECY:
					y = v
				}
				return nil
			})
		case num == fieldKeyCompressed && typ == protowire.BytesType:
			return walkFields(v, func(num protowire.Number, typ protowire.Type, v []byte, _ uint64) error {
				switch num {
				case fieldECCurve:
					k.Curve = string(v)
				case fieldECData:
					k.Key = v
				}
				return nil
			})
		}
		return nil
	})
	if err != nil {
		return k, err
	}
	if k.Key == nil && x != nil && y != nil {
		k.Key = uncompressed(x, y)
	}
	return k, nil
}

// uncompressed builds 0x04||x||y with each coordinate left-padded to 32 bytes.
// It returns nil for oversized coordinates.
func uncompressed(x, y []byte) []byte {
	if len(x) > 32 || len(y) > 32 {
		return nil
	}
	out := make([]byte, 65)
	out[0] = 0x04
	copy(out[33-len(x):33], x)
	copy(out[65-len(y):], y)
	return out
}

func findBytesField(b []byte, want protowire.Number) ([]byte, error) {
	var found []byte
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, v []byte, _ uint64) error {
		if num == want && typ == protowire.BytesType && found == nil {
			found = v
		}
		return nil
	})
	return found, err
}

// walkFields iterates over the top-level fields of a protobuf message. Bytes
// fields are passed as v, varints as n; other wire types are skipped.
func walkFields(b []byte, fn func(num protowire.Number, typ protowire.Type, v []byte, n uint64) error) error {
	for len(b) > 0 {
		num, typ, tl := protowire.ConsumeTag(b)
		if tl < 0 {
			return protowire.ParseError(tl)
		}
		b = b[tl:]

		switch typ {
		case protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			if err := fn(num, typ, v, 0); err != nil {
				return err
			}
			b = b[n:]
		case protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			if err := fn(num, typ, nil, v); err != nil {
				return err
			}
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			b = b[n:]
		}
	}
	return nil
}
