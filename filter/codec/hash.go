package codec

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"hash"

	"pgbr/errkit"
	"pgbr/filter"
	"pgbr/iobuf"
	"pgbr/pack"
	"pgbr/stringid"
)

// CryptoHash is a CapIn observer filter that runs bytes through a
// cryptographic digest (md5, sha1, sha256) without altering the stream. Its
// Result Pack carries the raw digest in a bin field, per spec.md §4.5.
type CryptoHash struct {
	id   stringid.StringId
	h    hash.Hash
	done bool
}

// NewCryptoHash builds a filter for one of "md5", "sha1", "sha256".
func NewCryptoHash(algo string) (*CryptoHash, *errkit.Error) {
	var h hash.Hash
	switch algo {
	case "md5":
		h = md5.New()
	case "sha1":
		h = sha1.New()
	case "sha256":
		h = sha256.New()
	default:
		return nil, errkit.New(errkit.KindOptionInvalid, "unknown hash algorithm %q", algo)
	}
	id, idErr := stringid.Encode6(algo)
	if idErr != nil {
		return nil, errkit.Wrap(errkit.KindAssert, idErr, "encoding hash filter id")
	}
	return &CryptoHash{id: id, h: h}, nil
}

func (f *CryptoHash) Id() stringid.StringId           { return f.id }
func (f *CryptoHash) Capabilities() filter.Capability { return filter.CapIn | filter.CapResult }

func (f *CryptoHash) ProcessIn(in []byte) *errkit.Error {
	f.h.Write(in)
	return nil
}

func (f *CryptoHash) ProcessInOut(in []byte, out *iobuf.Buffer) (int, bool, bool, *errkit.Error) {
	return 0, false, false, nil
}

func (f *CryptoHash) Result() *pack.Pack {
	return pack.New().AddBin(1, f.h.Sum(nil))
}

func (f *CryptoHash) Close() *errkit.Error { return nil }
