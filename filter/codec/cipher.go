package codec

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"sync"

	"golang.org/x/crypto/pbkdf2"

	"pgbr/errkit"
	"pgbr/filter"
	"pgbr/iobuf"
	"pgbr/pack"
	"pgbr/stringid"
)

const (
	cipherSaltSize    = 16
	cipherNonceSize   = 12
	cipherKeySize     = 32 // AES-256
	cipherKDFIters    = 200000
	cipherSegmentSize = 64 * 1024
	cipherFrameHeader = 5 // 1 byte flag + 4 byte big-endian ciphertext length

	cipherFlagContinue byte = 0
	cipherFlagFinal    byte = 1
)

func deriveKey(passphrase string, salt []byte) []byte {
	return pbkdf2.Key([]byte(passphrase), salt, cipherKDFIters, cipherKeySize, sha256.New)
}

// makeNonce derives a per-segment nonce by XORing a segment counter into
// the low 8 bytes of the stream's random nonce base, so no nonce is ever
// reused for a given key without buffering more than one segment at a time.
func makeNonce(base []byte, counter uint64) []byte {
	nonce := make([]byte, len(base))
	copy(nonce, base)
	for i := 0; i < 8; i++ {
		nonce[len(nonce)-1-i] ^= byte(counter >> (8 * i))
	}
	return nonce
}

// CipherEncrypt encrypts its input with AES-256-GCM in fixed-size segments,
// a passphrase derived key (PBKDF2-HMAC-SHA256), and a random salt and
// nonce base per stream. GCM authenticates a whole sealed buffer at once,
// so it cannot produce output for arbitrary byte chunks the way a
// compression codec can; segmenting bounds memory to cipherSegmentSize
// instead of the whole file while keeping every segment independently
// authenticated (including a flag byte marking the final segment, itself
// covered by the seal, so truncation can't be mistaken for a clean end).
// The wire format is salt || nonceBase || segment*, each segment being
// flag || length || ciphertext+tag.
type CipherEncrypt struct {
	id          stringid.StringId
	passphrase  string
	initialized bool
	gcm         cipher.AEAD
	nonceBase   []byte
	counter     uint64
	pending     []byte
	out         *sink
	closeOnce   sync.Once
}

func NewCipherEncrypt(passphrase string) *CipherEncrypt {
	id, _ := stringid.Encode6("cphr-e")
	return &CipherEncrypt{id: id, passphrase: passphrase}
}

func (f *CipherEncrypt) ensureInit() *errkit.Error {
	if f.initialized {
		return nil
	}
	f.initialized = true
	f.out = newSink()

	salt := make([]byte, cipherSaltSize)
	if _, rerr := rand.Read(salt); rerr != nil {
		return errkit.Wrap(errkit.KindCrypto, rerr, "generating cipher salt")
	}
	nonceBase := make([]byte, cipherNonceSize)
	if _, rerr := rand.Read(nonceBase); rerr != nil {
		return errkit.Wrap(errkit.KindCrypto, rerr, "generating cipher nonce")
	}

	block, berr := aes.NewCipher(deriveKey(f.passphrase, salt))
	if berr != nil {
		return errkit.Wrap(errkit.KindCrypto, berr, "initializing aes cipher")
	}
	gcm, gerr := cipher.NewGCMWithNonceSize(block, cipherNonceSize)
	if gerr != nil {
		return errkit.Wrap(errkit.KindCrypto, gerr, "initializing gcm mode")
	}
	f.gcm = gcm
	f.nonceBase = nonceBase

	f.out.Write(salt)
	f.out.Write(nonceBase)
	return nil
}

func (f *CipherEncrypt) sealSegment(plain []byte, final bool) {
	flag := cipherFlagContinue
	if final {
		flag = cipherFlagFinal
	}
	nonce := makeNonce(f.nonceBase, f.counter)
	ciphertext := f.gcm.Seal(nil, nonce, plain, []byte{flag})

	frame := make([]byte, cipherFrameHeader+len(ciphertext))
	frame[0] = flag
	binary.BigEndian.PutUint32(frame[1:5], uint32(len(ciphertext)))
	copy(frame[cipherFrameHeader:], ciphertext)
	f.out.Write(frame)
	f.counter++
}

func (f *CipherEncrypt) ProcessInOut(in []byte, out *iobuf.Buffer) (int, bool, bool, *errkit.Error) {
	if err := f.ensureInit(); err != nil {
		return 0, false, true, err
	}

	consumed := 0
	if in != nil {
		f.pending = append(f.pending, in...)
		consumed = len(in)
		for len(f.pending) >= cipherSegmentSize {
			f.sealSegment(f.pending[:cipherSegmentSize], false)
			f.pending = f.pending[cipherSegmentSize:]
		}
	} else {
		f.closeOnce.Do(func() {
			f.sealSegment(f.pending, true)
			f.pending = nil
			f.out.finish()
		})
	}

	complete, serr := f.out.drain(out)
	if serr != nil {
		return consumed, false, true, serr
	}
	return consumed, false, complete, nil
}

func (f *CipherEncrypt) Id() stringid.StringId           { return f.id }
func (f *CipherEncrypt) Capabilities() filter.Capability { return filter.CapInOut | filter.CapDone }
func (f *CipherEncrypt) ProcessIn([]byte) *errkit.Error  { return nil }
func (f *CipherEncrypt) Result() *pack.Pack              { return nil }
func (f *CipherEncrypt) Close() *errkit.Error            { return nil }

// CipherDecrypt reverses CipherEncrypt, authenticating and decrypting one
// segment at a time as enough bytes arrive. A wrong passphrase or corrupted
// ciphertext fails GCM authentication on the segment it lands in and
// surfaces as a KindCipher error; a stream that ends before its final
// segment, or carries bytes after it, is a KindFormat error.
type CipherDecrypt struct {
	id         stringid.StringId
	passphrase string
	gcm        cipher.AEAD
	nonceBase  []byte
	counter    uint64
	pending    []byte
	sawFinal   bool
	out        *sink
}

func NewCipherDecrypt(passphrase string) *CipherDecrypt {
	id, _ := stringid.Encode6("cphr-d")
	return &CipherDecrypt{id: id, passphrase: passphrase, out: newSink()}
}

// parse consumes as many complete header/segment frames as f.pending holds,
// writing decrypted plaintext to f.out as each segment authenticates.
func (f *CipherDecrypt) parse() *errkit.Error {
	for {
		if f.sawFinal {
			if len(f.pending) > 0 {
				return errkit.New(errkit.KindFormat, "trailing bytes after encrypted stream end")
			}
			return nil
		}
		if f.gcm == nil {
			if len(f.pending) < cipherSaltSize+cipherNonceSize {
				return nil
			}
			salt := f.pending[:cipherSaltSize]
			f.nonceBase = append([]byte(nil), f.pending[cipherSaltSize:cipherSaltSize+cipherNonceSize]...)
			f.pending = f.pending[cipherSaltSize+cipherNonceSize:]

			block, berr := aes.NewCipher(deriveKey(f.passphrase, salt))
			if berr != nil {
				return errkit.Wrap(errkit.KindCrypto, berr, "initializing aes cipher")
			}
			gcm, gerr := cipher.NewGCMWithNonceSize(block, cipherNonceSize)
			if gerr != nil {
				return errkit.Wrap(errkit.KindCrypto, gerr, "initializing gcm mode")
			}
			f.gcm = gcm
			continue
		}

		if len(f.pending) < cipherFrameHeader {
			return nil
		}
		flag := f.pending[0]
		length := binary.BigEndian.Uint32(f.pending[1:cipherFrameHeader])
		if uint32(len(f.pending)-cipherFrameHeader) < length {
			return nil
		}
		ciphertext := f.pending[cipherFrameHeader : cipherFrameHeader+length]

		nonce := makeNonce(f.nonceBase, f.counter)
		plain, operr := f.gcm.Open(nil, nonce, ciphertext, []byte{flag})
		if operr != nil {
			return errkit.Wrap(errkit.KindCipher, operr, "authenticating ciphertext segment")
		}
		f.out.Write(plain)
		f.counter++
		f.pending = f.pending[cipherFrameHeader+length:]

		if flag == cipherFlagFinal {
			f.sawFinal = true
			if len(f.pending) > 0 {
				return errkit.New(errkit.KindFormat, "trailing bytes after encrypted stream end")
			}
			return nil
		}
	}
}

func (f *CipherDecrypt) ProcessInOut(in []byte, out *iobuf.Buffer) (int, bool, bool, *errkit.Error) {
	if in != nil {
		f.pending = append(f.pending, in...)
		consumed := len(in)
		if err := f.parse(); err != nil {
			f.out.fail(err)
			_, _ = f.out.drain(out)
			return consumed, false, true, err
		}
		complete, serr := f.out.drain(out)
		if serr != nil {
			return consumed, false, true, serr
		}
		return consumed, false, complete, nil
	}

	if !f.sawFinal {
		err := errkit.New(errkit.KindFormat, "unexpected eof in encrypted data")
		f.out.fail(err)
		return 0, false, true, err
	}
	f.out.finish()
	complete, serr := f.out.drain(out)
	if serr != nil {
		return 0, false, true, serr
	}
	return 0, false, complete, nil
}

func (f *CipherDecrypt) Id() stringid.StringId           { return f.id }
func (f *CipherDecrypt) Capabilities() filter.Capability { return filter.CapInOut | filter.CapDone }
func (f *CipherDecrypt) ProcessIn([]byte) *errkit.Error  { return nil }
func (f *CipherDecrypt) Result() *pack.Pack              { return nil }
func (f *CipherDecrypt) Close() *errkit.Error            { return nil }
