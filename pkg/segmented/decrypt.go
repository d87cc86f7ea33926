package segmented

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/oe-mirrors/streamlink-27/pkg/media"
)

var (
	ErrInvalidPadding = errors.New("invalid padding")
	ErrKeyLength      = errors.New("invalid key length")
	ErrBlockSize      = errors.New("data is not a multiple of the block size")
)

// IV returns explicit IV of the key, or the media sequence number as
// big-endian integer in the last 8 bytes of a 16 byte block.
func IV(key *media.EncryptionKey, sequence int64) []byte {
	if key != nil && len(key.IV) == aes.BlockSize {
		return key.IV
	}

	iv := make([]byte, aes.BlockSize)
	binary.BigEndian.PutUint64(iv[8:], uint64(sequence))
	return iv
}

// Decrypt decrypts AES-128-CBC data and strips PKCS#7 padding.
func Decrypt(data, key, iv []byte) ([]byte, error) {
	block, err := newBlock(key, iv)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 || len(data)%aes.BlockSize != 0 {
		return nil, ErrBlockSize
	}

	out := make([]byte, len(data))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, data)

	pad := int(out[len(out)-1])
	if pad == 0 || pad > aes.BlockSize || pad > len(out) {
		return nil, ErrInvalidPadding
	}
	if !bytes.Equal(out[len(out)-pad:], bytes.Repeat([]byte{byte(pad)}, pad)) {
		return nil, ErrInvalidPadding
	}

	return out[:len(out)-pad], nil
}

// Encrypt pads data with PKCS#7 and encrypts it with AES-128-CBC.
func Encrypt(data, key, iv []byte) ([]byte, error) {
	block, err := newBlock(key, iv)
	if err != nil {
		return nil, err
	}

	pad := aes.BlockSize - len(data)%aes.BlockSize
	plain := make([]byte, len(data), len(data)+pad)
	copy(plain, data)
	plain = append(plain, bytes.Repeat([]byte{byte(pad)}, pad)...)

	out := make([]byte, len(plain))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, plain)
	return out, nil
}

func newBlock(key, iv []byte) (cipher.Block, error) {
	if len(key) != 16 {
		return nil, fmt.Errorf("%w: %d", ErrKeyLength, len(key))
	}
	if len(iv) != aes.BlockSize {
		return nil, fmt.Errorf("invalid iv length: %d", len(iv))
	}
	return aes.NewCipher(key)
}

// Decryptor decrypts segments with keys from the session key cache.
type Decryptor struct {
	keys *KeyCache
}

func NewDecryptor(keys *KeyCache) *Decryptor {
	return &Decryptor{keys: keys}
}

// Decrypt returns data unchanged for segments without encryption.
func (d *Decryptor) Decrypt(ctx context.Context, seg media.Segment, data []byte) ([]byte, error) {
	key := seg.Key
	if !key.Encrypted() {
		return data, nil
	}

	decryptErr := func(err error) error {
		return &media.SegmentDecryptError{Sequence: seg.Sequence, KeyURI: key.URI, Err: err}
	}

	if key.Method != media.MethodAES128 {
		return nil, decryptErr(fmt.Errorf("unsupported encryption method %s", key.Method))
	}
	if key.URI == "" {
		return nil, decryptErr(errors.New("missing key uri"))
	}

	raw, err := d.keys.Get(ctx, key.URI)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, decryptErr(fmt.Errorf("unable to fetch key: %w", err))
	}

	out, err := Decrypt(data, raw, IV(key, seg.Sequence))
	if err != nil {
		return nil, decryptErr(err)
	}
	return out, nil
}
