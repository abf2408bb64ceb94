package votifier

import (
	"crypto/rand"
	"crypto/rsa"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encryptVote(t *testing.T, pub *rsa.PublicKey, plaintext string) []byte {
	t.Helper()
	block, err := rsa.EncryptPKCS1v15(rand.Reader, pub, []byte(plaintext))
	require.NoError(t, err)
	return block
}

func TestCodecRoundTrip(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, keyBits)
	require.NoError(t, err)
	codec := NewCodec(key)

	block := encryptVote(t, &key.PublicKey, "VOTE\nPlanetMinecraft\nSteve\n203.0.113.7\n1724601600\n")

	vote, err := codec.Process(block)
	require.NoError(t, err)
	assert.Equal(t, Vote{
		Service:   "PlanetMinecraft",
		User:      "Steve",
		Address:   "203.0.113.7",
		Timestamp: "1724601600",
	}, vote)
}

func TestCodecDecryptErrors(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, keyBits)
	require.NoError(t, err)
	codec := NewCodec(key)

	t.Run("wrong block size", func(t *testing.T) {
		_, err := codec.Decrypt(make([]byte, 255))
		require.ErrorIs(t, err, ErrBlockSize)
	})

	t.Run("garbage ciphertext", func(t *testing.T) {
		_, err := codec.Decrypt(make([]byte, BlockSize))
		require.ErrorIs(t, err, ErrCrypto)
	})

	t.Run("wrong key", func(t *testing.T) {
		other, err := rsa.GenerateKey(rand.Reader, keyBits)
		require.NoError(t, err)
		block := encryptVote(t, &other.PublicKey, "VOTE\nsvc\nuser\naddr\n0\n")

		_, err = codec.Decrypt(block)
		require.ErrorIs(t, err, ErrCrypto)
	})
}

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		plain   string
		want    Vote
		wantErr error
	}{
		{
			name:  "canonical",
			plain: "VOTE\nTopG\nAlex\n198.51.100.2\n2024-08-25 12:00:00\n",
			want:  Vote{Service: "TopG", User: "Alex", Address: "198.51.100.2", Timestamp: "2024-08-25 12:00:00"},
		},
		{
			name:  "whitespace padding",
			plain: "VOTE\n  TopG  \n\tAlex\n198.51.100.2\n0\n",
			want:  Vote{Service: "TopG", User: "Alex", Address: "198.51.100.2", Timestamp: "0"},
		},
		{
			name:  "trailing junk tolerated",
			plain: "VOTE\nTopG\nAlex\n198.51.100.2\n0\nextra\nlines",
			want:  Vote{Service: "TopG", User: "Alex", Address: "198.51.100.2", Timestamp: "0"},
		},
		{
			name:    "wrong opcode",
			plain:   "PING\nTopG\nAlex\n198.51.100.2\n0\n",
			wantErr: ErrBadOpcode,
		},
		{
			name:    "too few lines",
			plain:   "VOTE\nTopG\nAlex\n",
			wantErr: ErrTruncated,
		},
		{
			name:    "invalid utf-8",
			plain:   "VOTE\n\xff\xfe\nAlex\naddr\n0\n",
			wantErr: ErrEncoding,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vote, err := Parse([]byte(tt.plain))
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, vote)
		})
	}
}

func TestLoadKeysGeneratesAndReloads(t *testing.T) {
	dir := t.TempDir()

	key, err := LoadKeys(dir)
	require.NoError(t, err)
	require.FileExists(t, filepath.Join(dir, "private.pem"))
	require.FileExists(t, filepath.Join(dir, "public.pem"))

	// Same pair comes back on the second load.
	again, err := LoadKeys(dir)
	require.NoError(t, err)
	assert.True(t, key.Equal(again), "reloaded key differs from generated one")

	// A vote encrypted with the reloaded public half decrypts with the
	// original private half.
	block := encryptVote(t, &again.PublicKey, "VOTE\nsvc\nuser\naddr\n0\n")
	_, err = NewCodec(key).Process(block)
	require.NoError(t, err)
}

func TestLoadKeysRejectsCorruptPrivateKey(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "private.pem"), []byte("not a key"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "public.pem"), []byte("not a key"), 0o644))

	_, err := LoadKeys(dir)
	require.Error(t, err)
}

func TestPublicKeyPEM(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, keyBits)
	require.NoError(t, err)

	pemStr, err := PublicKeyPEM(key)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(pemStr, "-----BEGIN PUBLIC KEY-----"))
	assert.Contains(t, pemStr, "-----END PUBLIC KEY-----")
}
