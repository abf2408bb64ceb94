package votifier

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

const keyBits = 2048

// LoadKeys returns the RSA keypair persisted under dir, generating and
// saving a fresh 2048-bit pair when either PEM file is missing. The
// private key is PKCS#8, the public key SubjectPublicKeyInfo.
func LoadKeys(dir string) (*rsa.PrivateKey, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating keys directory %s: %w", dir, err)
	}

	privPath := filepath.Join(dir, "private.pem")
	pubPath := filepath.Join(dir, "public.pem")

	if fileExists(privPath) && fileExists(pubPath) {
		key, err := readPrivateKey(privPath)
		if err != nil {
			return nil, err
		}
		slog.Info("rsa keys loaded", "dir", dir)
		return key, nil
	}

	slog.Info("generating new rsa key pair", "bits", keyBits)
	key, err := rsa.GenerateKey(rand.Reader, keyBits)
	if err != nil {
		return nil, fmt.Errorf("generating rsa key: %w", err)
	}

	if err := writePrivateKey(privPath, key); err != nil {
		return nil, err
	}
	if err := writePublicKey(pubPath, &key.PublicKey); err != nil {
		return nil, err
	}
	slog.Info("rsa keys saved", "dir", dir)

	return key, nil
}

// PublicKeyPEM renders the public half for pasting into voting sites.
func PublicKeyPEM(key *rsa.PrivateKey) (string, error) {
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		return "", fmt.Errorf("marshaling public key: %w", err)
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})), nil
}

func readPrivateKey(path string) (*rsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("no PEM block in %s", path)
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parsing private key %s: %w", path, err)
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("%s holds a %T, want *rsa.PrivateKey", path, parsed)
	}
	return key, nil
}

func writePrivateKey(path string, key *rsa.PrivateKey) error {
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return fmt.Errorf("marshaling private key: %w", err)
	}
	return writePEMAtomic(path, "PRIVATE KEY", der, 0o600)
}

func writePublicKey(path string, key *rsa.PublicKey) error {
	der, err := x509.MarshalPKIXPublicKey(key)
	if err != nil {
		return fmt.Errorf("marshaling public key: %w", err)
	}
	return writePEMAtomic(path, "PUBLIC KEY", der, 0o644)
}

// writePEMAtomic writes through a temp file and renames so a crash
// never leaves a half-written key behind.
func writePEMAtomic(path, blockType string, der []byte, mode os.FileMode) error {
	data := pem.EncodeToMemory(&pem.Block{Type: blockType, Bytes: der})
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, mode); err != nil {
		return fmt.Errorf("writing %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("renaming %s: %w", tmp, err)
	}
	return nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
