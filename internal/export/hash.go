package export

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"

	"github.com/sourcegraph/conc/pool"
	"golang.org/x/crypto/argon2"
)

var ErrUnsupportedHashType = errors.New("unsupported hash type")

// HashType represents the different hashing algorithms available.
type HashType string

const (
	// HashTypeArgon2id uses the Argon2id algorithm for hashing.
	HashTypeArgon2id HashType = "argon2id"
	// HashTypeSHA256 uses the SHA256 algorithm for hashing.
	HashTypeSHA256 HashType = "sha256"
	// HashTypeNone keeps account ids as they are.
	HashTypeNone HashType = "none"
)

// HashAccount pseudonymizes a remote account using the specified algorithm with the provided salt.
func HashAccount(domain, accountID, salt string, hashType HashType, iterations, memory uint32) string {
	input := []byte(accountID + "@" + domain)

	var hash []byte

	switch hashType {
	case HashTypeArgon2id:
		hash = argon2.IDKey(input, []byte(salt), iterations, memory*1024, 1, 32)
	case HashTypeSHA256:
		// Iterative SHA256 hashing with salt
		hash = []byte(salt)

		h := sha256.New()
		for range iterations {
			h.Reset()
			h.Write(input)
			h.Write(hash)
			hash = h.Sum(nil)
		}
	case HashTypeNone:
		return accountID
	}

	return hex.EncodeToString(hash)
}

// account identifies a remote account to hash.
type account struct {
	domain string
	id     string
}

// hashAccounts hashes every distinct account once, concurrently.
func hashAccounts(accounts []account, cfg *Config) map[account]string {
	distinct := make(map[account]struct{}, len(accounts))
	for _, a := range accounts {
		distinct[a] = struct{}{}
	}

	type result struct {
		account account
		hash    string
	}

	p := pool.NewWithResults[result]().WithMaxGoroutines(int(max(cfg.Concurrency, 1)))
	for a := range distinct {
		p.Go(func() result {
			return result{
				account: a,
				hash:    HashAccount(a.domain, a.id, cfg.Salt, HashType(cfg.HashType), cfg.Iterations, cfg.Memory),
			}
		})
	}

	hashes := make(map[account]string, len(distinct))
	for _, r := range p.Wait() {
		hashes[r.account] = r.hash
	}

	return hashes
}
