package auth

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/golang-jwt/jwt/v5"
)

// maxKeys bounds how many rotated keys stay valid for verification.
const maxKeys = 4

// KeySet signs session tokens with the active key and verifies tokens
// signed by any retained key.
type KeySet interface {
	Sign(claims jwt.Claims) (string, error)
	KeyFunc() jwt.Keyfunc
}

// InMemoryKeySet holds Ed25519 keys in memory.
type InMemoryKeySet struct {
	mu         sync.RWMutex
	clk        clock.Clock
	currentKID string
	seq        int
	order      []string
	keys       map[string]ed25519.PrivateKey
}

// NewInMemoryKeySet generates a fresh active key. Sessions do not survive
// a restart.
func NewInMemoryKeySet(clk clock.Clock) (*InMemoryKeySet, error) {
	ks := newKeySet(clk)
	if err := ks.Rotate(); err != nil {
		return nil, err
	}
	return ks, nil
}

// NewKeySetFromSeed derives the active key from a 32-byte seed so sessions
// survive restarts.
func NewKeySetFromSeed(seed []byte, clk clock.Clock) (*InMemoryKeySet, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("auth: seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	ks := newKeySet(clk)
	ks.add("key-seed", ed25519.NewKeyFromSeed(seed))
	return ks, nil
}

func newKeySet(clk clock.Clock) *InMemoryKeySet {
	if clk == nil {
		clk = clock.New()
	}
	return &InMemoryKeySet{clk: clk, keys: make(map[string]ed25519.PrivateKey)}
}

// Rotate makes a new key active. The oldest key is dropped once more than
// maxKeys are held.
func (ks *InMemoryKeySet) Rotate() error {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return fmt.Errorf("failed to generate key: %w", err)
	}
	ks.mu.Lock()
	defer ks.mu.Unlock()
	ks.seq++
	ks.addLocked(fmt.Sprintf("key-%d-%d", ks.clk.Now().Unix(), ks.seq), priv)
	return nil
}

func (ks *InMemoryKeySet) add(kid string, key ed25519.PrivateKey) {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	ks.addLocked(kid, key)
}

func (ks *InMemoryKeySet) addLocked(kid string, key ed25519.PrivateKey) {
	ks.keys[kid] = key
	ks.order = append(ks.order, kid)
	ks.currentKID = kid
	for len(ks.order) > maxKeys {
		delete(ks.keys, ks.order[0])
		ks.order = ks.order[1:]
	}
}

func (ks *InMemoryKeySet) Sign(claims jwt.Claims) (string, error) {
	ks.mu.RLock()
	key := ks.keys[ks.currentKID]
	kid := ks.currentKID
	ks.mu.RUnlock()

	if key == nil {
		return "", fmt.Errorf("no active key")
	}
	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	token.Header["kid"] = kid
	return token.SignedString(key)
}

func (ks *InMemoryKeySet) KeyFunc() jwt.Keyfunc {
	return func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodEd25519); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		kid, ok := token.Header["kid"].(string)
		if !ok {
			return nil, fmt.Errorf("missing kid in header")
		}

		ks.mu.RLock()
		defer ks.mu.RUnlock()
		key, exists := ks.keys[kid]
		if !exists {
			return nil, fmt.Errorf("key not found: %s", kid)
		}
		return key.Public(), nil
	}
}
