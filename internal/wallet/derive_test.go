package wallet

import (
	"errors"
	"testing"

	"github.com/btcsuite/btcd/btcutil/base58"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// BIP84 reference vectors for mnemonic "abandon abandon ... about".
const (
	masterZprv  = "zprvAWgYBBk7JR8Gjrh4UJQ2uJdG1r3WNRRfURiABBE3RvMXYSrRJL62XuezvGdPvG6GFBZduosCc1YP5wixPox7zhZLfiUm8aunE96BBa4Kei5"
	accountZprv = "zprvAdG4iTXWBoARxkkzNpNh8r6Qag3irQB8PzEMkAFeTRXxHpbF9z4QgEvBRmfvqWvGp42t42nvgGpNgYSJA9iefm1yYNZKEm7z6qUWCroSQnE"

	addrIndex0 = "bc1qcr8te4kr609gcawutmrza0j4xv80jy8z306fyu"
	addrIndex1 = "bc1qnjg0jd8228aq7egyzacy8cys3knf9xvrerkf9g"
)

func TestDerive(t *testing.T) {
	t.Run("Given a master zprv When deriving index 0 Then the BIP84 vector address comes out", func(t *testing.T) {
		deriver, err := NewDeriver(masterZprv, &chaincfg.MainNetParams)
		if err != nil {
			t.Fatalf("NewDeriver failed: %v", err)
		}

		address, err := deriver.Derive(0)
		if err != nil {
			t.Fatalf("Derive failed: %v", err)
		}
		if address != addrIndex0 {
			t.Errorf("expected %s, got %s", addrIndex0, address)
		}
	})

	t.Run("Given a master zprv When deriving index 1 Then a distinct vector address comes out", func(t *testing.T) {
		deriver, err := NewDeriver(masterZprv, &chaincfg.MainNetParams)
		if err != nil {
			t.Fatalf("NewDeriver failed: %v", err)
		}

		address, err := deriver.Derive(1)
		if err != nil {
			t.Fatalf("Derive failed: %v", err)
		}
		if address != addrIndex1 {
			t.Errorf("expected %s, got %s", addrIndex1, address)
		}
	})

	t.Run("Given an account-level zprv at depth 3 When deriving Then the same addresses come out", func(t *testing.T) {
		deriver, err := NewDeriver(accountZprv, &chaincfg.MainNetParams)
		if err != nil {
			t.Fatalf("NewDeriver failed: %v", err)
		}

		address, err := deriver.Derive(0)
		if err != nil {
			t.Fatalf("Derive failed: %v", err)
		}
		if address != addrIndex0 {
			t.Errorf("expected %s, got %s", addrIndex0, address)
		}
	})

	t.Run("Given the same key and index When deriving twice Then the address is identical", func(t *testing.T) {
		first, err := NewDeriver(masterZprv, &chaincfg.MainNetParams)
		if err != nil {
			t.Fatalf("NewDeriver failed: %v", err)
		}
		second, err := NewDeriver(masterZprv, &chaincfg.MainNetParams)
		if err != nil {
			t.Fatalf("NewDeriver failed: %v", err)
		}

		a1, err := first.Derive(7)
		if err != nil {
			t.Fatalf("Derive failed: %v", err)
		}
		a2, err := second.Derive(7)
		if err != nil {
			t.Fatalf("Derive failed: %v", err)
		}
		if a1 != a2 {
			t.Errorf("expected deterministic derivation, got %s and %s", a1, a2)
		}
	})

	t.Run("Given distinct indices When deriving Then addresses differ", func(t *testing.T) {
		deriver, err := NewDeriver(masterZprv, &chaincfg.MainNetParams)
		if err != nil {
			t.Fatalf("NewDeriver failed: %v", err)
		}

		seen := make(map[string]uint32)
		for index := uint32(0); index < 20; index++ {
			address, err := deriver.Derive(index)
			if err != nil {
				t.Fatalf("Derive(%d) failed: %v", index, err)
			}
			if prev, dup := seen[address]; dup {
				t.Fatalf("indices %d and %d produced the same address %s", prev, index, address)
			}
			seen[address] = index
		}
	})
}

func TestNewDeriverRejections(t *testing.T) {
	t.Run("Given a zprv When the requested network is testnet Then InvalidKeyFormat", func(t *testing.T) {
		_, err := NewDeriver(masterZprv, &chaincfg.TestNet3Params)
		if !errors.Is(err, ErrInvalidKeyFormat) {
			t.Errorf("expected ErrInvalidKeyFormat, got %v", err)
		}
	})

	t.Run("Given garbage When parsing Then InvalidKeyFormat", func(t *testing.T) {
		_, err := NewDeriver("not-a-key", &chaincfg.MainNetParams)
		if !errors.Is(err, ErrInvalidKeyFormat) {
			t.Errorf("expected ErrInvalidKeyFormat, got %v", err)
		}
	})

	t.Run("Given a tampered checksum When parsing Then InvalidKeyFormat", func(t *testing.T) {
		decoded := base58.Decode(masterZprv)
		decoded[len(decoded)-1] ^= 0xFF

		_, err := NewDeriver(base58.Encode(decoded), &chaincfg.MainNetParams)
		if !errors.Is(err, ErrInvalidKeyFormat) {
			t.Errorf("expected ErrInvalidKeyFormat, got %v", err)
		}
	})

	t.Run("Given a depth beyond the account level When parsing Then InvalidKeyDepth", func(t *testing.T) {
		_, err := NewDeriver(withDepth(t, masterZprv, 4), &chaincfg.MainNetParams)
		if !errors.Is(err, ErrInvalidKeyDepth) {
			t.Errorf("expected ErrInvalidKeyDepth, got %v", err)
		}
	})
}

// withDepth rewrites the depth byte of a serialized key and fixes up the
// checksum, producing a structurally valid key at an arbitrary depth.
func withDepth(t *testing.T, key string, depth byte) string {
	t.Helper()

	decoded := base58.Decode(key)
	if len(decoded) != serializedKeyLen+checksumLen {
		t.Fatalf("unexpected key length %d", len(decoded))
	}

	payload := make([]byte, serializedKeyLen)
	copy(payload, decoded[:serializedKeyLen])
	payload[4] = depth

	checksum := chainhash.DoubleHashB(payload)[:checksumLen]
	return base58.Encode(append(payload, checksum...))
}
