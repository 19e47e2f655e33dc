package wallet

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/base58"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// BIP84 extended private key version bytes.
const (
	versionZprv uint32 = 0x04B2430C
	versionVprv uint32 = 0x045F18BC
)

const (
	serializedKeyLen = 78
	checksumLen      = 4
	purposeBIP84     = 84
)

var (
	ErrInvalidKeyFormat  = errors.New("invalid extended key format")
	ErrInvalidKeyDepth   = errors.New("invalid extended key depth")
	ErrDerivationFailure = errors.New("child derivation failed")
)

// Deriver derives P2WPKH receive addresses under m/84'/0'/0'/0/{index} from a
// BIP84 extended private key (zprv on mainnet, vprv on testnet).
type Deriver struct {
	account   *hdkeychain.ExtendedKey
	netParams *chaincfg.Params
}

// NewDeriver parses and validates the extended key and pre-derives the
// account node so per-address derivation only walks /0/{index}.
func NewDeriver(extendedKey string, netParams *chaincfg.Params) (*Deriver, error) {
	account, err := accountNode(extendedKey, netParams)
	if err != nil {
		return nil, err
	}
	return &Deriver{account: account, netParams: netParams}, nil
}

// Derive returns the bech32 receive address at m/84'/0'/0'/0/{index}.
// Deterministic: the same index always yields the same address.
func (d *Deriver) Derive(index uint32) (string, error) {
	external, err := d.account.Derive(0)
	if err != nil {
		return "", wrapDerive(err)
	}

	child, err := external.Derive(index)
	if err != nil {
		return "", wrapDerive(err)
	}

	pubKey, err := child.ECPubKey()
	if err != nil {
		return "", wrapDerive(err)
	}

	witnessProg := btcutil.Hash160(pubKey.SerializeCompressed())
	addr, err := btcutil.NewAddressWitnessPubKeyHash(witnessProg, d.netParams)
	if err != nil {
		return "", fmt.Errorf("failed to encode address: %w", err)
	}

	return addr.EncodeAddress(), nil
}

// accountNode decodes the base58check serialization, validates version bytes
// against the requested network, and derives to the account level m/84'/0'/0'
// based on the key's depth.
func accountNode(extendedKey string, netParams *chaincfg.Params) (*hdkeychain.ExtendedKey, error) {
	decoded := base58.Decode(extendedKey)
	if len(decoded) != serializedKeyLen+checksumLen {
		return nil, ErrInvalidKeyFormat
	}

	payload := decoded[:serializedKeyLen]
	checksum := decoded[serializedKeyLen:]
	if !bytes.Equal(checksum, chainhash.DoubleHashB(payload)[:checksumLen]) {
		return nil, ErrInvalidKeyFormat
	}

	version := payload[0:4]
	depth := payload[4]
	parentFP := payload[5:9]
	childNum := binary.BigEndian.Uint32(payload[9:13])
	chainCode := payload[13:45]
	keyData := payload[45:78]

	// Private keys carry a 0x00 pad byte ahead of the 32-byte scalar.
	if keyData[0] != 0x00 {
		return nil, ErrInvalidKeyFormat
	}

	versionNum := binary.BigEndian.Uint32(version)
	wantVersion := versionZprv
	if netParams.Net != chaincfg.MainNetParams.Net {
		wantVersion = versionVprv
	}
	if versionNum != wantVersion {
		return nil, ErrInvalidKeyFormat
	}

	if depth > 3 {
		return nil, ErrInvalidKeyDepth
	}

	node := hdkeychain.NewExtendedKey(version, keyData[1:], chainCode, parentFP, depth, childNum, true)

	hardened := func(key *hdkeychain.ExtendedKey, index uint32) (*hdkeychain.ExtendedKey, error) {
		child, err := key.Derive(hdkeychain.HardenedKeyStart + index)
		if err != nil {
			return nil, wrapDerive(err)
		}
		return child, nil
	}

	var err error
	switch depth {
	case 0:
		// Master key: walk purpose, coin type, account.
		for _, idx := range []uint32{purposeBIP84, 0, 0} {
			if node, err = hardened(node, idx); err != nil {
				return nil, err
			}
		}
	case 1:
		// Electrum exports account-level keys at depth 1; use as-is.
	case 2:
		// Coin-type level: one hop to the account.
		if node, err = hardened(node, 0); err != nil {
			return nil, err
		}
	case 3:
		// Already at the account level.
	}

	return node, nil
}

func wrapDerive(err error) error {
	if errors.Is(err, hdkeychain.ErrInvalidChild) {
		return ErrDerivationFailure
	}
	return fmt.Errorf("%w: %v", ErrDerivationFailure, err)
}
