package signer

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

const (
	EnvPrivateKey           = "SCHED_PRIVATE_KEY"
	EnvPrivateKeyFile       = "SCHED_PRIVATE_KEY_FILE"
	EnvKeystorePassword     = "SCHED_KEYSTORE_PASSWORD"
	EnvKeystorePasswordFile = "SCHED_KEYSTORE_PASSWORD_FILE"
)

// LocalSigner signs scheduler transactions with an in-process ECDSA key.
// Auto-execute agents share one signing key per deployment.
type LocalSigner struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
}

func (s *LocalSigner) Address() common.Address {
	return s.address
}

func (s *LocalSigner) SignTx(chainID *big.Int, tx *types.Transaction) (*types.Transaction, error) {
	if s == nil || s.privateKey == nil {
		return nil, errors.New("local signer is not initialized")
	}
	return types.SignTx(tx, types.LatestSignerForChainID(chainID), s.privateKey)
}

// NewLocalSignerFromEnv loads the signing key via precedence:
// raw hex env var, then hex key file, then encrypted keystore file.
// keystorePath comes from configuration; the rest from the environment.
func NewLocalSignerFromEnv(keystorePath string) (*LocalSigner, error) {
	if hexKey := strings.TrimSpace(os.Getenv(EnvPrivateKey)); hexKey != "" {
		return newFromHex(hexKey)
	}
	if keyFile := strings.TrimSpace(os.Getenv(EnvPrivateKeyFile)); keyFile != "" {
		buf, err := os.ReadFile(keyFile)
		if err != nil {
			return nil, fmt.Errorf("read private key file: %w", err)
		}
		return newFromHex(string(buf))
	}
	if strings.TrimSpace(keystorePath) != "" {
		return newFromKeystore(keystorePath)
	}
	return nil, fmt.Errorf("missing signing key: set %s or %s, or configure a keystore path", EnvPrivateKey, EnvPrivateKeyFile)
}

func newFromHex(raw string) (*LocalSigner, error) {
	clean := strings.TrimPrefix(strings.TrimSpace(raw), "0x")
	if clean == "" {
		return nil, fmt.Errorf("empty private key")
	}
	pk, err := crypto.HexToECDSA(clean)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return fromKey(pk)
}

func newFromKeystore(path string) (*LocalSigner, error) {
	password := strings.TrimSpace(os.Getenv(EnvKeystorePassword))
	if password == "" {
		if passwordFile := strings.TrimSpace(os.Getenv(EnvKeystorePasswordFile)); passwordFile != "" {
			buf, err := os.ReadFile(passwordFile)
			if err != nil {
				return nil, fmt.Errorf("read keystore password file: %w", err)
			}
			password = strings.TrimSpace(string(buf))
		}
	}
	if password == "" {
		return nil, fmt.Errorf("keystore password is required: set %s or %s", EnvKeystorePassword, EnvKeystorePasswordFile)
	}
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read keystore file: %w", err)
	}
	key, err := keystore.DecryptKey(buf, password)
	if err != nil {
		return nil, fmt.Errorf("decrypt keystore: %w", err)
	}
	return fromKey(key.PrivateKey)
}

func fromKey(pk *ecdsa.PrivateKey) (*LocalSigner, error) {
	pub, ok := pk.Public().(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("invalid ECDSA public key")
	}
	return &LocalSigner{privateKey: pk, address: crypto.PubkeyToAddress(*pub)}, nil
}
