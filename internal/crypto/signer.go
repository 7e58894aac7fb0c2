package crypto

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// Signer signs transactions for one chain with the issuer wallet key.
type Signer struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
	chainID    *big.Int
	txSigner   types.Signer
}

// NewSigner binds key to chainID (1 mainnet, 11155111 Sepolia, ...).
func NewSigner(key *ecdsa.PrivateKey, chainID int64) (*Signer, error) {
	if key == nil {
		return nil, fmt.Errorf("crypto/signer: nil private key")
	}
	if chainID <= 0 {
		return nil, fmt.Errorf("crypto/signer: invalid chain id %d", chainID)
	}
	id := big.NewInt(chainID)
	return &Signer{
		privateKey: key,
		address:    ethcrypto.PubkeyToAddress(key.PublicKey),
		chainID:    id,
		txSigner:   types.LatestSignerForChainID(id),
	}, nil
}

// NewSignerFromHex is NewSigner for a hex-encoded key.
func NewSignerFromHex(privateKeyHex string, chainID int64) (*Signer, error) {
	pk, err := parseKey(privateKeyHex)
	if err != nil {
		return nil, err
	}
	return NewSigner(pk, chainID)
}

// Address returns the wallet address of the key.
func (s *Signer) Address() common.Address {
	return s.address
}

// ChainID returns the chain the signer is bound to.
func (s *Signer) ChainID() *big.Int {
	return new(big.Int).Set(s.chainID)
}

// SignTx signs tx for the bound chain.
func (s *Signer) SignTx(tx *types.Transaction) (*types.Transaction, error) {
	signed, err := types.SignTx(tx, s.txSigner, s.privateKey)
	if err != nil {
		return nil, fmt.Errorf("crypto/signer: signing tx: %w", err)
	}
	return signed, nil
}

// Sender recovers the signing address of a signed transaction.
func (s *Signer) Sender(tx *types.Transaction) (common.Address, error) {
	from, err := types.Sender(s.txSigner, tx)
	if err != nil {
		return common.Address{}, fmt.Errorf("crypto/signer: recovering sender: %w", err)
	}
	return from, nil
}
