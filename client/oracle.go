package client

import (
	"crypto/ecdsa"
	"fmt"

	"QuorumGate/internal/ident"
	"QuorumGate/internal/sigverify"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Oracle holds a validator keypair and signs confirmation payloads.
type Oracle struct {
	key  *ecdsa.PrivateKey // key is the secp256k1 signing key
	addr common.Address    // addr is the derived Ethereum-style address
}

// NewOracle creates an oracle with a fresh random keypair.
func NewOracle() (*Oracle, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("generate key:\n%w", err)
	}

	return &Oracle{key: key, addr: crypto.PubkeyToAddress(key.PublicKey)}, nil
}

// LoadOracle creates an oracle from a hex-encoded private key.
func LoadOracle(hexKey string) (*Oracle, error) {
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("parse key:\n%w", err)
	}

	return &Oracle{key: key, addr: crypto.PubkeyToAddress(key.PublicKey)}, nil
}

// Address returns the oracle's address, as registered on the node.
func (o *Oracle) Address() common.Address {
	return o.addr
}

// SignSubmission signs a submission identifier.
func (o *Oracle) SignSubmission(id ident.SubmissionID) ([]byte, error) {
	return sigverify.Sign(id, o.key)
}

// SignAssetDeploy signs the deploy identifier derived from asset metadata.
func (o *Oracle) SignAssetDeploy(tokenAddress common.Address, chainID uint64, name, symbol string, decimals uint8) ([]byte, error) {
	debridgeID := ident.Debridge(chainID, tokenAddress)
	deployID := ident.Deploy(debridgeID, name, symbol, decimals)

	return sigverify.Sign(deployID, o.key)
}
