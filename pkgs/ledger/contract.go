package ledger

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	log "github.com/sirupsen/logrus"
)

// ErrNoSigner is returned by write methods when no private key was configured.
var ErrNoSigner = errors.New("no submitter key configured")

// Backend is the subset of an Ethereum client the contract binding needs.
// *ethclient.Client satisfies it.
type Backend interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error)
}

// ContractConfig describes how to reach and sign for the records contract.
type ContractConfig struct {
	Address     common.Address
	ABI         abi.ABI
	PrivateKey  string // Hex, optional; required only for SubmitRecord
	ChainID     int64
	CallTimeout time.Duration
}

// Contract binds to the historical records contract.
type Contract struct {
	backend     Backend
	address     common.Address
	abi         abi.ABI
	privateKey  *ecdsa.PrivateKey
	from        common.Address
	chainID     *big.Int
	callTimeout time.Duration
}

// Dial connects to rpcURL and binds the contract.
func Dial(ctx context.Context, rpcURL string, cfg ContractConfig) (*Contract, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Ethereum client: %w", err)
	}
	return NewContract(client, cfg)
}

// NewContract creates a contract client over an existing backend.
func NewContract(backend Backend, cfg ContractConfig) (*Contract, error) {
	if cfg.Address == (common.Address{}) {
		return nil, fmt.Errorf("contract address is required")
	}
	if len(cfg.ABI.Methods) == 0 {
		return nil, fmt.Errorf("contract ABI is required")
	}

	c := &Contract{
		backend:     backend,
		address:     cfg.Address,
		abi:         cfg.ABI,
		chainID:     big.NewInt(cfg.ChainID),
		callTimeout: cfg.CallTimeout,
	}
	if c.callTimeout <= 0 {
		c.callTimeout = 15 * time.Second
	}

	if key := strings.TrimPrefix(strings.TrimSpace(cfg.PrivateKey), "0x"); key != "" {
		privateKey, err := crypto.HexToECDSA(key)
		if err != nil {
			return nil, fmt.Errorf("invalid private key: %w", err)
		}
		c.privateKey = privateKey
		c.from = crypto.PubkeyToAddress(privateKey.PublicKey)
	}

	return c, nil
}

// Address returns the bound contract address.
func (c *Contract) Address() common.Address {
	return c.address
}

// Signer returns the submitter address, or the zero address when none is set.
func (c *Contract) Signer() common.Address {
	return c.from
}

func (c *Contract) call(ctx context.Context, method string, args ...interface{}) ([]interface{}, error) {
	data, err := c.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s call: %w", method, err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	result, err := c.backend.CallContract(ctx, ethereum.CallMsg{
		To:   &c.address,
		From: c.from,
		Data: data,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to call %s: %w", method, err)
	}

	out, err := c.abi.Unpack(method, result)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack %s result: %w", method, err)
	}
	return out, nil
}

// TotalRecords returns the number of records; ids run from 1 to this value.
func (c *Contract) TotalRecords(ctx context.Context) (uint64, error) {
	out, err := c.call(ctx, "totalRecords")
	if err != nil {
		return 0, err
	}
	total, ok := first[*big.Int](out)
	if !ok {
		return 0, fmt.Errorf("unexpected totalRecords result %v", out)
	}
	if !total.IsUint64() {
		return 0, fmt.Errorf("totalRecords out of range: %s", total)
	}
	return total.Uint64(), nil
}

// GetRecord reads one record tuple.
func (c *Contract) GetRecord(ctx context.Context, id uint64) (RawRecord, error) {
	out, err := c.call(ctx, "getRecord", new(big.Int).SetUint64(id))
	if err != nil {
		return RawRecord{}, err
	}
	if len(out) != 9 {
		return RawRecord{}, fmt.Errorf("getRecord returned %d values, want 9", len(out))
	}

	var raw RawRecord
	var ok [9]bool
	raw.ID, ok[0] = out[0].(*big.Int)
	raw.Title, ok[1] = out[1].(string)
	raw.Description, ok[2] = out[2].(string)
	raw.Source, ok[3] = out[3].(string)
	raw.ContentHash, ok[4] = out[4].(string)
	raw.Contributor, ok[5] = out[5].(common.Address)
	raw.Timestamp, ok[6] = out[6].(*big.Int)
	raw.Status, ok[7] = out[7].(uint8)
	raw.Approver, ok[8] = out[8].(common.Address)
	for i, good := range ok {
		if !good {
			return RawRecord{}, fmt.Errorf("getRecord value %d has unexpected type %T", i, out[i])
		}
	}
	return raw, nil
}

// IsValidator reports whether addr is an approved validator.
func (c *Contract) IsValidator(ctx context.Context, addr common.Address) (bool, error) {
	out, err := c.call(ctx, "isValidator", addr)
	if err != nil {
		return false, err
	}
	v, ok := first[bool](out)
	if !ok {
		return false, fmt.Errorf("unexpected isValidator result %v", out)
	}
	return v, nil
}

// Owner returns the contract owner.
func (c *Contract) Owner(ctx context.Context) (common.Address, error) {
	out, err := c.call(ctx, "owner")
	if err != nil {
		return common.Address{}, err
	}
	v, ok := first[common.Address](out)
	if !ok {
		return common.Address{}, fmt.Errorf("unexpected owner result %v", out)
	}
	return v, nil
}

// SubmitRecord signs and broadcasts a submitRecord transaction and returns
// its hash without waiting for inclusion.
func (c *Contract) SubmitRecord(ctx context.Context, title, description, source, contentHash string) (common.Hash, error) {
	if c.privateKey == nil {
		return common.Hash{}, ErrNoSigner
	}

	data, err := c.abi.Pack("submitRecord", title, description, source, contentHash)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to pack submitRecord call: %w", err)
	}

	gasLimit, err := c.backend.EstimateGas(ctx, ethereum.CallMsg{
		From: c.from,
		To:   &c.address,
		Data: data,
	})
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to estimate gas: %w", err)
	}
	// Add 20% buffer
	gasLimit = gasLimit * 12 / 10

	nonce, err := c.backend.PendingNonceAt(ctx, c.from)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to get nonce: %w", err)
	}

	gasPrice, err := c.backend.SuggestGasPrice(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to get gas price: %w", err)
	}

	tx := types.NewTransaction(nonce, c.address, big.NewInt(0), gasLimit, gasPrice, data)
	signedTx, err := types.SignTx(tx, types.NewEIP155Signer(c.chainID), c.privateKey)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to sign transaction: %w", err)
	}

	log.WithFields(log.Fields{
		"tx_hash":   signedTx.Hash().Hex(),
		"gas_limit": gasLimit,
		"gas_price": gasPrice.String(),
		"nonce":     nonce,
		"title":     title,
	}).Info("Submitting record")

	if err := c.backend.SendTransaction(ctx, signedTx); err != nil {
		return common.Hash{}, fmt.Errorf("failed to send transaction: %w", err)
	}

	return signedTx.Hash(), nil
}

// WaitMined blocks until the transaction is included. A reverted
// transaction is returned together with an error.
func (c *Contract) WaitMined(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	receipt, err := bind.WaitMinedHash(ctx, c.backend, txHash)
	if err != nil {
		return nil, fmt.Errorf("failed waiting for %s: %w", txHash.Hex(), err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return receipt, fmt.Errorf("transaction %s reverted", txHash.Hex())
	}
	return receipt, nil
}

func first[T any](out []interface{}) (T, bool) {
	var zero T
	if len(out) == 0 {
		return zero, false
	}
	v, ok := out[0].(T)
	return v, ok
}
