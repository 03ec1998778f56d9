// Package ledgertest provides an in-memory records contract for tests. It
// speaks real ABI encoding so the production binding is exercised end to end.
package ledgertest

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	abiloader "github.com/ASingh442/sikh-historical-chain/pkgs/abi"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Entry is one stored record.
type Entry struct {
	Title       string
	Description string
	Source      string
	ContentHash string
	Contributor common.Address
	Timestamp   time.Time
	Status      uint8
	Approver    common.Address
}

// Backend simulates the records contract behind an Ethereum client.
type Backend struct {
	ABI abi.ABI

	mu         sync.Mutex
	entries    []Entry
	validators map[common.Address]bool
	owner      common.Address
	calls      map[string]int
	sent       []*types.Transaction
	failOn     map[string]error
	// Now stamps entries appended through SendTransaction.
	Now func() time.Time
}

// New creates an empty backend using the built-in ABI.
func New() *Backend {
	parsed, err := abiloader.Ledger("")
	if err != nil {
		panic(err)
	}
	return &Backend{
		ABI:        parsed,
		validators: make(map[common.Address]bool),
		calls:      make(map[string]int),
		failOn:     make(map[string]error),
		Now:        time.Now,
	}
}

// Add appends an entry and returns its 1-based id.
func (b *Backend) Add(e Entry) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries = append(b.entries, e)
	return uint64(len(b.entries))
}

// SetOwner sets the contract owner.
func (b *Backend) SetOwner(addr common.Address) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.owner = addr
}

// SetValidator marks addr as a validator.
func (b *Backend) SetValidator(addr common.Address, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.validators[addr] = ok
}

// FailOn makes every call of method (or "send" for SendTransaction) fail.
func (b *Backend) FailOn(method string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err == nil {
		delete(b.failOn, method)
		return
	}
	b.failOn[method] = err
}

// Calls returns how many times method was called.
func (b *Backend) Calls(method string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[method]
}

// Sent returns the transactions received so far.
func (b *Backend) Sent() []*types.Transaction {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*types.Transaction(nil), b.sent...)
}

// CallContract decodes the call, runs it against the in-memory state and
// returns ABI-encoded outputs.
func (b *Backend) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	if len(msg.Data) < 4 {
		return nil, errors.New("short call data")
	}
	method, err := b.ABI.MethodById(msg.Data[:4])
	if err != nil {
		return nil, err
	}
	args, err := method.Inputs.Unpack(msg.Data[4:])
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.calls[method.Name]++
	if err := b.failOn[method.Name]; err != nil {
		return nil, err
	}

	switch method.Name {
	case "totalRecords":
		return method.Outputs.Pack(big.NewInt(int64(len(b.entries))))
	case "getRecord":
		id := args[0].(*big.Int).Uint64()
		if id == 0 || id > uint64(len(b.entries)) {
			return nil, fmt.Errorf("execution reverted: record %d does not exist", id)
		}
		e := b.entries[id-1]
		return method.Outputs.Pack(
			new(big.Int).SetUint64(id),
			e.Title,
			e.Description,
			e.Source,
			e.ContentHash,
			e.Contributor,
			big.NewInt(e.Timestamp.Unix()),
			e.Status,
			e.Approver,
		)
	case "isValidator":
		return method.Outputs.Pack(b.validators[args[0].(common.Address)])
	case "owner":
		return method.Outputs.Pack(b.owner)
	default:
		return nil, fmt.Errorf("unsupported call %s", method.Name)
	}
}

func (b *Backend) EstimateGas(_ context.Context, _ ethereum.CallMsg) (uint64, error) {
	return 100_000, nil
}

func (b *Backend) PendingNonceAt(_ context.Context, _ common.Address) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return uint64(len(b.sent)), nil
}

func (b *Backend) SuggestGasPrice(_ context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000_000), nil
}

// SendTransaction applies a submitRecord transaction immediately.
func (b *Backend) SendTransaction(_ context.Context, tx *types.Transaction) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.calls["send"]++
	if err := b.failOn["send"]; err != nil {
		return err
	}

	data := tx.Data()
	if len(data) < 4 {
		return errors.New("short transaction data")
	}
	method, err := b.ABI.MethodById(data[:4])
	if err != nil {
		return err
	}
	if method.Name != "submitRecord" {
		return fmt.Errorf("unsupported transaction %s", method.Name)
	}
	args, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return err
	}

	b.sent = append(b.sent, tx)
	b.entries = append(b.entries, Entry{
		Title:       args[0].(string),
		Description: args[1].(string),
		Source:      args[2].(string),
		ContentHash: args[3].(string),
		Timestamp:   b.Now(),
	})
	return nil
}

// TransactionReceipt reports every sent transaction as successful.
func (b *Backend) TransactionReceipt(_ context.Context, txHash common.Hash) (*types.Receipt, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, tx := range b.sent {
		if tx.Hash() == txHash {
			return &types.Receipt{
				Status:      types.ReceiptStatusSuccessful,
				TxHash:      txHash,
				BlockNumber: big.NewInt(int64(i + 1)),
			}, nil
		}
	}
	return nil, ethereum.NotFound
}

func (b *Backend) CodeAt(_ context.Context, _ common.Address, _ *big.Int) ([]byte, error) {
	return []byte{0x60}, nil
}
