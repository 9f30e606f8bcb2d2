package registry

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"docregistry/internal/config"
	"docregistry/internal/hasher"
)

// revertErrorCode is the JSON-RPC code nodes use for execution reverted.
const revertErrorCode = 3

// chainReader is the part of *ethclient.Client used while confirming.
type chainReader interface {
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	BlockNumber(ctx context.Context) (uint64, error)
}

// EthRegistry talks to the registry contract over JSON-RPC.
// It is safe for concurrent use. Submissions are serialized so that
// nonces are assigned in order; confirmations run concurrently.
type EthRegistry struct {
	contract      contractCaller
	chain         chainReader
	auth          *bind.TransactOpts
	confirmations uint64
	pollInterval  time.Duration
	now           func() time.Time
	closer        func()

	submitMu sync.Mutex
}

var _ Registry = (*EthRegistry)(nil)

// Dial connects to the chain endpoint and binds the registry contract.
// Without a private key the client is read-only.
func Dial(ctx context.Context, cfg config.ChainConfig) (*EthRegistry, error) {
	if cfg.RPCURL == "" {
		return nil, fmt.Errorf("chain rpc url is required")
	}
	if !common.IsHexAddress(cfg.ContractAddress) {
		return nil, fmt.Errorf("invalid contract address %q", cfg.ContractAddress)
	}

	httpClient := &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	rpcClient, err := rpc.DialOptions(ctx, cfg.RPCURL, rpc.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("dial chain rpc: %w", err)
	}
	ec := ethclient.NewClient(rpcClient)

	parsed, err := registryMeta.GetAbi()
	if err != nil {
		ec.Close()
		return nil, fmt.Errorf("parse registry abi: %w", err)
	}
	bound := bind.NewBoundContract(common.HexToAddress(cfg.ContractAddress), *parsed, ec, ec, ec)

	var auth *bind.TransactOpts
	if cfg.PrivateKey != "" {
		auth, err = newTransactor(ctx, ec, cfg)
		if err != nil {
			ec.Close()
			return nil, err
		}
	}

	r := newEthRegistry(bound, ec, auth, cfg)
	r.closer = ec.Close
	return r, nil
}

func newTransactor(ctx context.Context, ec *ethclient.Client, cfg config.ChainConfig) (*bind.TransactOpts, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("parse signing key: %w", err)
	}
	chainID := big.NewInt(cfg.ChainID)
	if cfg.ChainID == 0 {
		if chainID, err = ec.ChainID(ctx); err != nil {
			return nil, fmt.Errorf("fetch chain id: %w", err)
		}
	}
	auth, err := bind.NewKeyedTransactorWithChainID(key, chainID)
	if err != nil {
		return nil, fmt.Errorf("create transactor: %w", err)
	}
	auth.GasLimit = cfg.GasLimit
	return auth, nil
}

func newEthRegistry(c contractCaller, chain chainReader, auth *bind.TransactOpts, cfg config.ChainConfig) *EthRegistry {
	confirmations := uint64(1)
	if cfg.Confirmations > 1 {
		confirmations = uint64(cfg.Confirmations)
	}
	poll := cfg.PollInterval
	if poll <= 0 {
		poll = 2 * time.Second
	}
	return &EthRegistry{
		contract:      c,
		chain:         chain,
		auth:          auth,
		confirmations: confirmations,
		pollInterval:  poll,
		now:           time.Now,
	}
}

// Close releases the underlying RPC connection.
func (r *EthRegistry) Close() {
	if r.closer != nil {
		r.closer()
	}
}

// CanSubmit reports whether a signing key is configured.
func (r *EthRegistry) CanSubmit() bool { return r.auth != nil }

func (r *EthRegistry) TotalCount(ctx context.Context) (uint64, error) {
	var out []interface{}
	if err := r.contract.Call(callOpts(ctx, nil), &out, methodTotal); err != nil {
		return 0, classify(methodTotal, err)
	}
	if err := outputs(methodTotal, out, 1); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return toUint64("total", asBig(out[0]))
}

func (r *EthRegistry) ExistsByHash(ctx context.Context, hash hasher.Digest) (bool, error) {
	var out []interface{}
	if err := r.contract.Call(callOpts(ctx, nil), &out, methodIsRegister, [32]byte(hash)); err != nil {
		return false, classify(methodIsRegister, err)
	}
	if err := outputs(methodIsRegister, out, 1); err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return asBool(out[0]), nil
}

func (r *EthRegistry) RecordByID(ctx context.Context, id uint64) (Record, error) {
	return r.recordByID(ctx, id, nil)
}

func (r *EthRegistry) recordByID(ctx context.Context, id uint64, block *big.Int) (Record, error) {
	var out []interface{}
	if err := r.contract.Call(callOpts(ctx, block), &out, methodGetDoc, new(big.Int).SetUint64(id)); err != nil {
		return Record{}, classify(methodGetDoc, err)
	}
	if err := outputs(methodGetDoc, out, 3); err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	rec := Record{ID: id, Exists: asBool(out[2])}
	if !rec.Exists {
		return rec, nil
	}
	created, err := secondsToMillis(asBig(out[1]))
	if err != nil {
		return Record{}, err
	}
	rec.DocHash = hasher.Digest(asBytes32(out[0]))
	rec.CreatedAtMillis = created
	return rec, nil
}

func (r *EthRegistry) IDByHash(ctx context.Context, hash hasher.Digest) (uint64, bool, error) {
	return r.idByHash(ctx, hash, nil)
}

func (r *EthRegistry) idByHash(ctx context.Context, hash hasher.Digest, block *big.Int) (uint64, bool, error) {
	var out []interface{}
	if err := r.contract.Call(callOpts(ctx, block), &out, methodIDByHash, [32]byte(hash)); err != nil {
		return 0, false, classify(methodIDByHash, err)
	}
	if err := outputs(methodIDByHash, out, 1); err != nil {
		return 0, false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	id, err := toUint64("id", asBig(out[0]))
	if err != nil {
		return 0, false, err
	}
	// Zero is the contract's "not found" sentinel, never a valid id.
	if id == 0 {
		return 0, false, nil
	}
	return id, true, nil
}

// Submit signs and broadcasts registerDoc(hash). A revert during gas
// estimation surfaces as ErrRejected before anything is broadcast.
func (r *EthRegistry) Submit(ctx context.Context, hash hasher.Digest) (Pending, error) {
	if r.auth == nil {
		return Pending{}, fmt.Errorf("%w: no signing key configured", ErrUnavailable)
	}

	r.submitMu.Lock()
	defer r.submitMu.Unlock()

	opts := *r.auth
	opts.Context = ctx
	tx, err := r.contract.Transact(&opts, methodRegister, [32]byte(hash))
	if err != nil {
		return Pending{}, classify(methodRegister, err)
	}
	return Pending{
		TxHash:      tx.Hash().Hex(),
		DocHash:     hash,
		Nonce:       tx.Nonce(),
		SubmittedAt: r.now(),
	}, nil
}

// Confirm waits for the receipt, the configured confirmation depth, and then
// reads the assigned id back from the contract at the receipt's block.
func (r *EthRegistry) Confirm(ctx context.Context, p Pending) (Confirmation, error) {
	txHash := common.HexToHash(p.TxHash)

	receipt, err := r.waitMined(ctx, txHash)
	if err != nil {
		return Confirmation{}, err
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return Confirmation{}, fmt.Errorf("%w: transaction %s reverted in block %s", ErrRejected, p.TxHash, receipt.BlockNumber)
	}
	block := receipt.BlockNumber
	if err := r.waitDepth(ctx, block.Uint64()); err != nil {
		return Confirmation{}, err
	}

	id, ok, err := r.idByHash(ctx, p.DocHash, block)
	if err != nil {
		return Confirmation{}, fmt.Errorf("%w: read back id: %v", ErrIndeterminate, err)
	}
	if !ok {
		return Confirmation{}, fmt.Errorf("%w: no id for %s after transaction %s", ErrIndeterminate, p.DocHash, p.TxHash)
	}
	rec, err := r.recordByID(ctx, id, block)
	if err != nil {
		return Confirmation{}, fmt.Errorf("%w: read back record %d: %v", ErrIndeterminate, id, err)
	}
	if !rec.Exists {
		return Confirmation{}, fmt.Errorf("%w: record %d missing after transaction %s", ErrIndeterminate, id, p.TxHash)
	}

	return Confirmation{
		ID:              id,
		CreatedAtMillis: rec.CreatedAtMillis,
		TxHash:          p.TxHash,
		BlockNumber:     block.Uint64(),
	}, nil
}

// waitMined polls for the receipt until ctx expires. Lookup errors other than
// not-found are treated as transient, as bind.WaitMined does.
func (r *EthRegistry) waitMined(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	var lastErr error
	for {
		receipt, err := r.chain.TransactionReceipt(ctx, txHash)
		if err == nil && receipt != nil {
			return receipt, nil
		}
		if err != nil && !errors.Is(err, ethereum.NotFound) {
			lastErr = err
		}

		select {
		case <-ctx.Done():
			if lastErr != nil {
				return nil, fmt.Errorf("%w: waiting for %s: %v (last error: %v)", ErrIndeterminate, txHash.Hex(), ctx.Err(), lastErr)
			}
			return nil, fmt.Errorf("%w: waiting for %s: %v", ErrIndeterminate, txHash.Hex(), ctx.Err())
		case <-ticker.C:
		}
	}
}

func (r *EthRegistry) waitDepth(ctx context.Context, minedAt uint64) error {
	if r.confirmations <= 1 {
		return nil
	}
	target := minedAt + r.confirmations - 1

	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()
	for {
		head, err := r.chain.BlockNumber(ctx)
		if err == nil && head >= target {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: waiting for %d confirmations: %v", ErrIndeterminate, r.confirmations, ctx.Err())
		case <-ticker.C:
		}
	}
}

func callOpts(ctx context.Context, block *big.Int) *bind.CallOpts {
	return &bind.CallOpts{Context: ctx, BlockNumber: block}
}

// classify maps a contract call error onto ErrRejected or ErrUnavailable.
func classify(method string, err error) error {
	if isRevert(err) {
		return fmt.Errorf("%w: %s: %v", ErrRejected, method, err)
	}
	return fmt.Errorf("%w: %s: %v", ErrUnavailable, method, err)
}

func isRevert(err error) bool {
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) && rpcErr.ErrorCode() == revertErrorCode {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "execution reverted") || strings.Contains(msg, "vm execution error")
}
