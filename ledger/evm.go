package ledger

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
)

// tierContractABI covers the read-only surface of the tier contract. The
// engine never submits transactions, so mutating methods are omitted.
const tierContractABI = `[
  {"type":"function","name":"listActiveTierIds","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256[]"}]},
  {"type":"function","name":"getTierInfo","stateMutability":"view","inputs":[{"name":"tierId","type":"uint256"}],"outputs":[
    {"name":"name","type":"string"},
    {"name":"description","type":"string"},
    {"name":"price","type":"uint256"},
    {"name":"supply","type":"uint256"},
    {"name":"minted","type":"uint256"},
    {"name":"multiplier","type":"uint256"},
    {"name":"accessPlans","type":"string[]"},
    {"name":"active","type":"bool"},
    {"name":"special","type":"bool"}]},
  {"type":"function","name":"remainingSupply","stateMutability":"view","inputs":[{"name":"tierId","type":"uint256"}],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"ownerHasTier","stateMutability":"view","inputs":[{"name":"owner","type":"address"},{"name":"tierId","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
  {"type":"function","name":"userHighestTier","stateMutability":"view","inputs":[{"name":"owner","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"userMultiplier","stateMutability":"view","inputs":[{"name":"owner","type":"address"}],"outputs":[{"name":"","type":"uint256"}]}
]`

// ContractBackend is the slice of the Ethereum RPC surface the reader needs.
// *ethclient.Client satisfies it; tests supply an in-process fake.
type ContractBackend interface {
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// EVMReader resolves tier and ownership reads against the tier contract via
// eth_call. The reader holds no mutable state beyond its handles, so it is
// safe for concurrent use.
type EVMReader struct {
	backend  ContractBackend
	contract common.Address
	abi      abi.ABI
	timeout  time.Duration
}

// DefaultCallTimeout bounds a single eth_call when the caller does not
// configure one.
const DefaultCallTimeout = 5 * time.Second

// DialEVMReader connects to the given RPC endpoint and binds the tier
// contract at the supplied address.
func DialEVMReader(endpoint, contract string, timeout time.Duration) (*EVMReader, error) {
	trimmed := strings.TrimSpace(endpoint)
	if trimmed == "" {
		return nil, fmt.Errorf("ledger: rpc endpoint required")
	}
	if !common.IsHexAddress(strings.TrimSpace(contract)) {
		return nil, fmt.Errorf("ledger: invalid contract address %q", contract)
	}
	client, err := ethclient.Dial(trimmed)
	if err != nil {
		return nil, fmt.Errorf("ledger: dial %s: %w", trimmed, err)
	}
	return NewEVMReader(client, common.HexToAddress(strings.TrimSpace(contract)), timeout)
}

// NewEVMReader builds a reader over an existing backend. The backend's
// lifecycle (connect/disconnect) stays with the caller.
func NewEVMReader(backend ContractBackend, contract common.Address, timeout time.Duration) (*EVMReader, error) {
	if backend == nil {
		return nil, fmt.Errorf("ledger: backend required")
	}
	parsed, err := abi.JSON(strings.NewReader(tierContractABI))
	if err != nil {
		return nil, fmt.Errorf("ledger: parse contract abi: %w", err)
	}
	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}
	return &EVMReader{backend: backend, contract: contract, abi: parsed, timeout: timeout}, nil
}

func (r *EVMReader) call(ctx context.Context, method string, args ...interface{}) ([]interface{}, error) {
	data, err := r.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("ledger: pack %s: %w", method, err)
	}
	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	raw, err := r.backend.CallContract(callCtx, ethereum.CallMsg{To: &r.contract, Data: data}, nil)
	if err != nil {
		if strings.Contains(err.Error(), "execution reverted") {
			return nil, fmt.Errorf("%w: %s", ErrTierUnknown, method)
		}
		return nil, fmt.Errorf("ledger: call %s: %w", method, err)
	}
	values, err := r.abi.Unpack(method, raw)
	if err != nil {
		return nil, fmt.Errorf("ledger: unpack %s: %w", method, err)
	}
	return values, nil
}

// ListActiveTierIDs returns the identifiers of all tiers currently open for
// purchase or claim, as reported by the contract.
func (r *EVMReader) ListActiveTierIDs(ctx context.Context) ([]uint64, error) {
	values, err := r.call(ctx, "listActiveTierIds")
	if err != nil {
		return nil, err
	}
	raw, ok := values[0].([]*big.Int)
	if !ok {
		return nil, fmt.Errorf("ledger: unexpected id list type %T", values[0])
	}
	ids := make([]uint64, 0, len(raw))
	for _, id := range raw {
		v, err := toUint64(id)
		if err != nil {
			return nil, err
		}
		ids = append(ids, v)
	}
	return ids, nil
}

// GetTierInfo fetches the full native record for one tier.
func (r *EVMReader) GetTierInfo(ctx context.Context, id uint64) (TierInfo, error) {
	values, err := r.call(ctx, "getTierInfo", new(big.Int).SetUint64(id))
	if err != nil {
		return TierInfo{}, err
	}
	if len(values) != 9 {
		return TierInfo{}, fmt.Errorf("ledger: getTierInfo returned %d values", len(values))
	}
	info := TierInfo{ID: id}
	if info.Name, err = asString(values[0], "name"); err != nil {
		return TierInfo{}, err
	}
	if info.Description, err = asString(values[1], "description"); err != nil {
		return TierInfo{}, err
	}
	price, ok := values[2].(*big.Int)
	if !ok {
		return TierInfo{}, fmt.Errorf("ledger: unexpected price type %T", values[2])
	}
	info.PriceWei = new(big.Int).Set(price)
	if info.Supply, err = asUint64(values[3], "supply"); err != nil {
		return TierInfo{}, err
	}
	if info.Minted, err = asUint64(values[4], "minted"); err != nil {
		return TierInfo{}, err
	}
	multiplier, err := asUint64(values[5], "multiplier")
	if err != nil {
		return TierInfo{}, err
	}
	if multiplier > uint64(^uint32(0)) {
		return TierInfo{}, fmt.Errorf("ledger: multiplier %d out of range", multiplier)
	}
	info.Multiplier = uint32(multiplier)
	plans, ok := values[6].([]string)
	if !ok {
		return TierInfo{}, fmt.Errorf("ledger: unexpected plan list type %T", values[6])
	}
	info.AccessPlans = append([]string(nil), plans...)
	if info.Active, ok = values[7].(bool); !ok {
		return TierInfo{}, fmt.Errorf("ledger: unexpected active type %T", values[7])
	}
	if info.Special, ok = values[8].(bool); !ok {
		return TierInfo{}, fmt.Errorf("ledger: unexpected special type %T", values[8])
	}
	return info, nil
}

// GetRemainingSupply returns the unminted unit count for one tier.
func (r *EVMReader) GetRemainingSupply(ctx context.Context, id uint64) (uint64, error) {
	values, err := r.call(ctx, "remainingSupply", new(big.Int).SetUint64(id))
	if err != nil {
		return 0, err
	}
	return asUint64(values[0], "remainingSupply")
}

// OwnerHasTier reports whether the account currently holds the tier.
func (r *EVMReader) OwnerHasTier(ctx context.Context, account string, id uint64) (bool, error) {
	addr, err := parseAccount(account)
	if err != nil {
		return false, err
	}
	values, err := r.call(ctx, "ownerHasTier", addr, new(big.Int).SetUint64(id))
	if err != nil {
		return false, err
	}
	owned, ok := values[0].(bool)
	if !ok {
		return false, fmt.Errorf("ledger: unexpected ownership type %T", values[0])
	}
	return owned, nil
}

// GetUserHighestTier returns the contract's own view of the account's best
// tier. The engine re-derives this locally; the call exists for cross-checks.
func (r *EVMReader) GetUserHighestTier(ctx context.Context, account string) (uint64, error) {
	addr, err := parseAccount(account)
	if err != nil {
		return 0, err
	}
	values, err := r.call(ctx, "userHighestTier", addr)
	if err != nil {
		return 0, err
	}
	return asUint64(values[0], "userHighestTier")
}

// GetUserMultiplier returns the contract's scaled multiplier for the account.
func (r *EVMReader) GetUserMultiplier(ctx context.Context, account string) (uint32, error) {
	addr, err := parseAccount(account)
	if err != nil {
		return 0, err
	}
	values, err := r.call(ctx, "userMultiplier", addr)
	if err != nil {
		return 0, err
	}
	raw, err := asUint64(values[0], "userMultiplier")
	if err != nil {
		return 0, err
	}
	if raw > uint64(^uint32(0)) {
		return 0, fmt.Errorf("ledger: multiplier %d out of range", raw)
	}
	return uint32(raw), nil
}

func parseAccount(account string) (common.Address, error) {
	trimmed := strings.TrimSpace(account)
	if !common.IsHexAddress(trimmed) {
		return common.Address{}, fmt.Errorf("ledger: invalid account %q", account)
	}
	return common.HexToAddress(trimmed), nil
}

func asString(value interface{}, field string) (string, error) {
	s, ok := value.(string)
	if !ok {
		return "", fmt.Errorf("ledger: unexpected %s type %T", field, value)
	}
	return s, nil
}

func asUint64(value interface{}, field string) (uint64, error) {
	raw, ok := value.(*big.Int)
	if !ok {
		return 0, fmt.Errorf("ledger: unexpected %s type %T", field, value)
	}
	return toUint64(raw)
}

func toUint64(v *big.Int) (uint64, error) {
	if v == nil || v.Sign() < 0 || !v.IsUint64() {
		return 0, fmt.Errorf("ledger: value out of uint64 range")
	}
	return v.Uint64(), nil
}
