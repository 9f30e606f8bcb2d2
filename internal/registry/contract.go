package registry

import (
	"fmt"
	"math"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/core/types"
)

const (
	methodTotal      = "getTotalRegistered"
	methodGetDoc     = "getDoc"
	methodIsRegister = "isDocRegistered"
	methodIDByHash   = "getIdByHash"
	methodRegister   = "registerDoc"
)

// registryABI is the subset of the DocumentRegistry contract this service calls.
const registryABI = `[
	{"type":"function","name":"getTotalRegistered","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"getDoc","stateMutability":"view","inputs":[{"name":"id","type":"uint256"}],"outputs":[{"name":"docHash","type":"bytes32"},{"name":"createdAt","type":"uint256"},{"name":"exists","type":"bool"}]},
	{"type":"function","name":"isDocRegistered","stateMutability":"view","inputs":[{"name":"docHash","type":"bytes32"}],"outputs":[{"name":"","type":"bool"}]},
	{"type":"function","name":"getIdByHash","stateMutability":"view","inputs":[{"name":"docHash","type":"bytes32"}],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"registerDoc","stateMutability":"nonpayable","inputs":[{"name":"docHash","type":"bytes32"}],"outputs":[]}
]`

var registryMeta = &bind.MetaData{ABI: registryABI}

// contractCaller is the part of *bind.BoundContract the registry uses.
type contractCaller interface {
	Call(opts *bind.CallOpts, results *[]interface{}, method string, params ...interface{}) error
	Transact(opts *bind.TransactOpts, method string, params ...interface{}) (*types.Transaction, error)
}

func outputs(method string, out []interface{}, n int) error {
	if len(out) < n {
		return fmt.Errorf("%s: want %d outputs, got %d", method, n, len(out))
	}
	return nil
}

func asBig(v interface{}) *big.Int {
	return *abi.ConvertType(v, new(*big.Int)).(**big.Int)
}

func asBytes32(v interface{}) [32]byte {
	return *abi.ConvertType(v, new([32]byte)).(*[32]byte)
}

func asBool(v interface{}) bool {
	return *abi.ConvertType(v, new(bool)).(*bool)
}

// toUint64 narrows a uint256 without silent truncation.
func toUint64(field string, n *big.Int) (uint64, error) {
	if n == nil {
		return 0, fmt.Errorf("%s: missing value", field)
	}
	if n.Sign() < 0 || !n.IsUint64() {
		return 0, fmt.Errorf("%s: %s does not fit in uint64", field, n.String())
	}
	return n.Uint64(), nil
}

// secondsToMillis scales an on-chain timestamp to milliseconds since epoch.
func secondsToMillis(n *big.Int) (int64, error) {
	s, err := toUint64("createdAt", n)
	if err != nil {
		return 0, err
	}
	if s > math.MaxInt64/1000 {
		return 0, fmt.Errorf("createdAt: %d seconds overflows milliseconds", s)
	}
	return int64(s) * 1000, nil
}
