package evm

import (
	"encoding/json"
	"math/big"
	"os"
	"reflect"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/pkg/errors"

	"github.com/Evan-Kim2028/duckdb-pipe/config"
)

// metadataFields are the log columns present in every event dataset
var metadataFields = []arrow.Field{
	{Name: "block_number", Type: arrow.PrimitiveTypes.Uint64},
	{Name: "block_hash", Type: arrow.BinaryTypes.String},
	{Name: "transaction_hash", Type: arrow.BinaryTypes.String},
	{Name: "transaction_index", Type: arrow.PrimitiveTypes.Uint64},
	{Name: "log_index", Type: arrow.PrimitiveTypes.Uint64},
	{Name: "address", Type: arrow.BinaryTypes.String},
	{Name: "removed", Type: arrow.FixedWidthTypes.Boolean},
}

// EventSpec binds one contract event to the dataset it produces
type EventSpec struct {
	Name     string
	Contract string
	Address  common.Address
	Event    abi.Event

	indexed abi.Arguments
	schema  *arrow.Schema
}

// Schema returns the Arrow schema of the event's dataset
func (s *EventSpec) Schema() *arrow.Schema {
	return s.schema
}

// LoadEventSpecs resolves the configured contracts into event specs. Event
// names must be unique across contracts since they name the datasets.
func LoadEventSpecs(contracts []config.ContractConfig) ([]*EventSpec, error) {
	var specs []*EventSpec
	seen := make(map[string]string)

	for _, c := range contracts {
		if !common.IsHexAddress(c.Address) {
			return nil, errors.Errorf("contract %s: invalid address %q", c.Name, c.Address)
		}
		parsed, err := parseABI(c)
		if err != nil {
			return nil, errors.Wrapf(err, "contract %s", c.Name)
		}

		for _, name := range c.Events {
			ev, ok := parsed.Events[name]
			if !ok {
				return nil, errors.Errorf("contract %s: event %s not found in ABI", c.Name, name)
			}
			if ev.Anonymous {
				return nil, errors.Errorf("contract %s: anonymous event %s cannot be filtered by topic", c.Name, name)
			}
			if other, dup := seen[name]; dup {
				return nil, errors.Errorf("event %s configured for both %s and %s", name, other, c.Name)
			}
			seen[name] = c.Name
			specs = append(specs, newEventSpec(c.Name, common.HexToAddress(c.Address), ev))
		}
	}
	return specs, nil
}

func parseABI(c config.ContractConfig) (abi.ABI, error) {
	raw := c.ABI
	if raw == "" && c.ABIFile != "" {
		data, err := os.ReadFile(c.ABIFile)
		if err != nil {
			return abi.ABI{}, errors.Wrap(err, "failed to read ABI file")
		}
		raw = string(data)
	}
	if raw == "" {
		return abi.ABI{}, errors.New("no ABI configured")
	}
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		return abi.ABI{}, errors.Wrap(err, "failed to parse ABI")
	}
	return parsed, nil
}

func newEventSpec(contract string, addr common.Address, ev abi.Event) *EventSpec {
	fields := append([]arrow.Field{}, metadataFields...)
	var indexed abi.Arguments
	for _, arg := range ev.Inputs {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
		fields = append(fields, arrow.Field{
			Name:     arg.Name,
			Type:     columnType(arg),
			Nullable: true,
		})
	}
	return &EventSpec{
		Name:     ev.Name,
		Contract: contract,
		Address:  addr,
		Event:    ev,
		indexed:  indexed,
		schema:   arrow.NewSchema(fields, nil),
	}
}

// columnType maps an ABI argument to its column type. Indexed dynamic values
// only exist as their topic hash.
func columnType(arg abi.Argument) arrow.DataType {
	switch arg.Type.T {
	case abi.UintTy:
		if arg.Type.Size <= 64 {
			return arrow.PrimitiveTypes.Uint64
		}
	case abi.IntTy:
		if arg.Type.Size <= 64 {
			return arrow.PrimitiveTypes.Int64
		}
	case abi.BoolTy:
		return arrow.FixedWidthTypes.Boolean
	}
	return arrow.BinaryTypes.String
}

// decode turns a log into a row following the event's schema
func (s *EventSpec) decode(lg types.Log) ([]any, error) {
	if len(lg.Topics) == 0 || lg.Topics[0] != s.Event.ID {
		return nil, errors.New("log topic does not match event")
	}

	values := make(map[string]any, len(s.Event.Inputs))
	if err := s.Event.Inputs.NonIndexed().UnpackIntoMap(values, lg.Data); err != nil {
		return nil, errors.Wrap(err, "failed to unpack data")
	}
	if err := abi.ParseTopicsIntoMap(values, s.indexed, lg.Topics[1:]); err != nil {
		return nil, errors.Wrap(err, "failed to parse topics")
	}

	row := []any{
		lg.BlockNumber,
		lg.BlockHash.Hex(),
		lg.TxHash.Hex(),
		uint64(lg.TxIndex),
		uint64(lg.Index),
		lg.Address.Hex(),
		lg.Removed,
	}
	for _, arg := range s.Event.Inputs {
		v, err := columnValue(arg, values[arg.Name])
		if err != nil {
			return nil, errors.Wrapf(err, "argument %s", arg.Name)
		}
		row = append(row, v)
	}
	return row, nil
}

// columnValue converts a decoded ABI value into the Go type its column expects
func columnValue(arg abi.Argument, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	if h, ok := v.(common.Hash); ok && arg.Indexed && !isStatic(arg.Type) {
		return h.Hex(), nil
	}

	switch columnType(arg) {
	case arrow.PrimitiveTypes.Uint64:
		// uint8..uint64 decode natively, odd widths such as uint24 as *big.Int
		if b, ok := v.(*big.Int); ok {
			return b.Uint64(), nil
		}
		return v, nil
	case arrow.PrimitiveTypes.Int64:
		if b, ok := v.(*big.Int); ok {
			return b.Int64(), nil
		}
		return v, nil
	case arrow.FixedWidthTypes.Boolean:
		return v, nil
	}

	switch val := v.(type) {
	case *big.Int:
		return val.String(), nil
	case string:
		return val, nil
	case common.Address:
		return val.Hex(), nil
	case common.Hash:
		return val.Hex(), nil
	case []byte:
		return hexutil.Encode(val), nil
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Array && rv.Type().Elem().Kind() == reflect.Uint8 {
		b := make([]byte, rv.Len())
		reflect.Copy(reflect.ValueOf(b), rv)
		return hexutil.Encode(b), nil
	}

	data, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot encode %T", v)
	}
	return string(data), nil
}

func isStatic(t abi.Type) bool {
	switch t.T {
	case abi.StringTy, abi.BytesTy, abi.SliceTy, abi.ArrayTy, abi.TupleTy:
		return false
	}
	return true
}
