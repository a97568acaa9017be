package pipeline

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnakeCase(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"blockNumber", "block_number"},
		{"block_number", "block_number"},
		{"l1_block_number", "l1_block_number"},
		{"txHash", "tx_hash"},
		{"tokenID", "token_id"},
		{"ERC20Token", "erc20_token"},
		{"HTTPServer", "http_server"},
		{"commitmentIndex", "commitment_index"},
		{"arg0", "arg0"},
		{"0x", "_0x"},
		{"fee-rate", "fee_rate"},
		{"a+b", "axb"},
		{"user@host", "userahost"},
		{"amount_", "amountx"},
		{"amount__", "amountxx"},
		{"fee__total", "fee_total"},
		{"fee  total", "fee_total"},
		{"_loadId", "_load_id"},
		{"  padded ", "padded"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, SnakeCase(tt.in))
		})
	}
}

func TestNormalizeIdentifiers(t *testing.T) {
	out, err := NormalizeIdentifiers([]string{"block_number", "l1_block_number", "txnHash"})
	require.NoError(t, err)
	assert.Equal(t, []string{"block_number", "l1_block_number", "txn_hash"}, out)

	_, err = NormalizeIdentifiers([]string{"block_number", "blockNumber"})
	assert.True(t, errors.Is(err, ErrColumnCollision))

	_, err = NormalizeIdentifiers([]string{"fee__total", "fee_total"})
	assert.True(t, errors.Is(err, ErrColumnCollision), "collapsed underscores collide")

	_, err = NormalizeIdentifiers([]string{"amount_", "amountx"})
	assert.True(t, errors.Is(err, ErrColumnCollision), "trailing underscores become x")

	_, err = NormalizeIdentifiers([]string{"_loadId"})
	assert.True(t, errors.Is(err, ErrReservedColumn))

	_, err = NormalizeIdentifiers([]string{"value", "   "})
	assert.True(t, errors.Is(err, ErrEmptyColumn))
}
