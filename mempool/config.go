package mempool

import "errors"

var (
	ErrEmptyMaxTxs    = errors.New("mempool: config MaxTxs must be positive")
	ErrEmptyMaxBytes  = errors.New("mempool: config MaxBytesBudget must be positive")
	ErrEmptyCacheSize = errors.New("mempool: config CacheSize must be positive")
)

// Config holds configuration for TxPool.
type Config struct {
	// MaxTxs must be positive to pass ValidateBasic. TxPool does not cap the
	// number of held txs by it; admission is bounded by MaxBytesBudget only.
	MaxTxs int

	// MaxBytesBudget bounds the sum of every held tx's size in bytes.
	MaxBytesBudget int64

	// CacheSize bounds the number of ids remembered by the recently-seen
	// filter, independent of how many txs currently sit in the queue.
	CacheSize int

	// Recheck re-runs application CheckTx against every tx remaining in the
	// queue after Update, dropping any that no longer validate.
	Recheck bool
}

// DefaultConfig returns a default configuration.
func DefaultConfig() *Config {
	return &Config{
		MaxTxs:         5000,
		MaxBytesBudget: 1024 * 1024 * 1024, // 1GiB
		CacheSize:      10000,
		Recheck:        true,
	}
}

// ValidateBasic performs basic validation of the config.
func (cfg *Config) ValidateBasic() error {
	if cfg.MaxTxs <= 0 {
		return ErrEmptyMaxTxs
	}
	if cfg.MaxBytesBudget <= 0 {
		return ErrEmptyMaxBytes
	}
	if cfg.CacheSize <= 0 {
		return ErrEmptyCacheSize
	}
	return nil
}
