package client

import (
	"context"
	"math/big"
	"time"

	"go.uber.org/zap"

	"github.com/jrife/kite/kv/keys"
	"github.com/jrife/kite/utils/log"
	"github.com/jrife/kite/wire"
)

// CommitResult is the discriminated outcome of a commit.
// When Applied is false, none of the mutations were
// applied and no further detail is available: the protocol
// does not report which check failed.
type CommitResult struct {
	Applied      bool
	Versionstamp wire.Versionstamp
}

// AtomicOp accumulates checks and mutations for one
// all-or-nothing commit. Nothing is sent before Commit;
// until then the operation is a pure accumulator and may
// keep being extended. Mutations apply in submission
// order, repeats on one key allowed.
//
// An AtomicOp is not safe for use by more than one logical
// operation at a time.
type AtomicOp struct {
	client    *Client
	checks    []wire.Check
	mutations []wire.Mutation
	committed bool
}

// Atomic begins an atomic operation
func (client *Client) Atomic() *AtomicOp {
	return &AtomicOp{client: client}
}

// Check asserts that key's versionstamp is still
// versionstamp at commit time. The zero versionstamp
// asserts that the key is absent.
func (op *AtomicOp) Check(key keys.Key, versionstamp wire.Versionstamp) *AtomicOp {
	op.checks = append(op.checks, wire.Check{Key: key, Versionstamp: versionstamp})

	return op
}

// SetOption refines a set mutation
type SetOption func(*wire.Mutation)

// WithExpiry makes the entry vanish at the given time,
// judged by the store's clock
func WithExpiry(expiry time.Time) SetOption {
	return func(mutation *wire.Mutation) {
		mutation.Expiry = &expiry
	}
}

// Set replaces key's value
func (op *AtomicOp) Set(key keys.Key, value wire.Value, options ...SetOption) *AtomicOp {
	mutation := wire.Mutation{Key: key, Op: wire.OpSet, Value: value}

	for _, option := range options {
		option(&mutation)
	}

	op.mutations = append(op.mutations, mutation)

	return op
}

// Delete removes key
func (op *AtomicOp) Delete(key keys.Key) *AtomicOp {
	op.mutations = append(op.mutations, wire.Mutation{Key: key, Op: wire.OpDelete})

	return op
}

// Sum adds delta to key's big-integer value, treating an
// absent key as zero
func (op *AtomicOp) Sum(key keys.Key, delta *big.Int) *AtomicOp {
	op.mutations = append(op.mutations, wire.Mutation{Key: key, Op: wire.OpSum, Value: wire.BigInt(delta)})

	return op
}

// Max keeps the larger of key's stored value and value
func (op *AtomicOp) Max(key keys.Key, value *big.Int) *AtomicOp {
	op.mutations = append(op.mutations, wire.Mutation{Key: key, Op: wire.OpMax, Value: wire.BigInt(value)})

	return op
}

// Min keeps the smaller of key's stored value and value
func (op *AtomicOp) Min(key keys.Key, value *big.Int) *AtomicOp {
	op.mutations = append(op.mutations, wire.Mutation{Key: key, Op: wire.OpMin, Value: wire.BigInt(value)})

	return op
}

// Append appends values to key's list value
func (op *AtomicOp) Append(key keys.Key, values ...wire.Value) *AtomicOp {
	op.mutations = append(op.mutations, wire.Mutation{Key: key, Op: wire.OpAppend, Values: values})

	return op
}

// Prepend prepends values to key's list value
func (op *AtomicOp) Prepend(key keys.Key, values ...wire.Value) *AtomicOp {
	op.mutations = append(op.mutations, wire.Mutation{Key: key, Op: wire.OpPrepend, Values: values})

	return op
}

// Commit sends the accumulated checks and mutations in
// exactly one round trip. A network error leaves the
// operation uncommitted, so Commit may be called again;
// once a response arrives the operation is spent.
func (op *AtomicOp) Commit(ctx context.Context) (CommitResult, error) {
	if op.committed {
		return CommitResult{}, ErrCommitted
	}

	logger := log.WithContext(ctx, op.client.logger).With(
		zap.String("operation", "Commit"),
		zap.Int("checks", len(op.checks)),
		zap.Int("mutations", len(op.mutations)),
	)
	logger.Debug("start")

	response, err := op.client.gateway.Commit(ctx, wire.CommitRequest{
		Checks:    op.checks,
		Mutations: op.mutations,
	})

	logger.Debug("return", zap.Bool("applied", response.Applied), zap.Error(err))

	if err != nil {
		return CommitResult{}, wrapError("could not commit", err)
	}

	op.committed = true

	return CommitResult{Applied: response.Applied, Versionstamp: response.Versionstamp}, nil
}
