package client

import (
	"context"
	"math/big"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/jrife/kite/kv/keys"
	"github.com/jrife/kite/utils/log"
	"github.com/jrife/kite/wire"
)

// Txn is one attempt of an optimistic transaction. Reads
// are served from a private cache, so re-reading a key
// always returns the value observed first, no matter what
// the store does in the meantime. Writes are buffered and
// sent only at commit; reads do not see them. At commit
// every read key becomes a check that its versionstamp is
// unchanged, which is where a conflicting writer is
// detected.
//
// The cache and buffer belong to one attempt. Do not keep
// a Txn after the transaction function returns.
type Txn struct {
	client    *Client
	reads     map[string]wire.Entry // encoded key -> entry at first read
	mutations []wire.Mutation
}

func newTxn(client *Client) *Txn {
	return &Txn{
		client: client,
		reads:  map[string]wire.Entry{},
	}
}

// Get reads one key at the transaction's snapshot
func (txn *Txn) Get(ctx context.Context, key keys.Key) (wire.Entry, error) {
	encoded := keys.EncodeString(key)

	if entry, found := txn.reads[encoded]; found {
		return entry, nil
	}

	entry, err := txn.client.gateway.Get(ctx, key)

	if err != nil {
		return wire.Entry{}, wrapError("could not get entry", err)
	}

	txn.reads[encoded] = entry

	return entry, nil
}

// BatchGet reads several keys at the transaction's
// snapshot, fetching the ones not yet cached in one round
// trip. The result preserves the order of ks and includes
// absent entries.
func (txn *Txn) BatchGet(ctx context.Context, ks []keys.Key) ([]wire.Entry, error) {
	entries := make([]wire.Entry, len(ks))
	var missing []keys.Key
	var missingAt []int

	for i, key := range ks {
		if entry, found := txn.reads[keys.EncodeString(key)]; found {
			entries[i] = entry

			continue
		}

		missing = append(missing, key)
		missingAt = append(missingAt, i)
	}

	if len(missing) > 0 {
		fetched, err := txn.client.gateway.BatchGet(ctx, missing)

		if err != nil {
			return nil, wrapError("could not get entries", err)
		}

		for i, entry := range fetched {
			// The same key may repeat in ks; first fetch wins
			encoded := keys.EncodeString(missing[i])

			if cached, found := txn.reads[encoded]; found {
				entry = cached
			} else {
				txn.reads[encoded] = entry
			}

			entries[missingAt[i]] = entry
		}
	}

	return entries, nil
}

// Set buffers a set mutation
func (txn *Txn) Set(key keys.Key, value wire.Value, options ...SetOption) {
	mutation := wire.Mutation{Key: key, Op: wire.OpSet, Value: value}

	for _, option := range options {
		option(&mutation)
	}

	txn.mutations = append(txn.mutations, mutation)
}

// Delete buffers a delete mutation
func (txn *Txn) Delete(key keys.Key) {
	txn.mutations = append(txn.mutations, wire.Mutation{Key: key, Op: wire.OpDelete})
}

// Sum buffers a sum mutation
func (txn *Txn) Sum(key keys.Key, delta *big.Int) {
	txn.mutations = append(txn.mutations, wire.Mutation{Key: key, Op: wire.OpSum, Value: wire.BigInt(delta)})
}

// Max buffers a max mutation
func (txn *Txn) Max(key keys.Key, value *big.Int) {
	txn.mutations = append(txn.mutations, wire.Mutation{Key: key, Op: wire.OpMax, Value: wire.BigInt(value)})
}

// Min buffers a min mutation
func (txn *Txn) Min(key keys.Key, value *big.Int) {
	txn.mutations = append(txn.mutations, wire.Mutation{Key: key, Op: wire.OpMin, Value: wire.BigInt(value)})
}

// Append buffers an append mutation
func (txn *Txn) Append(key keys.Key, values ...wire.Value) {
	txn.mutations = append(txn.mutations, wire.Mutation{Key: key, Op: wire.OpAppend, Values: values})
}

// Prepend buffers a prepend mutation
func (txn *Txn) Prepend(key keys.Key, values ...wire.Value) {
	txn.mutations = append(txn.mutations, wire.Mutation{Key: key, Op: wire.OpPrepend, Values: values})
}

// commit derives one check per distinct key read and sends
// them with the buffered mutations as a single atomic
// operation
func (txn *Txn) commit(ctx context.Context) (CommitResult, error) {
	op := txn.client.Atomic()

	encodedKeys := make([]string, 0, len(txn.reads))

	for encoded := range txn.reads {
		encodedKeys = append(encodedKeys, encoded)
	}

	sort.Strings(encodedKeys)

	for _, encoded := range encodedKeys {
		entry := txn.reads[encoded]
		op.Check(entry.Key, entry.Versionstamp)
	}

	op.mutations = txn.mutations

	return op.Commit(ctx)
}

// TxnOptions configures the transaction retry loop
type TxnOptions struct {
	// MaxRetries bounds retries after the first attempt.
	// Zero means the client default; a negative value
	// disables retries.
	MaxRetries int
	// RetryDelay is the base delay: attempt n waits
	// n * RetryDelay before the next attempt. Zero means
	// the client default.
	RetryDelay time.Duration
}

// TxnResult is the discriminated outcome of a transaction.
// Committed false means every attempt conflicted; that is
// an outcome, not an error.
type TxnResult struct {
	Committed    bool
	Value        interface{}
	Versionstamp wire.Versionstamp
	// Attempts is how many times the transaction function
	// ran
	Attempts int
}

// Transaction runs fn with snapshot isolation and commits
// its buffered writes if no key it read changed in the
// meantime. On conflict the whole function is re-run
// against a fresh snapshot, with linear backoff and a
// bounded attempt count; re-execution may observe
// different values and write differently. An error from fn
// aborts immediately, bypassing commit, and propagates
// unmodified.
func (client *Client) Transaction(ctx context.Context, fn func(txn *Txn) (interface{}, error), options TxnOptions) (TxnResult, error) {
	maxRetries := options.MaxRetries

	if maxRetries == 0 {
		maxRetries = client.config.MaxRetries
	}

	if maxRetries < 0 {
		maxRetries = 0
	}

	retryDelay := options.RetryDelay

	if retryDelay <= 0 {
		retryDelay = client.config.RetryDelay
	}

	logger := log.WithContext(ctx, client.logger).With(zap.String("operation", "Transaction"))

	for attempt := 1; ; attempt++ {
		txn := newTxn(client)

		value, err := fn(txn)

		if err != nil {
			return TxnResult{Attempts: attempt}, err
		}

		result, err := txn.commit(ctx)

		if err != nil {
			return TxnResult{Attempts: attempt}, err
		}

		if result.Applied {
			return TxnResult{
				Committed:    true,
				Value:        value,
				Versionstamp: result.Versionstamp,
				Attempts:     attempt,
			}, nil
		}

		if attempt > maxRetries {
			logger.Debug("conflict, attempts exhausted", zap.Int("attempts", attempt))

			return TxnResult{Committed: false, Attempts: attempt}, nil
		}

		delay := time.Duration(attempt) * retryDelay
		logger.Debug("conflict, retrying", zap.Int("attempt", attempt), zap.Duration("delay", delay))

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return TxnResult{Attempts: attempt}, ctx.Err()
		}
	}
}
