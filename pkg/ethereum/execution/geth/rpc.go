package geth

import (
	"context"
	"errors"
	"math/big"
	"strconv"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	pcommon "github.com/ethpandaops/execution-simulator/pkg/common"
)

const (
	statusError   = "error"
	statusSuccess = "success"
)

// observe records the duration and outcome of a single RPC call.
func (n *RPCNode) observe(method string, start time.Time, err error) {
	status := statusSuccess
	if err != nil {
		status = statusError
	}

	chainID := strconv.FormatUint(n.ChainID(), 10)

	pcommon.RPCCallDuration.WithLabelValues(chainID, n.config.Name, method, status).Observe(time.Since(start).Seconds())
	pcommon.RPCCallsTotal.WithLabelValues(chainID, n.config.Name, method, status).Inc()
}

// retry runs op with a per-attempt timeout, retrying transient failures.
// Not-found answers and cancellation of the parent context are permanent.
func (n *RPCNode) retry(ctx context.Context, op func(ctx context.Context) error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.MaxInterval = 2 * time.Second

	policy := backoff.WithContext(backoff.WithMaxRetries(b, n.config.MaxRetries), ctx)

	return backoff.Retry(func() error {
		attemptCtx := ctx

		if n.config.RequestTimeout > 0 {
			var cancel context.CancelFunc

			attemptCtx, cancel = context.WithTimeout(ctx, n.config.RequestTimeout)
			defer cancel()
		}

		err := op(attemptCtx)
		if err == nil {
			return nil
		}

		if errors.Is(err, ethereum.NotFound) || ctx.Err() != nil {
			return backoff.Permanent(err)
		}

		n.log.WithError(err).Debug("RPC call failed, will retry")

		return err
	}, policy)
}

func (n *RPCNode) headerByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	var header *types.Header

	err := n.retry(ctx, func(ctx context.Context) error {
		start := time.Now()

		h, err := n.client.HeaderByNumber(ctx, number)

		n.observe("eth_getBlockByNumber", start, err)

		header = h

		return err
	})

	return header, err
}

func (n *RPCNode) balanceAt(ctx context.Context, addr common.Address, number *big.Int) (*big.Int, error) {
	var balance *big.Int

	err := n.retry(ctx, func(ctx context.Context) error {
		start := time.Now()

		b, err := n.client.BalanceAt(ctx, addr, number)

		n.observe("eth_getBalance", start, err)

		balance = b

		return err
	})

	return balance, err
}

func (n *RPCNode) nonceAt(ctx context.Context, addr common.Address, number *big.Int) (uint64, error) {
	var nonce uint64

	err := n.retry(ctx, func(ctx context.Context) error {
		start := time.Now()

		v, err := n.client.NonceAt(ctx, addr, number)

		n.observe("eth_getTransactionCount", start, err)

		nonce = v

		return err
	})

	return nonce, err
}

func (n *RPCNode) codeAt(ctx context.Context, addr common.Address, number *big.Int) ([]byte, error) {
	var code []byte

	err := n.retry(ctx, func(ctx context.Context) error {
		start := time.Now()

		c, err := n.client.CodeAt(ctx, addr, number)

		n.observe("eth_getCode", start, err)

		code = c

		return err
	})

	return code, err
}

func (n *RPCNode) storageAt(ctx context.Context, addr common.Address, slot common.Hash, number *big.Int) (common.Hash, error) {
	var value common.Hash

	err := n.retry(ctx, func(ctx context.Context) error {
		start := time.Now()

		raw, err := n.client.StorageAt(ctx, addr, slot, number)

		n.observe("eth_getStorageAt", start, err)

		value = common.BytesToHash(raw)

		return err
	})

	return value, err
}
