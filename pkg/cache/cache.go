// Package cache shares immutable base-state reads between simulation runs.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	pcommon "github.com/ethpandaops/execution-simulator/pkg/common"
	"github.com/ethpandaops/execution-simulator/pkg/simulator/state"
)

const (
	kindAccount = "account"
	kindStorage = "storage"

	resultHit   = "hit"
	resultMiss  = "miss"
	resultError = "error"

	opTimeout = 250 * time.Millisecond
)

// Cache stores account and storage reads of pinned blocks in redis. Entries
// are keyed by chain and block number, so a cached value never changes.
type Cache struct {
	log    logrus.FieldLogger
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// New creates a cache on top of client.
func New(log logrus.FieldLogger, client redis.UniversalClient, prefix string, ttl time.Duration) *Cache {
	return &Cache{
		log:    log.WithField("component", "cache"),
		client: client,
		prefix: prefix,
		ttl:    ttl,
	}
}

// Wrap returns a snapshot answering from the cache first and from snap on
// a miss. Redis failures fall through to snap.
func (c *Cache) Wrap(chainID uint64, snap state.Snapshot) state.Snapshot {
	return &snapshot{
		cache:   c,
		base:    snap,
		chainID: chainID,
		chain:   strconv.FormatUint(chainID, 10),
		block:   snap.Block().Number,
	}
}

func (c *Cache) accountKey(chainID, block uint64, addr common.Address) string {
	return fmt.Sprintf("%s:%d:%d:%s", c.prefix, chainID, block, addr.Hex())
}

func (c *Cache) storageKey(chainID, block uint64, addr common.Address, slot common.Hash) string {
	return fmt.Sprintf("%s:%d:%d:%s:%s", c.prefix, chainID, block, addr.Hex(), slot.Hex())
}

func (c *Cache) get(key string) ([]byte, bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	raw, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}

	if err != nil {
		return nil, false, err
	}

	return raw, true, nil
}

func (c *Cache) set(key string, value []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if err := c.client.Set(ctx, key, value, c.ttl).Err(); err != nil {
		c.log.WithError(err).WithField("key", key).Debug("Failed to write cache entry")
	}
}

// accountEntry is the cached form of an account read. Exists is false for
// accounts missing at the pinned block.
type accountEntry struct {
	Exists  bool           `json:"exists"`
	Balance *hexutil.U256  `json:"balance,omitempty"`
	Nonce   hexutil.Uint64 `json:"nonce,omitempty"`
	Code    hexutil.Bytes  `json:"code,omitempty"`
}

type snapshot struct {
	cache   *Cache
	base    state.Snapshot
	chainID uint64
	chain   string
	block   uint64
}

func (s *snapshot) Block() state.BlockContext {
	return s.base.Block()
}

func (s *snapshot) observe(kind, result string) {
	pcommon.StateCacheRequests.WithLabelValues(s.chain, kind, result).Inc()
}

func (s *snapshot) Account(addr common.Address) (*state.Account, error) {
	key := s.cache.accountKey(s.chainID, s.block, addr)

	raw, ok, err := s.cache.get(key)

	switch {
	case err != nil:
		s.observe(kindAccount, resultError)
		s.cache.log.WithError(err).Debug("Failed to read cache entry")
	case ok:
		var entry accountEntry
		if err := json.Unmarshal(raw, &entry); err == nil {
			s.observe(kindAccount, resultHit)

			return entry.account(), nil
		}

		s.observe(kindAccount, resultError)
	default:
		s.observe(kindAccount, resultMiss)
	}

	acc, err := s.base.Account(addr)
	if err != nil {
		return nil, err
	}

	if encoded, err := json.Marshal(newAccountEntry(acc)); err == nil {
		s.cache.set(key, encoded)
	}

	return acc, nil
}

func (s *snapshot) Storage(addr common.Address, slot common.Hash) (common.Hash, error) {
	key := s.cache.storageKey(s.chainID, s.block, addr, slot)

	raw, ok, err := s.cache.get(key)

	switch {
	case err != nil:
		s.observe(kindStorage, resultError)
		s.cache.log.WithError(err).Debug("Failed to read cache entry")
	case ok && len(raw) == common.HashLength:
		s.observe(kindStorage, resultHit)

		return common.BytesToHash(raw), nil
	case ok:
		s.observe(kindStorage, resultError)
	default:
		s.observe(kindStorage, resultMiss)
	}

	value, err := s.base.Storage(addr, slot)
	if err != nil {
		return common.Hash{}, err
	}

	s.cache.set(key, value.Bytes())

	return value, nil
}

func newAccountEntry(acc *state.Account) accountEntry {
	if acc == nil {
		return accountEntry{}
	}

	entry := accountEntry{
		Exists: true,
		Nonce:  hexutil.Uint64(acc.Nonce),
		Code:   acc.Code,
	}

	if acc.Balance != nil {
		entry.Balance = (*hexutil.U256)(acc.Balance)
	}

	return entry
}

func (e accountEntry) account() *state.Account {
	if !e.Exists {
		return nil
	}

	acc := &state.Account{
		Balance: new(uint256.Int),
		Nonce:   uint64(e.Nonce),
		Code:    e.Code,
	}

	if e.Balance != nil {
		acc.Balance.Set((*uint256.Int)(e.Balance))
	}

	return acc
}
