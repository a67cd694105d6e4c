package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"

	backoff "github.com/cenkalti/backoff/v4"
	"github.com/go-co-op/gocron"
	"github.com/sirupsen/logrus"
)

// MetadataService tracks the client version, chain id and sync status of a node.
type MetadataService struct {
	rpcClient *rpc.Client
	log       logrus.FieldLogger

	onReadyCallbacks []func(context.Context) error

	scheduler *gocron.Scheduler

	nodeVersion string
	chainID     uint64
	synced      bool

	mu sync.RWMutex
}

func NewMetadataService(log logrus.FieldLogger, rpcClient *rpc.Client) *MetadataService {
	return &MetadataService{
		rpcClient:        rpcClient,
		log:              log.WithField("module", "ethereum/execution/metadata"),
		onReadyCallbacks: []func(context.Context) error{},
	}
}

func (m *MetadataService) Start(ctx context.Context) error {
	m.log.Info("Starting metadata service")

	go func() {
		// Configure the exponential backoff
		b := backoff.NewExponentialBackOff()
		b.InitialInterval = 500 * time.Millisecond
		b.MaxInterval = 5 * time.Second
		b.MaxElapsedTime = 2 * time.Minute

		operation := func() error {
			if err := m.RefreshAll(ctx); err != nil {
				m.log.WithError(err).Warn("Failed to refresh metadata, will retry")

				return err
			}

			if err := m.Ready(ctx); err != nil {
				m.log.WithError(err).Warn("Metadata not ready yet, will retry")

				return err
			}

			return nil
		}

		if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
			m.log.WithError(err).Error("Failed to refresh metadata after retries")

			return
		}

		if err := m.updateSyncStatus(ctx); err != nil {
			m.log.WithError(err).Warn("Failed to update sync status")
		}

		for _, cb := range m.readyCallbacks() {
			if err := cb(ctx); err != nil {
				m.log.WithError(err).Warn("Failed to execute onReady callback")
			}
		}

		m.log.WithFields(logrus.Fields{
			"node_version": m.ClientVersion(),
			"chain_id":     m.ChainID(),
		}).Info("Metadata service initialization completed")
	}()

	s := gocron.NewScheduler(time.Local)

	if _, err := s.Every("5m").Do(func() {
		refreshCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := m.RefreshAll(refreshCtx); err != nil {
			m.log.WithError(err).Warn("Failed to refresh metadata")
		}
	}); err != nil {
		return err
	}

	if _, err := s.Every("15s").Do(func() {
		syncCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := m.updateSyncStatus(syncCtx); err != nil {
			m.log.WithError(err).Warn("Failed to update sync status")
		}
	}); err != nil {
		return err
	}

	s.StartAsync()

	m.mu.Lock()
	m.scheduler = s
	m.mu.Unlock()

	return nil
}

func (m *MetadataService) Name() Name {
	return "metadata"
}

func (m *MetadataService) Stop(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.scheduler != nil {
		m.scheduler.Stop()
		m.scheduler = nil
	}

	return nil
}

func (m *MetadataService) OnReady(_ context.Context, cb func(context.Context) error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.onReadyCallbacks = append(m.onReadyCallbacks, cb)
}

func (m *MetadataService) readyCallbacks() []func(context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.onReadyCallbacks
}

func (m *MetadataService) Ready(_ context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.nodeVersion == "" {
		return errors.New("node version is not available")
	}

	if m.chainID == 0 {
		return errors.New("chain ID is not available")
	}

	return nil
}

func (m *MetadataService) web3ClientVersion(ctx context.Context) (string, error) {
	var version string

	if err := m.rpcClient.CallContext(ctx, &version, "web3_clientVersion"); err != nil {
		return "", err
	}

	return version, nil
}

func (m *MetadataService) fetchChainID(ctx context.Context) (uint64, error) {
	var raw string

	if err := m.rpcClient.CallContext(ctx, &raw, "eth_chainId"); err != nil {
		return 0, err
	}

	m.log.WithField("raw_chain_id", raw).Debug("Retrieved chain ID from RPC")

	chainID, err := hexutil.DecodeUint64(raw)
	if err != nil {
		return 0, fmt.Errorf("failed to parse chain ID %s: %w", raw, err)
	}

	return chainID, nil
}

func (m *MetadataService) RefreshAll(ctx context.Context) error {
	version, err := m.web3ClientVersion(ctx)
	if err != nil {
		return fmt.Errorf("failed to get client version: %w", err)
	}

	chainID, err := m.fetchChainID(ctx)
	if err != nil {
		return fmt.Errorf("failed to get chain ID: %w", err)
	}

	m.mu.Lock()
	m.nodeVersion = version
	m.chainID = chainID
	m.mu.Unlock()

	return nil
}

// Client returns the detected execution client implementation.
func (m *MetadataService) Client() Client {
	return ClientFromString(m.ClientVersion())
}

func (m *MetadataService) ClientVersion() string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.nodeVersion
}

func (m *MetadataService) updateSyncStatus(ctx context.Context) error {
	var raw interface{}

	if err := m.rpcClient.CallContext(ctx, &raw, "eth_syncing"); err != nil {
		return err
	}

	var synced bool

	// eth_syncing returns false when not syncing, or an object when syncing
	switch v := raw.(type) {
	case bool:
		synced = !v
	case map[string]interface{}:
		synced = false
	default:
		return ethereum.NotFound
	}

	m.mu.Lock()
	m.synced = synced
	m.mu.Unlock()

	return nil
}

func (m *MetadataService) IsSynced() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.synced
}

func (m *MetadataService) ChainID() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.chainID
}
