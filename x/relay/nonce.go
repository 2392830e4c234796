package relay

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

var _ NonceSource = (*NonceManager)(nil)

// NonceManager hands out strictly increasing gateway nonces, seeded lazily
// from the pending pool. Concurrent submissions within a pass draw from it in
// submission order, so two transactions never share a nonce.
type NonceManager struct {
	gateway GatewayClient
	account common.Address

	mtx    sync.Mutex
	next   uint64
	seeded bool
}

func NewNonceManager(gateway GatewayClient, account common.Address) *NonceManager {
	return &NonceManager{
		gateway: gateway,
		account: account,
	}
}

func (m *NonceManager) Next(ctx context.Context) (uint64, error) {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	if !m.seeded {
		pending, err := m.gateway.PendingNonceAt(ctx, m.account)
		if err != nil {
			return 0, fmt.Errorf("seed nonce for %s: %w", m.account, err)
		}
		m.next = pending
		m.seeded = true
	}

	nonce := m.next
	m.next++
	return nonce, nil
}

// Reset discards the cached sequence. Called after a failed send, when the
// pending pool may no longer line up with handed-out nonces.
func (m *NonceManager) Reset() {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	m.seeded = false
}
