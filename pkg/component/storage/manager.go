package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/kart-io/logger"

	"github.com/kart-io/docquery/pkg/infra/pool"
)

// Manager 管理已注册的存储客户端，负责集中健康检查与关闭。
// It is safe for concurrent use.
//
// Example usage:
//
//	mgr := storage.NewManager(nil)
//	mgr.Register("jobs", redisClient)
//	statuses := mgr.HealthCheckAll(ctx)
//	defer mgr.CloseAll()
type Manager struct {
	mu      sync.RWMutex
	clients map[string]Client
	order   []string
	pool    *pool.Pool
}

// NewManager 创建管理器。p 非空时健康检查在该池中并发执行，否则使用独立 goroutine。
func NewManager(p *pool.Pool) *Manager {
	return &Manager{
		clients: make(map[string]Client),
		pool:    p,
	}
}

// Register registers a client under a unique name.
func (m *Manager) Register(name string, client Client) error {
	if name == "" {
		return ErrInvalidConfig.WithMessage("client name cannot be empty")
	}
	if client == nil {
		return ErrInvalidConfig.WithMessage("client cannot be nil")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.clients[name]; exists {
		return ErrClientAlreadyExists.WithMessage(fmt.Sprintf("client '%s' is already registered", name))
	}
	m.clients[name] = client
	m.order = append(m.order, name)
	return nil
}

// Get retrieves a client by name.
func (m *Manager) Get(name string) (Client, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	client, exists := m.clients[name]
	if !exists {
		return nil, ErrClientNotFound.WithMessage(fmt.Sprintf("client '%s' not found", name))
	}
	return client, nil
}

// Names 按注册顺序返回客户端名称。
func (m *Manager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.order...)
}

// HealthCheckAll 并发检查所有客户端，结果按名称排序。
func (m *Manager) HealthCheckAll(ctx context.Context) []HealthStatus {
	m.mu.RLock()
	clients := make(map[string]Client, len(m.clients))
	for name, client := range m.clients {
		clients[name] = client
	}
	m.mu.RUnlock()

	statuses := make([]HealthStatus, 0, len(clients))
	var statusMu sync.Mutex
	var wg sync.WaitGroup

	for name, client := range clients {
		wg.Add(1)
		task := func() {
			defer wg.Done()
			status := HealthCheck(ctx, name, client)
			statusMu.Lock()
			statuses = append(statuses, status)
			statusMu.Unlock()
		}

		// 池满或已关闭时降级为直接创建 goroutine
		if m.pool == nil || m.pool.Submit(task) != nil {
			go task()
		}
	}

	wg.Wait()
	sort.Slice(statuses, func(i, j int) bool { return statuses[i].Name < statuses[j].Name })
	return statuses
}

// AllHealthy reports whether every registered client answers Ping.
func (m *Manager) AllHealthy(ctx context.Context) bool {
	for _, status := range m.HealthCheckAll(ctx) {
		if !status.Healthy {
			return false
		}
	}
	return true
}

// CloseAll 按注册的逆序关闭所有客户端，返回第一个错误。
func (m *Manager) CloseAll() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var firstErr error
	for i := len(m.order) - 1; i >= 0; i-- {
		name := m.order[i]
		if err := m.clients[name].Close(); err != nil {
			logger.Warnw("failed to close storage client", "name", name, "error", err.Error())
			if firstErr == nil {
				firstErr = fmt.Errorf("failed to close client '%s': %w", name, err)
			}
		}
	}
	m.clients = make(map[string]Client)
	m.order = nil
	return firstErr
}
