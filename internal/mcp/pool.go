package mcp

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Pool holds client connections keyed by server name. Concurrent
// Connect calls for the same name share one handshake.
type Pool struct {
	version string
	clients sync.Map // map[string]*Client
	group   singleflight.Group
	mu      sync.Mutex
}

// NewPool creates an empty pool whose clients report version.
func NewPool(version string) *Pool {
	return &Pool{version: version}
}

// Connect returns the client for config.Name, connecting it first if
// needed.
func (p *Pool) Connect(ctx context.Context, config ServerConfig) (*Client, error) {
	if c, ok := p.clients.Load(config.Name); ok {
		return c.(*Client), nil
	}

	result, err, _ := p.group.Do(config.Name, func() (any, error) {
		if c, ok := p.clients.Load(config.Name); ok {
			return c.(*Client), nil
		}
		client := NewClient(config, p.version)
		if err := client.Connect(ctx); err != nil {
			return nil, fmt.Errorf("pool connect %s: %w", config.Name, err)
		}
		p.clients.Store(config.Name, client)
		return client, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*Client), nil
}

// Get returns a connected client by server name.
func (p *Pool) Get(name string) (*Client, error) {
	c, ok := p.clients.Load(name)
	if !ok {
		return nil, fmt.Errorf("mcp server %q not connected", name)
	}
	return c.(*Client), nil
}

// All returns the connected clients ordered by name.
func (p *Pool) All() []*Client {
	var clients []*Client
	p.clients.Range(func(_, value any) bool {
		clients = append(clients, value.(*Client))
		return true
	})
	sort.Slice(clients, func(i, j int) bool { return clients[i].Name() < clients[j].Name() })
	return clients
}

// Close closes every connection and empties the pool.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var firstErr error
	p.clients.Range(func(key, value any) bool {
		if err := value.(*Client).Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close %s: %w", key.(string), err)
		}
		p.clients.Delete(key)
		return true
	})
	return firstErr
}
