package service

import (
	"context"
	"sort"
	"sync"

	"inline-media-backend/internal/events"
	"inline-media-backend/pkg/logger"
)

// WorkflowLister is a provider that can report its workflow catalog.
type WorkflowLister interface {
	Workflows(ctx context.Context) ([]string, error)
}

// WorkflowCatalog holds the workflows the generation provider announced.
type WorkflowCatalog struct {
	mu     sync.RWMutex
	names  []string
	bus    *events.Bus
	lister WorkflowLister
}

func NewWorkflowCatalog(bus *events.Bus, lister WorkflowLister) *WorkflowCatalog {
	return &WorkflowCatalog{bus: bus, lister: lister}
}

// Announce replaces the catalog and publishes workflows_updated.
func (c *WorkflowCatalog) Announce(names []string) []string {
	list := normalizeWorkflows(names)

	c.mu.Lock()
	c.names = list
	c.mu.Unlock()

	if c.bus != nil {
		c.bus.Emit(events.Event{
			Name: events.WorkflowsUpdated,
			Data: map[string]any{"workflows": list},
		})
	}
	return list
}

// List returns the announced catalog, asking the provider when nothing was announced.
func (c *WorkflowCatalog) List(ctx context.Context) ([]string, error) {
	c.mu.RLock()
	names := append([]string(nil), c.names...)
	c.mu.RUnlock()
	if len(names) > 0 || c.lister == nil {
		return names, nil
	}

	fetched, err := c.lister.Workflows(ctx)
	if err != nil {
		return nil, err
	}
	logger.Infof("从生成服务获取到 %d 个工作流", len(fetched))
	return c.Announce(fetched), nil
}

func normalizeWorkflows(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
