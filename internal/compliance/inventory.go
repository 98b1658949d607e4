package compliance

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/mcp-compliance-tester/internal/client"
)

// Inventory caches the server's advertised tools, resources, and prompts for
// the duration of a run, so the many checks that need "some tool name" or
// "some resource URI" do not each re-issue the list call. Entries expire so a
// long run does not act on stale listings.
type Inventory struct {
	c     client.Client
	tools *expirable.LRU[string, []client.Tool]
	res   *expirable.LRU[string, []client.Resource]
	prom  *expirable.LRU[string, []client.Prompt]
}

const inventoryTTL = 2 * time.Minute

// NewInventory creates an inventory backed by the given client.
func NewInventory(c client.Client) *Inventory {
	return &Inventory{
		c:     c,
		tools: expirable.NewLRU[string, []client.Tool](4, nil, inventoryTTL),
		res:   expirable.NewLRU[string, []client.Resource](4, nil, inventoryTTL),
		prom:  expirable.NewLRU[string, []client.Prompt](4, nil, inventoryTTL),
	}
}

// Tools returns the server's tool listing, cached.
func (inv *Inventory) Tools(ctx context.Context) ([]client.Tool, error) {
	if cached, ok := inv.tools.Get("tools"); ok {
		return cached, nil
	}
	listed, err := inv.c.ListTools(ctx)
	if err != nil {
		return nil, err
	}
	inv.tools.Add("tools", listed)
	return listed, nil
}

// Resources returns the server's resource listing, cached.
func (inv *Inventory) Resources(ctx context.Context) ([]client.Resource, error) {
	if cached, ok := inv.res.Get("resources"); ok {
		return cached, nil
	}
	listed, err := inv.c.ListResources(ctx)
	if err != nil {
		return nil, err
	}
	inv.res.Add("resources", listed)
	return listed, nil
}

// Prompts returns the server's prompt listing, cached.
func (inv *Inventory) Prompts(ctx context.Context) ([]client.Prompt, error) {
	if cached, ok := inv.prom.Get("prompts"); ok {
		return cached, nil
	}
	listed, err := inv.c.ListPrompts(ctx)
	if err != nil {
		return nil, err
	}
	inv.prom.Add("prompts", listed)
	return listed, nil
}

// Purge drops all cached listings.
func (inv *Inventory) Purge() {
	inv.tools.Purge()
	inv.res.Purge()
	inv.prom.Purge()
}
