package compliance

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcp-compliance-tester/internal/client"
)

func TestInventoryCachesListings(t *testing.T) {
	mock := &client.MockClient{
		ListToolsFunc: func(ctx context.Context) ([]client.Tool, error) {
			return []client.Tool{{Name: "echo"}}, nil
		},
	}
	inv := NewInventory(mock)

	for i := 0; i < 3; i++ {
		tools, err := inv.Tools(context.Background())
		require.NoError(t, err)
		require.Len(t, tools, 1)
	}
	assert.Equal(t, 1, mock.CallCount("ListTools"))
}

func TestInventoryDoesNotCacheFailures(t *testing.T) {
	calls := 0
	mock := &client.MockClient{
		ListResourcesFunc: func(ctx context.Context) ([]client.Resource, error) {
			calls++
			if calls == 1 {
				return nil, client.NewError(client.CodeInternalError, "transient")
			}
			return []client.Resource{{URI: "file:///x"}}, nil
		},
	}
	inv := NewInventory(mock)

	_, err := inv.Resources(context.Background())
	require.Error(t, err)

	resources, err := inv.Resources(context.Background())
	require.NoError(t, err)
	assert.Len(t, resources, 1)
}

func TestInventoryPurge(t *testing.T) {
	mock := &client.MockClient{}
	inv := NewInventory(mock)

	_, err := inv.Prompts(context.Background())
	require.NoError(t, err)
	inv.Purge()
	_, err = inv.Prompts(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, mock.CallCount("ListPrompts"))
}
