package service

import (
	"context"
	"fmt"

	"github.com/Neggy5/OPTIMUS-PRIME-sub001/internal/models"
	"github.com/rs/zerolog/log"
)

// InventoryClient is the read side of the panel used for allocation.
type InventoryClient interface {
	ListNodes(ctx context.Context) ([]models.Node, error)
	ListAllocations(ctx context.Context, nodeID int) ([]models.Allocation, error)
}

// AllocationSelector picks a node and a free allocation from live panel
// inventory. First-fit on the first node only, unless scanAll is set.
type AllocationSelector struct {
	panel   InventoryClient
	scanAll bool
}

func NewAllocationSelector(panel InventoryClient, scanAll bool) *AllocationSelector {
	return &AllocationSelector{panel: panel, scanAll: scanAll}
}

// Select returns the first unassigned allocation. Two concurrent callers can
// race for the same allocation; the panel rejects the loser at server creation.
func (s *AllocationSelector) Select(ctx context.Context) (*models.NodeAllocation, error) {
	nodes, err := s.panel.ListNodes(ctx)
	if err != nil {
		return nil, fmt.Errorf("list nodes: %w", err)
	}
	if len(nodes) == 0 {
		return nil, fmt.Errorf("%w: panel has no nodes", ErrNoCapacity)
	}

	candidates := nodes[:1]
	if s.scanAll {
		candidates = nodes
	}

	for _, node := range candidates {
		allocs, err := s.panel.ListAllocations(ctx, node.ID)
		if err != nil {
			return nil, fmt.Errorf("list allocations for node %d: %w", node.ID, err)
		}

		if a, ok := firstFree(allocs); ok {
			log.Debug().Int("node", node.ID).Int("allocation", a.ID).Msg("allocation selected")
			return &models.NodeAllocation{
				NodeID:       node.ID,
				AllocationID: a.ID,
				IP:           a.IP,
				Port:         a.Port,
			}, nil
		}

		log.Warn().Int("node", node.ID).Msg("node has no free allocation")
	}

	return nil, fmt.Errorf("%w: all allocations assigned", ErrNoCapacity)
}

func firstFree(allocs []models.Allocation) (models.Allocation, bool) {
	for _, a := range allocs {
		if !a.Assigned {
			return a, true
		}
	}
	return models.Allocation{}, false
}
