package service

import (
	"context"
	"sync"

	"github.com/Neggy5/OPTIMUS-PRIME-sub001/internal/models"
)

type mockInventory struct {
	nodes      []models.Node
	nodesErr   error
	allocs     map[int][]models.Allocation
	allocsErr  error
	allocCalls []int
}

func (m *mockInventory) ListNodes(_ context.Context) ([]models.Node, error) {
	return m.nodes, m.nodesErr
}

func (m *mockInventory) ListAllocations(_ context.Context, nodeID int) ([]models.Allocation, error) {
	m.allocCalls = append(m.allocCalls, nodeID)
	if m.allocsErr != nil {
		return nil, m.allocsErr
	}
	return m.allocs[nodeID], nil
}

type mockPanel struct {
	userErr   error
	serverErr error
	deleteErr error

	createUserCalls   int
	createServerCalls int
	deletedUsers      []int
	lastUser          *models.CreateUserRequest
	lastServer        *models.CreateServerRequest
}

func (m *mockPanel) CreateUser(_ context.Context, req *models.CreateUserRequest) (*models.PanelUser, error) {
	m.createUserCalls++
	m.lastUser = req
	if m.userErr != nil {
		return nil, m.userErr
	}
	return &models.PanelUser{ID: 42, Username: req.Username, Email: req.Email}, nil
}

func (m *mockPanel) DeleteUser(_ context.Context, userID int) error {
	m.deletedUsers = append(m.deletedUsers, userID)
	return m.deleteErr
}

func (m *mockPanel) CreateServer(_ context.Context, req *models.CreateServerRequest) (*models.PanelServer, error) {
	m.createServerCalls++
	m.lastServer = req
	if m.serverErr != nil {
		return nil, m.serverErr
	}
	return &models.PanelServer{
		ID:         99,
		Name:       req.Name,
		User:       req.User,
		Allocation: req.Allocation.Default,
	}, nil
}

type mockAllocator struct {
	alloc *models.NodeAllocation
	err   error
	calls int
}

func (m *mockAllocator) Select(_ context.Context) (*models.NodeAllocation, error) {
	m.calls++
	return m.alloc, m.err
}

type stageEntry struct {
	stage  string
	status string
}

type mockRecorder struct {
	mu      sync.Mutex
	created []*models.Deployment
	stages  []stageEntry
	err     error
}

func (m *mockRecorder) Create(_ context.Context, d *models.Deployment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.created = append(m.created, d)
	return m.err
}

func (m *mockRecorder) Update(_ context.Context, _ *models.Deployment) error {
	return m.err
}

func (m *mockRecorder) LogStage(_ context.Context, _, stage, status, _ string, _ map[string]interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stages = append(m.stages, stageEntry{stage: stage, status: status})
	return m.err
}
