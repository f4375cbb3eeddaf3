package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/treeline/rollup/internal/domain/aggregate"
	"github.com/treeline/rollup/internal/domain/tree"
	"github.com/treeline/rollup/internal/repository"
)

// NodeRepository is a mock for repository.NodeRepository.
type NodeRepository struct {
	mock.Mock
}

func (m *NodeRepository) Create(ctx context.Context, tenantID string, node *tree.Node) error {
	args := m.Called(ctx, tenantID, node)
	return args.Error(0)
}

func (m *NodeRepository) Get(ctx context.Context, tenantID, id string) (*tree.Node, error) {
	args := m.Called(ctx, tenantID, id)
	if node, ok := args.Get(0).(*tree.Node); ok {
		return node, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *NodeRepository) Delete(ctx context.Context, tenantID, id string) error {
	args := m.Called(ctx, tenantID, id)
	return args.Error(0)
}

func (m *NodeRepository) SetParent(ctx context.Context, tenantID, id string, parentID *string) error {
	args := m.Called(ctx, tenantID, id, parentID)
	return args.Error(0)
}

func (m *NodeRepository) SetType(ctx context.Context, tenantID, id, nodeType string) error {
	args := m.Called(ctx, tenantID, id, nodeType)
	return args.Error(0)
}

func (m *NodeRepository) Children(ctx context.Context, tenantID, parentID string) ([]tree.Node, error) {
	args := m.Called(ctx, tenantID, parentID)
	if nodes, ok := args.Get(0).([]tree.Node); ok {
		return nodes, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *NodeRepository) ListByType(ctx context.Context, tenantID, treeID, nodeType string) ([]tree.Node, error) {
	args := m.Called(ctx, tenantID, treeID, nodeType)
	if nodes, ok := args.Get(0).([]tree.Node); ok {
		return nodes, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *NodeRepository) BumpGeneration(ctx context.Context, tenantID, id string) error {
	args := m.Called(ctx, tenantID, id)
	return args.Error(0)
}

// ValueRepository is a mock for repository.ValueRepository.
type ValueRepository struct {
	mock.Mock
}

func (m *ValueRepository) PropertyValue(ctx context.Context, tenantID, nodeID, property string) (*string, error) {
	args := m.Called(ctx, tenantID, nodeID, property)
	if value, ok := args.Get(0).(*string); ok {
		return value, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *ValueRepository) SetProperty(ctx context.Context, tenantID, nodeID, property string, value *string) (bool, error) {
	args := m.Called(ctx, tenantID, nodeID, property, value)
	return args.Bool(0), args.Error(1)
}

func (m *ValueRepository) SetAggregate(ctx context.Context, tenantID, nodeID, property string, value *string) (bool, error) {
	args := m.Called(ctx, tenantID, nodeID, property, value)
	return args.Bool(0), args.Error(1)
}

func (m *ValueRepository) SetFormula(ctx context.Context, tenantID, nodeID, property string, value *string) (bool, error) {
	args := m.Called(ctx, tenantID, nodeID, property, value)
	return args.Bool(0), args.Error(1)
}

func (m *ValueRepository) VersionCount(ctx context.Context, tenantID, nodeID string) (int, error) {
	args := m.Called(ctx, tenantID, nodeID)
	return args.Int(0), args.Error(1)
}

// DefinitionRepository is a mock for repository.DefinitionRepository.
type DefinitionRepository struct {
	mock.Mock
}

func (m *DefinitionRepository) CreateAggregate(ctx context.Context, tenantID string, def *aggregate.Definition) error {
	args := m.Called(ctx, tenantID, def)
	return args.Error(0)
}

func (m *DefinitionRepository) GetAggregate(ctx context.Context, tenantID, id string) (*aggregate.Definition, error) {
	args := m.Called(ctx, tenantID, id)
	if def, ok := args.Get(0).(*aggregate.Definition); ok {
		return def, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *DefinitionRepository) DeleteAggregate(ctx context.Context, tenantID, id string) error {
	args := m.Called(ctx, tenantID, id)
	return args.Error(0)
}

func (m *DefinitionRepository) ListAggregates(ctx context.Context, tenantID string) ([]aggregate.Definition, error) {
	args := m.Called(ctx, tenantID)
	if defs, ok := args.Get(0).([]aggregate.Definition); ok {
		return defs, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *DefinitionRepository) ListAggregatesForTree(ctx context.Context, tenantID, treeID string) ([]aggregate.Definition, error) {
	args := m.Called(ctx, tenantID, treeID)
	if defs, ok := args.Get(0).([]aggregate.Definition); ok {
		return defs, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *DefinitionRepository) AggregatesBySource(ctx context.Context, tenantID, source string) ([]aggregate.Definition, error) {
	args := m.Called(ctx, tenantID, source)
	if defs, ok := args.Get(0).([]aggregate.Definition); ok {
		return defs, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *DefinitionRepository) CreateFormula(ctx context.Context, tenantID string, formula *aggregate.Formula) error {
	args := m.Called(ctx, tenantID, formula)
	return args.Error(0)
}

func (m *DefinitionRepository) GetFormula(ctx context.Context, tenantID, id string) (*aggregate.Formula, error) {
	args := m.Called(ctx, tenantID, id)
	if formula, ok := args.Get(0).(*aggregate.Formula); ok {
		return formula, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *DefinitionRepository) FormulaByName(ctx context.Context, tenantID, name string) (*aggregate.Formula, error) {
	args := m.Called(ctx, tenantID, name)
	if formula, ok := args.Get(0).(*aggregate.Formula); ok {
		return formula, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *DefinitionRepository) FormulasReferencing(ctx context.Context, tenantID, name string) ([]aggregate.Formula, error) {
	args := m.Called(ctx, tenantID, name)
	if formulas, ok := args.Get(0).([]aggregate.Formula); ok {
		return formulas, args.Error(1)
	}
	return nil, args.Error(1)
}

// LedgerRepository is a mock for repository.LedgerRepository.
type LedgerRepository struct {
	mock.Mock
}

func (m *LedgerRepository) Insert(ctx context.Context, tenantID, nodeID, definitionID string) (bool, error) {
	args := m.Called(ctx, tenantID, nodeID, definitionID)
	return args.Bool(0), args.Error(1)
}

func (m *LedgerRepository) Delete(ctx context.Context, tenantID, nodeID, definitionID string) error {
	args := m.Called(ctx, tenantID, nodeID, definitionID)
	return args.Error(0)
}

func (m *LedgerRepository) Exists(ctx context.Context, tenantID, nodeID, definitionID string) (bool, error) {
	args := m.Called(ctx, tenantID, nodeID, definitionID)
	return args.Bool(0), args.Error(1)
}

func (m *LedgerRepository) Count(ctx context.Context, tenantID string) (int, error) {
	args := m.Called(ctx, tenantID)
	return args.Int(0), args.Error(1)
}

func (m *LedgerRepository) ReapOrphans(ctx context.Context, tenantID string) (int, error) {
	args := m.Called(ctx, tenantID)
	return args.Int(0), args.Error(1)
}

// QueueRepository is a mock for repository.QueueRepository.
type QueueRepository struct {
	mock.Mock
}

func (m *QueueRepository) EnqueueNode(ctx context.Context, msg repository.NodeMessage) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

func (m *QueueRepository) EnqueueTenant(ctx context.Context, msg repository.TenantMessage) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

func (m *QueueRepository) LeaseNode(ctx context.Context, limit int) ([]repository.NodeDelivery, error) {
	args := m.Called(ctx, limit)
	if deliveries, ok := args.Get(0).([]repository.NodeDelivery); ok {
		return deliveries, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *QueueRepository) LeaseTenant(ctx context.Context, limit int) ([]repository.TenantDelivery, error) {
	args := m.Called(ctx, limit)
	if deliveries, ok := args.Get(0).([]repository.TenantDelivery); ok {
		return deliveries, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *QueueRepository) Ack(ctx context.Context, deliveryID int64) error {
	args := m.Called(ctx, deliveryID)
	return args.Error(0)
}

func (m *QueueRepository) Nack(ctx context.Context, deliveryID int64) error {
	args := m.Called(ctx, deliveryID)
	return args.Error(0)
}

// TenantRepository is a mock for repository.TenantRepository.
type TenantRepository struct {
	mock.Mock
}

func (m *TenantRepository) Create(ctx context.Context, tenantID, name string, precision int32) error {
	args := m.Called(ctx, tenantID, name, precision)
	return args.Error(0)
}

func (m *TenantRepository) Precision(ctx context.Context, tenantID string) (int32, error) {
	args := m.Called(ctx, tenantID)
	return args.Get(0).(int32), args.Error(1)
}

func (m *TenantRepository) SetPrecision(ctx context.Context, tenantID string, precision int32) error {
	args := m.Called(ctx, tenantID, precision)
	return args.Error(0)
}

func (m *TenantRepository) Exists(ctx context.Context, tenantID string) (bool, error) {
	args := m.Called(ctx, tenantID)
	return args.Bool(0), args.Error(1)
}
