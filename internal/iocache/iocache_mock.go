package iocache

import (
	"time"

	"github.com/huangsam/spikewave/internal/contract"
	"github.com/huangsam/spikewave/schema"
	"github.com/stretchr/testify/mock"
)

// MockStoreManager is a mock implementation of StoreManager for testing.
type MockStoreManager struct {
	mock.Mock
}

var _ contract.StoreManager = &MockStoreManager{} // Compile-time check

// GetFlagStore implements the StoreManager interface.
func (m *MockStoreManager) GetFlagStore() contract.FlagStore {
	ret := m.Called()
	store, _ := ret.Get(0).(contract.FlagStore)
	return store
}

// GetRunStore implements the StoreManager interface.
func (m *MockStoreManager) GetRunStore() contract.RunStore {
	ret := m.Called()
	store, _ := ret.Get(0).(contract.RunStore)
	return store
}

// MockFlagStore is a mock implementation of FlagStore for testing.
type MockFlagStore struct {
	mock.Mock
}

var _ contract.FlagStore = &MockFlagStore{} // Compile-time check

// Get implements the FlagStore interface.
func (m *MockFlagStore) Get(unit schema.UnitKey) (schema.UnitFlag, bool, error) {
	args := m.Called(unit)
	return args.Get(0).(schema.UnitFlag), args.Bool(1), args.Error(2)
}

// Set implements the FlagStore interface.
func (m *MockFlagStore) Set(flag schema.UnitFlag) error {
	args := m.Called(flag)
	return args.Error(0)
}

// Clear implements the FlagStore interface.
func (m *MockFlagStore) Clear(unit schema.UnitKey) error {
	args := m.Called(unit)
	return args.Error(0)
}

// List implements the FlagStore interface.
func (m *MockFlagStore) List() ([]schema.UnitFlag, error) {
	args := m.Called()
	flags, _ := args.Get(0).([]schema.UnitFlag)
	return flags, args.Error(1)
}

// GetStatus implements the FlagStore interface.
func (m *MockFlagStore) GetStatus() (schema.FlagStatus, error) {
	args := m.Called()
	return args.Get(0).(schema.FlagStatus), args.Error(1)
}

// Close implements the FlagStore interface.
func (m *MockFlagStore) Close() error {
	args := m.Called()
	return args.Error(0)
}

// MockRunStore is a mock implementation of RunStore for testing.
type MockRunStore struct {
	mock.Mock
}

var _ contract.RunStore = &MockRunStore{} // Compile-time check

// BeginRun implements the RunStore interface.
func (m *MockRunStore) BeginRun(runUUID, session string, startTime time.Time, configParams map[string]any) (int64, error) {
	args := m.Called(runUUID, session, startTime, configParams)
	return args.Get(0).(int64), args.Error(1)
}

// RecordUnitResult implements the RunStore interface.
func (m *MockRunStore) RecordUnitResult(runID int64, result schema.UnitResult) error {
	args := m.Called(runID, result)
	return args.Error(0)
}

// RecordClusterSummaries implements the RunStore interface.
func (m *MockRunStore) RecordClusterSummaries(runID int64, rows []schema.ClusterSummaryRecord) error {
	args := m.Called(runID, rows)
	return args.Error(0)
}

// EndRun implements the RunStore interface.
func (m *MockRunStore) EndRun(runID int64, endTime time.Time, completed, skipped, failed int) error {
	args := m.Called(runID, endTime, completed, skipped, failed)
	return args.Error(0)
}

// GetStatus implements the RunStore interface.
func (m *MockRunStore) GetStatus() (schema.RunStatus, error) {
	args := m.Called()
	return args.Get(0).(schema.RunStatus), args.Error(1)
}

// GetAllRuns implements the RunStore interface.
func (m *MockRunStore) GetAllRuns() ([]schema.RunRecord, error) {
	args := m.Called()
	runs, _ := args.Get(0).([]schema.RunRecord)
	return runs, args.Error(1)
}

// GetAllUnitResults implements the RunStore interface.
func (m *MockRunStore) GetAllUnitResults() ([]schema.UnitResultRecord, error) {
	args := m.Called()
	results, _ := args.Get(0).([]schema.UnitResultRecord)
	return results, args.Error(1)
}

// GetAllClusterSummaries implements the RunStore interface.
func (m *MockRunStore) GetAllClusterSummaries() ([]schema.ClusterSummaryRecord, error) {
	args := m.Called()
	rows, _ := args.Get(0).([]schema.ClusterSummaryRecord)
	return rows, args.Error(1)
}

// Close implements the RunStore interface.
func (m *MockRunStore) Close() error {
	args := m.Called()
	return args.Error(0)
}
