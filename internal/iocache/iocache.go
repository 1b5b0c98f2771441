// Package iocache persists unit flags and run history.
package iocache

import (
	"sync"

	"github.com/huangsam/spikewave/internal/contract"
)

// StoreManager holds the flag and run stores of the process.
type StoreManager struct {
	sync.RWMutex // Protects the store pointers during initialization
	flags        contract.FlagStore
	runs         contract.RunStore
}

var _ contract.StoreManager = &StoreManager{} // Compile-time check

// GetFlagStore returns the FlagStore.
func (mgr *StoreManager) GetFlagStore() contract.FlagStore {
	mgr.RLock()
	defer mgr.RUnlock()
	return mgr.flags
}

// GetRunStore returns the RunStore.
func (mgr *StoreManager) GetRunStore() contract.RunStore {
	mgr.RLock()
	defer mgr.RUnlock()
	return mgr.runs
}
