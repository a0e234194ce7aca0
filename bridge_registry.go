// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package texshare

import (
	"fmt"
	"sort"
	"sync"
)

// Bridge names.
const (
	BridgeWGPU = "wgpu"
	BridgeSoft = "soft"
)

// BridgeFactory creates a bridge instance.
type BridgeFactory func() (Bridge, error)

var (
	bridgeRegistryMu sync.RWMutex
	bridgeFactories  = make(map[string]BridgeFactory)
	// Priority order for DefaultBridge (first that constructs wins).
	bridgePriority = []string{BridgeWGPU, BridgeSoft}
)

// RegisterBridge registers a bridge factory under name. Bridge packages call
// it from init(). A second registration under the same name replaces the
// first.
func RegisterBridge(name string, factory BridgeFactory) {
	bridgeRegistryMu.Lock()
	defer bridgeRegistryMu.Unlock()
	bridgeFactories[name] = factory
}

// UnregisterBridge removes a bridge factory. Useful in tests.
func UnregisterBridge(name string) {
	bridgeRegistryMu.Lock()
	defer bridgeRegistryMu.Unlock()
	delete(bridgeFactories, name)
}

// AvailableBridges returns the registered bridge names, sorted.
func AvailableBridges() []string {
	bridgeRegistryMu.RLock()
	defer bridgeRegistryMu.RUnlock()

	names := make([]string, 0, len(bridgeFactories))
	for name := range bridgeFactories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewBridge creates the bridge registered under name.
func NewBridge(name string) (Bridge, error) {
	bridgeRegistryMu.RLock()
	factory, ok := bridgeFactories[name]
	bridgeRegistryMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("texshare: bridge %q not registered (available: %v)", name, AvailableBridges())
	}
	return factory()
}

// DefaultBridge creates the best available bridge: wgpu when a device is
// available, the software bridge otherwise.
func DefaultBridge() (Bridge, error) {
	bridgeRegistryMu.RLock()
	defer bridgeRegistryMu.RUnlock()

	var errs []error
	for _, name := range bridgePriority {
		factory, ok := bridgeFactories[name]
		if !ok {
			continue
		}
		b, err := factory()
		if err == nil {
			return b, nil
		}
		Logger().Debug("texshare: bridge unavailable", "bridge", name, "err", err)
		errs = append(errs, err)
	}
	return nil, fmt.Errorf("texshare: no usable bridge registered: %v", errs)
}
