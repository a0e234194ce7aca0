// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package texshare

import "testing"

func TestRegistryCloseForgetsGenerations(t *testing.T) {
	reg := NewRegistry(nullBridge{}, nil)
	reg.generations["Cam1"] = 3
	reg.generations["Cam2"] = 1

	reg.Close()
	if n := len(reg.generations); n != 0 {
		t.Errorf("generations after Close = %d entries, want 0", n)
	}
}
