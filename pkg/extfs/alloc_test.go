// Copyright 2025 The gVisor Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package extfs

import (
	"context"
	"errors"
	"testing"

	"golang.org/x/sys/unix"
	"gvisor.dev/extfs/pkg/extfs/disklayout"
	"gvisor.dev/extfs/pkg/extfs/mkfs"
	"gvisor.dev/extfs/pkg/memdev"
)

// newMultiGroupFilesystem fabricates a two-group image.
func newMultiGroupFilesystem(t *testing.T) *Filesystem {
	t.Helper()
	const blocks = 16384
	dev := memdev.New(blocks * testBlockSize)
	err := mkfs.Format(dev, mkfs.Options{
		BlockSize:   testBlockSize,
		BlocksCount: blocks,
		InodesCount: 4096,
		Timestamp:   testTimestamp,
	})
	if err != nil {
		t.Fatalf("mkfs.Format failed: %v", err)
	}
	fs, err := NewFilesystem(dev)
	if err != nil {
		t.Fatalf("NewFilesystem failed: %v", err)
	}
	if fs.BlockGroupCount() != 2 {
		t.Fatalf("fabricated image has %d groups, want 2", fs.BlockGroupCount())
	}
	return fs
}

// TestAllocationStateRoundTrip: allocating and freeing a bit leaves all
// three accounting surfaces where they started, and setting an already
// current state writes nothing.
func TestAllocationStateRoundTrip(t *testing.T) {
	fs, _ := newTestFilesystem(t)
	before := fs.SuperBlock()

	fs.mu.Lock()
	defer fs.mu.Unlock()

	ino := fs.allocateInode(0, 0)
	if ino == 0 {
		t.Fatal("allocateInode returned 0")
	}
	if err := fs.setInodeAllocationState(ino, true); err != nil {
		t.Fatalf("allocating inode bit: %v", err)
	}
	// Same state again: must short-circuit without double counting.
	if err := fs.setInodeAllocationState(ino, true); err != nil {
		t.Fatalf("re-allocating inode bit: %v", err)
	}
	if got := fs.SuperBlock().FreeInodesCount; got != before.FreeInodesCount-1 {
		t.Errorf("free inodes is %d after one allocation, want %d", got, before.FreeInodesCount-1)
	}
	if err := fs.setInodeAllocationState(ino, false); err != nil {
		t.Fatalf("freeing inode bit: %v", err)
	}
	if got := fs.SuperBlock().FreeInodesCount; got != before.FreeInodesCount {
		t.Errorf("free inodes is %d after alloc+free, want %d", got, before.FreeInodesCount)
	}

	blocks, err := fs.allocateBlocks(1, 3)
	if err != nil {
		t.Fatalf("allocateBlocks failed: %v", err)
	}
	for _, b := range blocks {
		if err := fs.setBlockAllocationState(1, b, true); err != nil {
			t.Fatalf("allocating block bit: %v", err)
		}
	}
	if got := fs.SuperBlock().FreeBlocksCount; got != before.FreeBlocksCount-3 {
		t.Errorf("free blocks is %d after three allocations, want %d", got, before.FreeBlocksCount-3)
	}
	for _, b := range blocks {
		if err := fs.setBlockAllocationState(1, b, false); err != nil {
			t.Fatalf("freeing block bit: %v", err)
		}
	}
	if got := fs.SuperBlock().FreeBlocksCount; got != before.FreeBlocksCount {
		t.Errorf("free blocks is %d after alloc+free, want %d", got, before.FreeBlocksCount)
	}
}

// TestAllocatorSurfacesAgree drives the public create path and then
// compares every accounting surface with Check.
func TestAllocatorSurfacesAgree(t *testing.T) {
	fs, _ := newTestFilesystem(t)

	for i := 0; i < 8; i++ {
		name := string(rune('a' + i))
		if _, err := fs.CreateInode(fs.RootInode(), name, disklayout.ModeRegular|0644, uint32(i)*300); err != nil {
			t.Fatalf("CreateInode(%s) failed: %v", name, err)
		}
	}
	if _, err := fs.CreateDirectory(fs.RootInode(), "dir", 0755); err != nil {
		t.Fatalf("CreateDirectory failed: %v", err)
	}
	if err := fs.Check(context.Background()); err != nil {
		t.Errorf("Check failed: %v", err)
	}

	// The descriptor's free inode count must also match the inode
	// bitmap's population when compared directly.
	bgd, err := fs.BlockGroupDescriptor(1)
	if err != nil {
		t.Fatalf("BlockGroupDescriptor failed: %v", err)
	}
	used, err := fs.popcountBitmap(bgd.InodeBitmap, fs.sb.InodesPerGroup)
	if err != nil {
		t.Fatalf("popcountBitmap failed: %v", err)
	}
	if want := fs.sb.InodesPerGroup - uint32(bgd.FreeInodesCount); used != want {
		t.Errorf("inode bitmap popcount %d, descriptor implies %d", used, want)
	}
}

func TestAllocateBlocksNoSpace(t *testing.T) {
	fs, _ := newTestFilesystem(t)

	fs.mu.Lock()
	defer fs.mu.Unlock()

	free := uint32(0)
	if bgd, err := fs.blockGroupDescriptor(1); err == nil {
		free = uint32(bgd.FreeBlocksCount)
	}
	if _, err := fs.allocateBlocks(1, free+1); !errors.Is(err, unix.ENOSPC) {
		t.Errorf("allocateBlocks beyond capacity returned %v, want ENOSPC", err)
	}
}

// TestAllocateInodePicksFirstSuitableGroup: when the first group cannot
// host the inode, the scan settles on the first group that can - not
// the last.
func TestAllocateInodePicksFirstSuitableGroup(t *testing.T) {
	fs := newMultiGroupFilesystem(t)

	fs.mu.Lock()
	defer fs.mu.Unlock()

	ino := fs.allocateInode(0, 0)
	if got := fs.groupOfInode(ino); got != 1 {
		t.Fatalf("allocateInode placed inode %d in group %d, want group 1", ino, got)
	}

	// Starve group 1 of inodes; the scan must move on to group 2.
	fs.metaMu.Lock()
	savedFree := fs.bgdt[0].FreeInodesCount
	fs.bgdt[0].FreeInodesCount = 0
	fs.metaMu.Unlock()

	ino = fs.allocateInode(0, 0)
	if got := fs.groupOfInode(ino); got != 2 {
		t.Errorf("allocateInode placed inode %d in group %d, want group 2", ino, got)
	}

	fs.metaMu.Lock()
	fs.bgdt[0].FreeInodesCount = savedFree
	fs.metaMu.Unlock()
}

func TestAllocateInodeHonorsPreferredGroup(t *testing.T) {
	fs := newMultiGroupFilesystem(t)

	fs.mu.Lock()
	defer fs.mu.Unlock()

	ino := fs.allocateInode(2, 0)
	if got := fs.groupOfInode(ino); got != 2 {
		t.Errorf("allocateInode(preferred=2) placed inode %d in group %d", ino, got)
	}
}

func TestAllocateInodeExhausted(t *testing.T) {
	fs, _ := newTestFilesystem(t)

	fs.mu.Lock()
	defer fs.mu.Unlock()

	fs.metaMu.Lock()
	saved := fs.bgdt[0].FreeInodesCount
	fs.bgdt[0].FreeInodesCount = 0
	fs.metaMu.Unlock()

	if ino := fs.allocateInode(0, 0); ino != 0 {
		t.Errorf("allocateInode with no free inodes returned %d, want 0", ino)
	}

	fs.metaMu.Lock()
	fs.bgdt[0].FreeInodesCount = saved
	fs.metaMu.Unlock()
}

// TestModifyLinkCountRoundTrip: +k then -k leaves the record unchanged.
func TestModifyLinkCountRoundTrip(t *testing.T) {
	fs, _ := newTestFilesystem(t)

	id, err := fs.CreateInode(fs.RootInode(), "hello", disklayout.ModeRegular|0644, 5)
	if err != nil {
		t.Fatalf("CreateInode failed: %v", err)
	}

	before, err := fs.readRawInode(id.Index)
	if err != nil {
		t.Fatalf("readRawInode failed: %v", err)
	}
	if err := fs.ModifyLinkCount(id.Index, 3); err != nil {
		t.Fatalf("ModifyLinkCount(+3) failed: %v", err)
	}
	if err := fs.ModifyLinkCount(id.Index, -3); err != nil {
		t.Fatalf("ModifyLinkCount(-3) failed: %v", err)
	}
	after, err := fs.readRawInode(id.Index)
	if err != nil {
		t.Fatalf("readRawInode failed: %v", err)
	}
	if *before != *after {
		t.Errorf("raw inode changed across +3/-3: before %+v, after %+v", before, after)
	}
}
