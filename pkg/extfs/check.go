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
	"fmt"

	"golang.org/x/sync/errgroup"
	"gvisor.dev/extfs/pkg/extfs/disklayout"
)

// Check verifies the three accounting surfaces against each other for
// every block group: bitmap populations against the group descriptor
// counters, the descriptor directory census against the inode table,
// and the per-group counters summed up against the superblock. Groups
// are verified concurrently. Check reports inconsistencies; it does not
// repair them.
func (fs *Filesystem) Check(ctx context.Context) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	g, _ := errgroup.WithContext(ctx)
	for group := uint32(1); group <= fs.blockGroupCount; group++ {
		group := group
		g.Go(func() error { return fs.checkGroup(group) })
	}
	if err := g.Wait(); err != nil {
		return err
	}

	var freeInodes, freeBlocks uint32
	fs.metaMu.Lock()
	for i := range fs.bgdt {
		freeInodes += uint32(fs.bgdt[i].FreeInodesCount)
		freeBlocks += uint32(fs.bgdt[i].FreeBlocksCount)
	}
	sb := fs.sb
	fs.metaMu.Unlock()

	if freeInodes != sb.FreeInodesCount {
		return fmt.Errorf("extfs: group descriptors sum to %d free inodes, superblock says %d", freeInodes, sb.FreeInodesCount)
	}
	if freeBlocks != sb.FreeBlocksCount {
		return fmt.Errorf("extfs: group descriptors sum to %d free blocks, superblock says %d", freeBlocks, sb.FreeBlocksCount)
	}
	return nil
}

// checkGroup verifies one group's bitmaps and directory census against
// its descriptor.
func (fs *Filesystem) checkGroup(group uint32) error {
	bgd, err := fs.blockGroupDescriptor(group)
	if err != nil {
		return err
	}

	// Inode bitmap population vs. the descriptor's free inode count.
	used, err := fs.popcountBitmap(bgd.InodeBitmap, fs.sb.InodesPerGroup)
	if err != nil {
		return err
	}
	if want := fs.sb.InodesPerGroup - uint32(bgd.FreeInodesCount); used != want {
		return fmt.Errorf("extfs: group %d: inode bitmap has %d bits set, descriptor implies %d", group, used, want)
	}

	// Block bitmap population vs. the descriptor's free block count. Any
	// tail of the bitmap past the device end is marked allocated, so the
	// full per-group width is compared.
	used, err = fs.popcountBitmap(bgd.BlockBitmap, fs.sb.BlocksPerGroup)
	if err != nil {
		return err
	}
	if want := fs.sb.BlocksPerGroup - uint32(bgd.FreeBlocksCount); used != want {
		return fmt.Errorf("extfs: group %d: block bitmap has %d bits set, descriptor implies %d", group, used, want)
	}

	// Directory census: count directory inodes in the group's inode
	// table and compare with the descriptor.
	var dirs uint32
	firstInode := (group-1)*fs.sb.InodesPerGroup + 1
	for i := uint32(0); i < fs.sb.InodesPerGroup; i++ {
		n := firstInode + i
		if !fs.validInodeNumber(n) {
			// Reserved inodes are never directories.
			continue
		}
		allocated, err := fs.inodeAllocated(n, bgd)
		if err != nil {
			return err
		}
		if !allocated {
			continue
		}
		raw, err := fs.readRawInode(n)
		if err != nil {
			continue
		}
		if disklayout.IsDirectory(raw.Mode) {
			dirs++
		}
	}
	if dirs != uint32(bgd.UsedDirsCount) {
		return fmt.Errorf("extfs: group %d: found %d directories, descriptor says %d", group, dirs, bgd.UsedDirsCount)
	}
	return nil
}

// popcountBitmap counts the set bits of a bitmap spanning bits total
// bits starting at block first.
func (fs *Filesystem) popcountBitmap(first, bits uint32) (uint32, error) {
	bitsPerBlock := fs.blockSize * 8
	var used uint32
	for blk := uint32(0); blk*bitsPerBlock < bits; blk++ {
		block, err := fs.readBlock(first + blk)
		if err != nil {
			return 0, err
		}
		limit := bits - blk*bitsPerBlock
		if limit > bitsPerBlock {
			limit = bitsPerBlock
		}
		used += bitmap(block).popcount(limit)
	}
	return used, nil
}

// inodeAllocated reads inode n's bit from its group's inode bitmap.
func (fs *Filesystem) inodeAllocated(n uint32, bgd disklayout.BlockGroup) (bool, error) {
	bitsPerBlock := fs.blockSize * 8
	index := fs.inodeIndexInGroup(n)
	block, err := fs.readBlock(bgd.InodeBitmap + index/bitsPerBlock)
	if err != nil {
		return false, err
	}
	return bitmap(block).get(index % bitsPerBlock), nil
}
