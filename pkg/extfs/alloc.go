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
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// allocateInode picks a free inode number for a new file expected to
// occupy expectedSize bytes. The preferred group is used when it can
// hold both the inode and the data blocks; otherwise the first suitable
// group wins. The returned number is not yet committed to the bitmap —
// the caller commits it once the new file's directory entry is in
// place.
//
// Returns 0 if no group can satisfy the request.
//
// Precondition: fs.mu must be held.
func (fs *Filesystem) allocateInode(preferredGroup, expectedSize uint32) uint32 {
	neededBlocks := ceilDiv(expectedSize, fs.blockSize)

	suitable := func(g uint32) bool {
		bgd, err := fs.blockGroupDescriptor(g)
		if err != nil {
			return false
		}
		return bgd.FreeInodesCount > 0 && uint32(bgd.FreeBlocksCount) >= neededBlocks
	}

	group := uint32(0)
	if preferredGroup != 0 && suitable(preferredGroup) {
		group = preferredGroup
	} else {
		for g := uint32(1); g <= fs.blockGroupCount; g++ {
			if suitable(g) {
				group = g
				break
			}
		}
	}
	if group == 0 {
		logrus.Warnf("extfs: no suitable group for a new inode with %d blocks needed", neededBlocks)
		return 0
	}

	bgd, err := fs.blockGroupDescriptor(group)
	if err != nil {
		return 0
	}

	inodesInGroup := fs.sb.InodesPerGroup
	bitsPerBlock := fs.blockSize * 8
	for blk := uint32(0); blk*bitsPerBlock < inodesInGroup; blk++ {
		block, err := fs.readBlock(bgd.InodeBitmap + blk)
		if err != nil {
			return 0
		}
		limit := inodesInGroup - blk*bitsPerBlock
		if limit > bitsPerBlock {
			limit = bitsPerBlock
		}
		if bit, ok := bitmap(block).findFirstClear(limit); ok {
			return (group-1)*fs.sb.InodesPerGroup + blk*bitsPerBlock + bit + 1
		}
	}

	logrus.Warnf("extfs: group %d descriptor claims free inodes but the bitmap is full", group)
	return 0
}

// allocateBlocks collects count free block indices within the given
// group, in bitmap order. Contiguity is not guaranteed. Like
// allocateInode, nothing is committed to the bitmap yet.
//
// Precondition: fs.mu must be held.
func (fs *Filesystem) allocateBlocks(group, count uint32) ([]uint32, error) {
	if count == 0 {
		return nil, nil
	}

	bgd, err := fs.blockGroupDescriptor(group)
	if err != nil {
		return nil, err
	}
	if uint32(bgd.FreeBlocksCount) < count {
		logrus.Warnf("extfs: group %d: wanted %d blocks but only %d available", group, count, bgd.FreeBlocksCount)
		return nil, unix.ENOSPC
	}

	blocksInGroup := fs.sb.BlocksPerGroup
	if last := fs.sb.BlocksCount - fs.firstBlockOfGroup(group); last < blocksInGroup {
		blocksInGroup = last
	}

	blocks := make([]uint32, 0, count)
	bitsPerBlock := fs.blockSize * 8
	for blk := uint32(0); blk*bitsPerBlock < blocksInGroup && uint32(len(blocks)) < count; blk++ {
		block, err := fs.readBlock(bgd.BlockBitmap + blk)
		if err != nil {
			return nil, err
		}
		limit := blocksInGroup - blk*bitsPerBlock
		if limit > bitsPerBlock {
			limit = bitsPerBlock
		}
		bm := bitmap(block)
		for bit := uint32(0); bit < limit; bit++ {
			if !bm.get(bit) {
				blocks = append(blocks, fs.firstBlockOfGroup(group)+blk*bitsPerBlock+bit)
				if uint32(len(blocks)) == count {
					break
				}
			}
		}
	}

	if uint32(len(blocks)) < count {
		logrus.Warnf("extfs: group %d descriptor claims %d free blocks but the bitmap yielded %d", group, bgd.FreeBlocksCount, len(blocks))
		return nil, unix.ENOSPC
	}
	logrus.Debugf("extfs: allocated candidate blocks %v in group %d", blocks, group)
	return blocks, nil
}
