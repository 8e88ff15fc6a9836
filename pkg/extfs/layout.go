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
	"fmt"

	"golang.org/x/sys/unix"
	"gvisor.dev/extfs/pkg/extfs/disklayout"
)

func ceilDiv(a, b uint32) uint32 { return (a + b - 1) / b }

// groupOfInode returns the 1-based block group that inode n lives in.
// Returns 0 for the invalid inode number 0.
func (fs *Filesystem) groupOfInode(n uint32) uint32 {
	if n == 0 {
		return 0
	}
	return (n-1)/fs.sb.InodesPerGroup + 1
}

// inodeIndexInGroup returns the 0-based index of inode n within its
// group's inode table and bitmap.
func (fs *Filesystem) inodeIndexInGroup(n uint32) uint32 {
	return (n - 1) % fs.sb.InodesPerGroup
}

// firstBlockOfGroup returns the absolute index of the first block of the
// 1-based group g.
func (fs *Filesystem) firstBlockOfGroup(g uint32) uint32 {
	return fs.sb.FirstDataBlock + (g-1)*fs.sb.BlocksPerGroup
}

// bgdtFirstBlock returns the first block of the block group descriptor
// table: the block right after the one holding the superblock.
func (fs *Filesystem) bgdtFirstBlock() uint32 {
	if fs.blockSize == disklayout.SuperBlockOffset {
		return 2
	}
	return 1
}

// validInodeNumber reports whether n may be handed out to callers.
// Inodes below the superblock's first usable inode are reserved; the
// root directory is the exception.
func (fs *Filesystem) validInodeNumber(n uint32) bool {
	if n == 0 || n > fs.sb.InodesCount {
		return false
	}
	return n == disklayout.RootDirInode || n >= fs.sb.FirstInode()
}

// blockGroupDescriptor returns a copy of the descriptor of the 1-based
// group g. Group 0 and groups past the last one are rejected with
// EINVAL.
func (fs *Filesystem) blockGroupDescriptor(g uint32) (disklayout.BlockGroup, error) {
	if g == 0 || g > fs.blockGroupCount {
		return disklayout.BlockGroup{}, fmt.Errorf("extfs: block group %d out of range [1, %d]: %w", g, fs.blockGroupCount, unix.EINVAL)
	}
	fs.metaMu.Lock()
	defer fs.metaMu.Unlock()
	return fs.bgdt[g-1], nil
}

// inodeLocation returns the block containing inode n's record and the
// byte offset of the record within that block.
func (fs *Filesystem) inodeLocation(n uint32) (blockIndex, offset uint32, err error) {
	bgd, err := fs.blockGroupDescriptor(fs.groupOfInode(n))
	if err != nil {
		return 0, 0, err
	}
	off := fs.inodeIndexInGroup(n) * fs.sb.InodeSize()
	return bgd.InodeTable + off/fs.blockSize, off % fs.blockSize, nil
}
