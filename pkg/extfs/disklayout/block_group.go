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

package disklayout

import (
	"bytes"
	"encoding/binary"
)

// BlockGroupSize is the on-disk size of a block group descriptor.
const BlockGroupSize = 32

// BlockGroup emulates Linux's ext2_group_desc struct. An ext2 filesystem
// is split into a series of block groups; each group has a descriptor in
// a contiguous table placed right after the superblock.
//
// The three free/used counters are redundant with the bitmaps and the
// inode records they summarize. Every committed mutation must keep all
// surfaces in agreement.
type BlockGroup struct {
	// BlockBitmap is the absolute index of the first block of the group's
	// block allocation bitmap.
	BlockBitmap uint32

	// InodeBitmap is the absolute index of the first block of the group's
	// inode allocation bitmap.
	InodeBitmap uint32

	// InodeTable is the absolute index of the first block of the group's
	// inode table.
	InodeTable uint32

	// FreeBlocksCount is the number of unallocated blocks in the group.
	FreeBlocksCount uint16

	// FreeInodesCount is the number of unallocated inodes in the group.
	FreeInodesCount uint16

	// UsedDirsCount is the number of inodes in the group that are
	// directories.
	UsedDirsCount uint16

	_ uint16
	_ [12]byte
}

// SizeBytes returns the on-disk size of the descriptor.
func (bg *BlockGroup) SizeBytes() int { return BlockGroupSize }

// MarshalBytes serializes the descriptor into b.
func (bg *BlockGroup) MarshalBytes(b []byte) {
	buf := bytes.NewBuffer(b[:0])
	if err := binary.Write(buf, binary.LittleEndian, bg); err != nil {
		panic(err)
	}
}

// UnmarshalBytes deserializes the descriptor from b.
func (bg *BlockGroup) UnmarshalBytes(b []byte) {
	if err := binary.Read(bytes.NewReader(b), binary.LittleEndian, bg); err != nil {
		panic(err)
	}
}
