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

// Block pointer layout inside the inode's 60-byte data area: pointers
// 0 through 11 address data blocks directly, the remaining three root
// single, double and triple indirect trees.
const (
	// NumDirectBlocks is the number of direct block pointers.
	NumDirectBlocks = 12

	// IndirectBlock is the index of the singly indirect pointer.
	IndirectBlock = 12

	// DoubleIndirectBlock is the index of the doubly indirect pointer.
	DoubleIndirectBlock = 13

	// TripleIndirectBlock is the index of the triply indirect pointer.
	TripleIndirectBlock = 14

	// NumBlockPtrs is the total number of block pointers.
	NumBlockPtrs = 15
)

// InodeDataSize is the size of the inode's block pointer array. Symbolic
// links whose target is shorter than MaxInlineSymlinkLen store the target
// here instead of allocating a data block.
const InodeDataSize = 60

// MaxInlineSymlinkLen is the first symlink target length that no longer
// fits inline in the inode record.
const MaxInlineSymlinkLen = 60

// InodeBlocksUnit is the unit of the inode's BlocksCount field. It counts
// 512-byte sectors, not filesystem blocks.
const InodeBlocksUnit = 512

// Inode emulates Linux's ext2_inode struct, the fixed-size inode record
// inside a group's inode table. Inode numbers are 1-based.
type Inode struct {
	Mode             uint16
	UID              uint16
	Size             uint32
	AccessTime       uint32
	ChangeTime       uint32
	ModificationTime uint32
	DeletionTime     uint32
	GID              uint16
	LinksCount       uint16

	// BlocksCount is in InodeBlocksUnit units, not filesystem blocks.
	BlocksCount uint32

	Flags uint32
	_     uint32

	// DataRaw holds the 15 block pointers, the inline symlink target, or
	// the encoded device numbers, depending on Mode and Size.
	DataRaw [InodeDataSize]byte

	Generation uint32
	FileACL    uint32
	DirACL     uint32
	FragAddr   uint32
	_          [12]byte
}

// Data returns the inode's data area.
func (in *Inode) Data() []byte { return in.DataRaw[:] }

// BlockPtr returns the i'th block pointer.
func (in *Inode) BlockPtr(i int) uint32 {
	return binary.LittleEndian.Uint32(in.DataRaw[i*4 : i*4+4])
}

// SetBlockPtr sets the i'th block pointer.
func (in *Inode) SetBlockPtr(i int, blk uint32) {
	binary.LittleEndian.PutUint32(in.DataRaw[i*4:i*4+4], blk)
}

// DeviceNumbers decodes the major/minor device numbers of a block or
// character device inode from the first block pointer, per the Linux
// encoding.
func (in *Inode) DeviceNumbers() (major, minor uint32) {
	dev := in.BlockPtr(0)
	major = (dev & 0xfff00) >> 8
	minor = (dev & 0xff) | ((dev >> 12) & 0xfff00)
	return major, minor
}

// SizeBytes returns the size of the OldRev on-disk inode record. Larger
// record sizes only add space past this struct; the fields above are
// layout-compatible across revisions.
func (in *Inode) SizeBytes() int { return OldInodeSize }

// MarshalBytes serializes the inode record into b.
func (in *Inode) MarshalBytes(b []byte) {
	buf := bytes.NewBuffer(b[:0])
	if err := binary.Write(buf, binary.LittleEndian, in); err != nil {
		panic(err)
	}
}

// UnmarshalBytes deserializes the inode record from b.
func (in *Inode) UnmarshalBytes(b []byte) {
	if err := binary.Read(bytes.NewReader(b), binary.LittleEndian, in); err != nil {
		panic(err)
	}
}
