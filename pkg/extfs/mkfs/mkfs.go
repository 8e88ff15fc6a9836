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

// Package mkfs fabricates ext2 filesystem images: superblock, block
// group descriptor table, allocation bitmaps, inode tables and the root
// directory. The produced geometry keeps one bitmap block per surface
// per group, so blocks-per-group is always the number of bits in a
// block.
package mkfs

import (
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
	"gvisor.dev/extfs/pkg/extfs/disklayout"
)

// Options configures the image geometry.
type Options struct {
	// BlockSize must be 1024, 2048 or 4096.
	BlockSize uint32

	// BlocksCount is the total number of blocks on the device.
	BlocksCount uint32

	// InodesCount is the requested number of inodes. It is rounded up so
	// that every group carries the same whole number of inode table
	// blocks. Defaults to one inode per four blocks.
	InodesCount uint32

	// Label is the volume name, up to 16 bytes.
	Label string

	// Timestamp is used for the filesystem and root inode times.
	Timestamp uint32
}

// layout is the computed on-disk geometry.
type layout struct {
	opts            Options
	firstDataBlock  uint32
	blocksPerGroup  uint32
	inodesPerGroup  uint32
	groupCount      uint32
	bgdtBlocks      uint32
	inodeTableBlocks uint32
}

func ceilDiv(a, b uint32) uint32 { return (a + b - 1) / b }

// firstBlockOfGroup returns the first block covered by 1-based group g.
func (l *layout) firstBlockOfGroup(g uint32) uint32 {
	return l.firstDataBlock + (g-1)*l.blocksPerGroup
}

// metaFirstBlock returns the block where group g's own metadata
// (bitmaps and inode table) begins. Group 1 additionally hosts the
// superblock and the descriptor table; backup copies are not written.
func (l *layout) metaFirstBlock(g uint32) uint32 {
	if g == 1 {
		return l.firstDataBlock + 1 + l.bgdtBlocks
	}
	return l.firstBlockOfGroup(g)
}

// blocksInGroup returns how many blocks of group g actually exist on
// the device; the last group may be short.
func (l *layout) blocksInGroup(g uint32) uint32 {
	n := l.opts.BlocksCount - l.firstBlockOfGroup(g)
	if n > l.blocksPerGroup {
		n = l.blocksPerGroup
	}
	return n
}

func computeLayout(opts Options) (*layout, error) {
	switch opts.BlockSize {
	case 1024, 2048, 4096:
	default:
		return nil, fmt.Errorf("mkfs: unsupported block size %d", opts.BlockSize)
	}

	l := &layout{opts: opts, blocksPerGroup: opts.BlockSize * 8}
	if opts.BlockSize == 1024 {
		l.firstDataBlock = 1
	}
	if opts.BlocksCount < 64 {
		return nil, fmt.Errorf("mkfs: %d blocks is too small for a filesystem", opts.BlocksCount)
	}

	l.groupCount = ceilDiv(opts.BlocksCount, l.blocksPerGroup)
	l.bgdtBlocks = ceilDiv(l.groupCount*disklayout.BlockGroupSize, opts.BlockSize)

	inodes := opts.InodesCount
	if inodes == 0 {
		inodes = opts.BlocksCount / 4
	}
	inodesPerBlock := opts.BlockSize / disklayout.OldInodeSize
	l.inodesPerGroup = ceilDiv(ceilDiv(inodes, l.groupCount), inodesPerBlock) * inodesPerBlock
	if l.inodesPerGroup > opts.BlockSize*8 {
		return nil, fmt.Errorf("mkfs: %d inodes per group exceeds one bitmap block", l.inodesPerGroup)
	}
	l.inodeTableBlocks = l.inodesPerGroup / inodesPerBlock
	return l, nil
}

// Format writes a fresh ext2 filesystem to dev. dev is assumed to be
// zero-filled (a freshly truncated file or a new memdev qualifies); the
// inode tables and bitmaps are zeroed explicitly regardless.
func Format(dev io.WriterAt, opts Options) error {
	l, err := computeLayout(opts)
	if err != nil {
		return err
	}

	bs := opts.BlockSize
	writeBlock := func(index uint32, b []byte) error {
		if _, err := dev.WriteAt(b, int64(index)*int64(bs)); err != nil {
			return fmt.Errorf("mkfs: writing block %d: %w", index, err)
		}
		return nil
	}

	rootBlock := l.metaFirstBlock(1) + 2 + l.inodeTableBlocks

	var totalFreeBlocks, totalFreeInodes uint32
	bgdt := make([]disklayout.BlockGroup, l.groupCount)

	for g := uint32(1); g <= l.groupCount; g++ {
		meta := l.metaFirstBlock(g)
		bgdt[g-1].BlockBitmap = meta
		bgdt[g-1].InodeBitmap = meta + 1
		bgdt[g-1].InodeTable = meta + 2

		// Every block from the group start through the inode table is in
		// use; group 1 also loses the root directory's block.
		first := l.firstBlockOfGroup(g)
		usedBlocks := meta + 2 + l.inodeTableBlocks - first
		if g == 1 {
			usedBlocks++
		}
		exists := l.blocksInGroup(g)
		if usedBlocks > exists {
			return fmt.Errorf("mkfs: group %d has %d blocks but needs %d for metadata", g, exists, usedBlocks)
		}

		blockBitmap := make([]byte, bs)
		for i := uint32(0); i < usedBlocks; i++ {
			blockBitmap[i/8] |= 1 << (i % 8)
		}
		// Pad bits past the device end so they can never be allocated.
		for i := exists; i < l.blocksPerGroup; i++ {
			blockBitmap[i/8] |= 1 << (i % 8)
		}
		if err := writeBlock(bgdt[g-1].BlockBitmap, blockBitmap); err != nil {
			return err
		}

		inodeBitmap := make([]byte, bs)
		usedInodes := uint32(0)
		if g == 1 {
			// Inodes 1 through 10 are reserved.
			usedInodes = disklayout.OldFirstInode - 1
			for i := uint32(0); i < usedInodes; i++ {
				inodeBitmap[i/8] |= 1 << (i % 8)
			}
		}
		for i := l.inodesPerGroup; i < bs*8; i++ {
			inodeBitmap[i/8] |= 1 << (i % 8)
		}
		if err := writeBlock(bgdt[g-1].InodeBitmap, inodeBitmap); err != nil {
			return err
		}

		// Zero the inode table.
		zero := make([]byte, bs)
		for i := uint32(0); i < l.inodeTableBlocks; i++ {
			if err := writeBlock(bgdt[g-1].InodeTable+i, zero); err != nil {
				return err
			}
		}

		bgdt[g-1].FreeBlocksCount = uint16(exists - usedBlocks)
		bgdt[g-1].FreeInodesCount = uint16(l.inodesPerGroup - usedInodes)
		if g == 1 {
			bgdt[g-1].UsedDirsCount = 1
		}
		totalFreeBlocks += exists - usedBlocks
		totalFreeInodes += l.inodesPerGroup - usedInodes
	}

	// Descriptor table.
	bgdtBuf := make([]byte, l.bgdtBlocks*bs)
	for i := range bgdt {
		bgdt[i].MarshalBytes(bgdtBuf[i*disklayout.BlockGroupSize : i*disklayout.BlockGroupSize+disklayout.BlockGroupSize])
	}
	if err := writeBlock(l.firstDataBlock+1, bgdtBuf); err != nil {
		return err
	}

	// Root inode and its directory block.
	if err := writeRootDirectory(dev, l, bgdt[0].InodeTable, rootBlock); err != nil {
		return err
	}

	// Superblock last: a torn format attempt fails the magic check
	// instead of mounting half-initialized.
	var logBlockSize uint32
	for 1024<<logBlockSize != bs {
		logBlockSize++
	}
	sb := disklayout.SuperBlock{
		InodesCount:     l.inodesPerGroup * l.groupCount,
		BlocksCount:     opts.BlocksCount,
		FreeBlocksCount: totalFreeBlocks,
		FreeInodesCount: totalFreeInodes,
		FirstDataBlock:  l.firstDataBlock,
		LogBlockSize:    logBlockSize,
		LogFragSize:     logBlockSize,
		BlocksPerGroup:  l.blocksPerGroup,
		FragsPerGroup:   l.blocksPerGroup,
		InodesPerGroup:  l.inodesPerGroup,
		WriteTime:       opts.Timestamp,
		MaxMountCount:   0xffff,
		Magic:           disklayout.Magic,
		State:           1,
		Errors:          1,
		LastCheck:       opts.Timestamp,
		RevLevel:        disklayout.DynamicRev,
		FirstInodeRaw:   disklayout.OldFirstInode,
		InodeSizeRaw:    disklayout.OldInodeSize,
	}
	copy(sb.VolumeName[:], opts.Label)

	sbBuf := make([]byte, disklayout.SuperBlockSize)
	sb.MarshalBytes(sbBuf)
	if _, err := dev.WriteAt(sbBuf, disklayout.SuperBlockOffset); err != nil {
		return fmt.Errorf("mkfs: writing superblock: %w", err)
	}

	logrus.Debugf("mkfs: formatted %d blocks, %d inodes, %d group(s), block size %d",
		opts.BlocksCount, sb.InodesCount, l.groupCount, bs)
	return nil
}

// writeRootDirectory writes the root inode record and its single data
// block holding the "." and ".." entries.
func writeRootDirectory(dev io.WriterAt, l *layout, inodeTable, rootBlock uint32) error {
	bs := l.opts.BlockSize

	root := disklayout.Inode{
		Mode:             disklayout.ModeDirectory | 0755,
		Size:             bs,
		AccessTime:       l.opts.Timestamp,
		ChangeTime:       l.opts.Timestamp,
		ModificationTime: l.opts.Timestamp,
		LinksCount:       2,
		BlocksCount:      bs / disklayout.InodeBlocksUnit,
	}
	root.SetBlockPtr(0, rootBlock)

	rec := make([]byte, disklayout.OldInodeSize)
	root.MarshalBytes(rec)
	off := int64(inodeTable)*int64(bs) + int64(disklayout.RootDirInode-1)*disklayout.OldInodeSize
	if _, err := dev.WriteAt(rec, off); err != nil {
		return fmt.Errorf("mkfs: writing root inode: %w", err)
	}

	dot := disklayout.Dirent{
		Inode:        disklayout.RootDirInode,
		RecordLength: disklayout.DirentRecLen(1),
		FileType:     disklayout.FileTypeDirectory,
		Name:         ".",
	}
	dotdot := disklayout.Dirent{
		Inode:        disklayout.RootDirInode,
		RecordLength: uint16(bs) - dot.RecordLength,
		FileType:     disklayout.FileTypeDirectory,
		Name:         "..",
	}

	block := make([]byte, bs)
	dot.MarshalBytes(block)
	dotdot.MarshalBytes(block[dot.RecordLength:])
	if _, err := dev.WriteAt(block, int64(rootBlock)*int64(bs)); err != nil {
		return fmt.Errorf("mkfs: writing root directory block: %w", err)
	}
	return nil
}
