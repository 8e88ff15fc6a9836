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

// Package extfs implements an ext2 filesystem driver on top of a
// byte-addressable block device.
//
// The driver parses and maintains the ext2 on-disk layout: superblock,
// block group descriptor table, inode tables, allocation bitmaps,
// direct/indirect block pointer trees and variable-length directory
// records. It supports byte-granular reads, whole-inode rewrites,
// directory enumeration, and creation of files and directories limited
// to direct blocks. Journaling, resizing files on write, and symlink
// writes are out of scope.
package extfs

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
	"gvisor.dev/extfs/pkg/extfs/disklayout"
)

// Device is the downward interface to the block device. Offsets are in
// bytes; the driver issues sector-granularity I/O for the superblock and
// filesystem-block granularity I/O for everything else.
//
// io.ReaderAt/io.WriterAt semantics make the device safe for concurrent
// calls; *os.File and *memdev.Device both qualify.
type Device interface {
	ReadAt(p []byte, off int64) (int, error)
	WriteAt(p []byte, off int64) (int, error)
}

// InodeID identifies an inode across all mounted filesystems.
type InodeID struct {
	// FS is the owning filesystem's ID.
	FS uint32

	// Index is the 1-based inode number within the filesystem. 0 means
	// invalid.
	Index uint32
}

// Valid returns true if id refers to an inode.
func (id InodeID) Valid() bool { return id.Index != 0 }

// lastFSID hands out filesystem IDs. Accessed atomically.
var lastFSID uint32

// Filesystem is a mounted ext2 filesystem.
type Filesystem struct {
	dev  Device
	fsid uint32

	// blockSize is established from the superblock during NewFilesystem
	// and is constant thereafter.
	blockSize uint32

	// blockGroupCount is ⌈blocks / blocks-per-group⌉, at least 1.
	blockGroupCount uint32

	// mu serializes allocation and free critical sections so that the
	// bitmap bit, the superblock counter and the group descriptor counter
	// never diverge under concurrent allocators.
	//
	// Lock order: mu, then an Inode's mu, then metaMu.
	mu sync.Mutex

	// metaMu guards sb and bgdt against torn reads while mutators write
	// them through to disk. Leaf lock: nothing else is acquired under it.
	metaMu sync.Mutex

	// sb is the in-memory superblock. Mutated in place and written
	// through.
	sb disklayout.SuperBlock

	// bgdt is the in-memory block group descriptor table, indexed by
	// group-1 (groups are 1-based). Persisted as a whole on mutation.
	bgdt []disklayout.BlockGroup

	// cacheMu guards inodeCache. Held only for lookup and insertion.
	cacheMu sync.Mutex

	// inodeCache maps inode numbers to shared handles. Handles stay alive
	// as long as any caller references them; the map retains them for the
	// lifetime of the filesystem.
	inodeCache map[uint32]*Inode
}

// NewFilesystem reads and validates the superblock from dev and
// pre-warms the block group descriptor table cache. It fails on a bad
// magic number or a degenerate group geometry.
func NewFilesystem(dev Device) (*Filesystem, error) {
	fs := &Filesystem{
		dev:        dev,
		fsid:       atomic.AddUint32(&lastFSID, 1),
		inodeCache: make(map[uint32]*Inode),
	}

	sb, err := fs.readSuperBlock()
	if err != nil {
		return nil, fmt.Errorf("extfs: reading superblock: %w", err)
	}
	if sb.Magic != disklayout.Magic {
		return nil, fmt.Errorf("extfs: bad superblock magic %#x: %w", sb.Magic, unix.EINVAL)
	}
	fs.sb = sb
	fs.blockSize = sb.BlockSize()

	if sb.BlocksPerGroup == 0 || sb.InodesPerGroup == 0 {
		return nil, fmt.Errorf("extfs: degenerate group geometry: %w", unix.EINVAL)
	}
	fs.blockGroupCount = sb.BlockGroupsCount()
	if fs.blockGroupCount == 0 {
		return nil, fmt.Errorf("extfs: no block groups: %w", unix.EINVAL)
	}

	if err := fs.readBGDT(); err != nil {
		return nil, fmt.Errorf("extfs: reading block group descriptors: %w", err)
	}

	logrus.Debugf("extfs: mounted fs %d: %d inodes, %d blocks, block size %d, %d group(s)",
		fs.fsid, sb.InodesCount, sb.BlocksCount, fs.blockSize, fs.blockGroupCount)
	return fs, nil
}

// ID returns the filesystem's ID.
func (fs *Filesystem) ID() uint32 { return fs.fsid }

// BlockSize returns the filesystem block size in bytes.
func (fs *Filesystem) BlockSize() uint32 { return fs.blockSize }

// BlockGroupCount returns the number of block groups.
func (fs *Filesystem) BlockGroupCount() uint32 { return fs.blockGroupCount }

// RootInode returns the identifier of the root directory inode.
func (fs *Filesystem) RootInode() InodeID {
	return InodeID{FS: fs.fsid, Index: disklayout.RootDirInode}
}

// SuperBlock returns a copy of the cached superblock.
func (fs *Filesystem) SuperBlock() disklayout.SuperBlock {
	fs.metaMu.Lock()
	defer fs.metaMu.Unlock()
	return fs.sb
}

// BlockGroupDescriptor returns a copy of the descriptor of the given
// 1-based group.
func (fs *Filesystem) BlockGroupDescriptor(group uint32) (disklayout.BlockGroup, error) {
	return fs.blockGroupDescriptor(group)
}
