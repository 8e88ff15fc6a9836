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
	"sync"

	"golang.org/x/sys/unix"
	"gvisor.dev/extfs/pkg/extfs/disklayout"
)

// Inode is a shared in-memory handle for an on-disk inode. Handles are
// cached by inode number; all callers resolving the same number get the
// same handle.
type Inode struct {
	fs  *Filesystem
	num uint32

	// mu guards raw, blockList and lookupCache.
	mu sync.Mutex

	// raw is the driver's mutable copy of the on-disk record. It is
	// replaced wholesale when the record is rewritten.
	raw disklayout.Inode

	// blockList caches the resolved physical block list. Populated
	// lazily on first data access.
	blockList []uint32

	// lookupCache maps child names to inode numbers for directories.
	// Populated lazily, dropped whenever the raw inode is rewritten.
	lookupCache map[string]uint32
}

// Num returns the inode's 1-based number.
func (in *Inode) Num() uint32 { return in.num }

// ID returns the inode's identifier.
func (in *Inode) ID() InodeID { return InodeID{FS: in.fs.fsid, Index: in.num} }

// Mode returns the inode's mode field.
func (in *Inode) Mode() uint16 {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.raw.Mode
}

// Size returns the inode's size in bytes.
func (in *Inode) Size() uint32 {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.raw.Size
}

// IsDirectory returns true if the inode is a directory.
func (in *Inode) IsDirectory() bool { return disklayout.IsDirectory(in.Mode()) }

// IsSymlink returns true if the inode is a symbolic link.
func (in *Inode) IsSymlink() bool { return disklayout.IsSymlink(in.Mode()) }

// Metadata is the stat-level view of an inode.
type Metadata struct {
	ID               InodeID
	Mode             uint16
	UID              uint16
	GID              uint16
	Size             uint32
	AccessTime       uint32
	ChangeTime       uint32
	ModificationTime uint32
	DeletionTime     uint32
	LinksCount       uint16

	// BlocksCount is in 512-byte units, per the on-disk convention.
	BlocksCount uint32
	BlockSize   uint32

	// MajorDevice/MinorDevice are decoded for block and character device
	// inodes only.
	MajorDevice uint32
	MinorDevice uint32
}

// Metadata returns the inode's current metadata.
func (in *Inode) Metadata() Metadata {
	in.mu.Lock()
	defer in.mu.Unlock()
	m := Metadata{
		ID:               in.ID(),
		Mode:             in.raw.Mode,
		UID:              in.raw.UID,
		GID:              in.raw.GID,
		Size:             in.raw.Size,
		AccessTime:       in.raw.AccessTime,
		ChangeTime:       in.raw.ChangeTime,
		ModificationTime: in.raw.ModificationTime,
		DeletionTime:     in.raw.DeletionTime,
		LinksCount:       in.raw.LinksCount,
		BlocksCount:      in.raw.BlocksCount,
		BlockSize:        in.fs.blockSize,
	}
	if disklayout.IsBlockDev(in.raw.Mode) || disklayout.IsCharDev(in.raw.Mode) {
		m.MajorDevice, m.MinorDevice = in.raw.DeviceNumbers()
	}
	return m
}

// GetInode resolves id to a shared inode handle. The lookup is
// double-checked: a cache miss reads the raw inode outside the cache
// lock, then re-checks before inserting so concurrent resolvers of the
// same number cannot create duplicate handles.
func (fs *Filesystem) GetInode(id InodeID) (*Inode, error) {
	if id.FS != fs.fsid {
		return nil, fmt.Errorf("extfs: inode %d belongs to fs %d, not fs %d: %w", id.Index, id.FS, fs.fsid, unix.EINVAL)
	}

	fs.cacheMu.Lock()
	if in, ok := fs.inodeCache[id.Index]; ok {
		fs.cacheMu.Unlock()
		return in, nil
	}
	fs.cacheMu.Unlock()

	raw, err := fs.readRawInode(id.Index)
	if err != nil {
		return nil, err
	}

	fs.cacheMu.Lock()
	defer fs.cacheMu.Unlock()
	if in, ok := fs.inodeCache[id.Index]; ok {
		return in, nil
	}
	in := &Inode{fs: fs, num: id.Index, raw: *raw}
	fs.inodeCache[id.Index] = in
	return in, nil
}

// InodeMetadata resolves id and returns its metadata.
func (fs *Filesystem) InodeMetadata(id InodeID) (Metadata, error) {
	in, err := fs.GetInode(id)
	if err != nil {
		return Metadata{}, err
	}
	return in.Metadata(), nil
}

// readBlockContainingInode reads the block holding inode n's record and
// returns it along with the record's location.
func (fs *Filesystem) readBlockContainingInode(n uint32) (block []byte, blockIndex, offset uint32, err error) {
	if !fs.validInodeNumber(n) {
		return nil, 0, 0, fmt.Errorf("extfs: inode %d is reserved or out of range: %w", n, unix.ENOENT)
	}
	blockIndex, offset, err = fs.inodeLocation(n)
	if err != nil {
		return nil, 0, 0, err
	}
	block, err = fs.readBlock(blockIndex)
	if err != nil {
		return nil, 0, 0, err
	}
	return block, blockIndex, offset, nil
}

// readRawInode fetches inode n's on-disk record.
func (fs *Filesystem) readRawInode(n uint32) (*disklayout.Inode, error) {
	block, _, offset, err := fs.readBlockContainingInode(n)
	if err != nil {
		return nil, err
	}
	var raw disklayout.Inode
	raw.UnmarshalBytes(block[offset:])
	return &raw, nil
}

// writeRawInode rewrites inode n's on-disk record. If the inode is
// cached, the handle's raw copy is replaced and its derived caches are
// dropped under the handle lock before the block hits the disk, so no
// reader can observe the old names after a rename or unlink.
func (fs *Filesystem) writeRawInode(n uint32, raw *disklayout.Inode) error {
	block, blockIndex, offset, err := fs.readBlockContainingInode(n)
	if err != nil {
		return err
	}

	fs.cacheMu.Lock()
	cached := fs.inodeCache[n]
	fs.cacheMu.Unlock()
	if cached != nil {
		cached.mu.Lock()
		cached.raw = *raw
		cached.blockList = nil
		cached.lookupCache = nil
		cached.mu.Unlock()
	}

	raw.MarshalBytes(block[offset : offset+uint32(raw.SizeBytes())])
	return fs.writeBlock(blockIndex, block)
}
