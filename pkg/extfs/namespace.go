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
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
	"gvisor.dev/extfs/pkg/extfs/disklayout"
)

// CreateInode creates a new file named name under the parent directory
// with the given mode and size, allocating ⌈size/blocksize⌉ data
// blocks. Only direct block pointers are written on creation, so the
// file must fit in fewer than 12 blocks (EFBIG otherwise).
//
// The inode and block bitmap bits are committed only after the
// directory entry has been written, so a name collision (EEXIST) leaves
// every accounting surface untouched. The whole operation runs in one
// allocation critical section; concurrent creators cannot steal the
// candidate inode or blocks in between.
func (fs *Filesystem) CreateInode(parent InodeID, name string, mode uint16, size uint32) (InodeID, error) {
	parentInode, err := fs.GetInode(parent)
	if err != nil {
		return InodeID{}, err
	}
	if !parentInode.IsDirectory() {
		return InodeID{}, unix.ENOTDIR
	}
	if name == "" || len(name) > disklayout.MaxFileName {
		return InodeID{}, unix.EINVAL
	}
	fileType := disklayout.FileTypeFromMode(mode)

	fs.mu.Lock()
	defer fs.mu.Unlock()

	// Neither allocation is committed to its bitmap just yet.
	ino := fs.allocateInode(0, size)
	if ino == 0 {
		return InodeID{}, unix.ENOSPC
	}
	blocks, err := fs.allocateBlocks(fs.groupOfInode(ino), ceilDiv(size, fs.blockSize))
	if err != nil {
		return InodeID{}, err
	}
	if len(blocks) >= disklayout.NumDirectBlocks {
		return InodeID{}, unix.EFBIG
	}

	// Add the directory entry first: if the name is taken, nothing has
	// been committed and there is nothing to roll back.
	if err := fs.addInodeToDirectory(parentInode, ino, name, fileType); err != nil {
		return InodeID{}, err
	}

	if err := fs.setInodeAllocationState(ino, true); err != nil {
		return InodeID{}, err
	}
	for _, blk := range blocks {
		if err := fs.setBlockAllocationState(fs.groupOfInode(ino), blk, true); err != nil {
			return InodeID{}, err
		}
	}

	linksCount := uint16(1)
	if disklayout.IsDirectory(mode) {
		// The parent's entry plus the "." entry in self.
		linksCount = 2
	}

	now := uint32(time.Now().Unix())
	raw := disklayout.Inode{
		Mode:             mode,
		Size:             size,
		AccessTime:       now,
		ChangeTime:       now,
		ModificationTime: now,
		LinksCount:       linksCount,
		BlocksCount:      uint32(len(blocks)) * (fs.blockSize / disklayout.InodeBlocksUnit),
	}
	for i, blk := range blocks {
		raw.SetBlockPtr(i, blk)
	}
	if err := fs.writeRawInode(ino, &raw); err != nil {
		return InodeID{}, err
	}

	logrus.Debugf("extfs: created inode %d (%q, mode %o) under directory %d", ino, name, mode, parent.Index)
	return InodeID{FS: fs.fsid, Index: ino}, nil
}

// CreateDirectory creates a directory named name under parent. The mode
// is coerced to a directory type, one block is allocated for the
// initial "." and ".." records, the parent's link count grows by one
// for the new "..", and the owning group's directory census is bumped.
func (fs *Filesystem) CreateDirectory(parent InodeID, name string, mode uint16) (InodeID, error) {
	mode = (mode &^ disklayout.ModeTypeMask) | disklayout.ModeDirectory

	// A new directory starts out one block long.
	id, err := fs.CreateInode(parent, name, mode, fs.blockSize)
	if err != nil {
		return InodeID{}, err
	}

	entries := []DirEntry{
		{Name: ".", ID: id, Type: disklayout.FileTypeDirectory},
		{Name: "..", ID: parent, Type: disklayout.FileTypeDirectory},
	}
	if err := fs.writeDirectoryInode(id.Index, entries); err != nil {
		return InodeID{}, err
	}

	if err := fs.ModifyLinkCount(parent.Index, 1); err != nil {
		return InodeID{}, err
	}

	group := fs.groupOfInode(id.Index)
	fs.metaMu.Lock()
	fs.bgdt[group-1].UsedDirsCount++
	err = fs.writeBGDTLocked()
	fs.metaMu.Unlock()
	if err != nil {
		return InodeID{}, err
	}

	logrus.Debugf("extfs: created directory %q with inode %d", name, id.Index)
	return id, nil
}

// ModifyLinkCount adjusts inode n's link count by delta and rewrites
// the record.
func (fs *Filesystem) ModifyLinkCount(n uint32, delta int) error {
	raw, err := fs.readRawInode(n)
	if err != nil {
		return err
	}
	logrus.Debugf("extfs: inode %d link count %d -> %d", n, raw.LinksCount, int(raw.LinksCount)+delta)
	raw.LinksCount = uint16(int(raw.LinksCount) + delta)
	return fs.writeRawInode(n, raw)
}

// SetMtime sets inode id's modification time.
func (fs *Filesystem) SetMtime(id InodeID, timestamp uint32) error {
	raw, err := fs.readRawInode(id.Index)
	if err != nil {
		return err
	}
	raw.ModificationTime = timestamp
	return fs.writeRawInode(id.Index, raw)
}

// FindParentOfInode finds a directory containing an entry for the given
// inode by scanning the directories of the inode's own block group.
// There is no parent index to consult — the directory contents are the
// single source of truth — so this is a linear scan. Returns an invalid
// ID when no parent is found.
func (fs *Filesystem) FindParentOfInode(id InodeID) (InodeID, error) {
	in, err := fs.GetInode(id)
	if err != nil {
		return InodeID{}, err
	}

	group := fs.groupOfInode(in.num)
	firstInode := (group-1)*fs.sb.InodesPerGroup + 1

	for i := uint32(0); i < fs.sb.InodesPerGroup; i++ {
		n := firstInode + i
		if !fs.validInodeNumber(n) {
			continue
		}
		member, err := fs.GetInode(InodeID{FS: fs.fsid, Index: n})
		if err != nil {
			continue
		}
		if !member.IsDirectory() {
			continue
		}
		if _, ok := member.ReverseLookup(id); ok {
			return member.ID(), nil
		}
	}
	return InodeID{}, nil
}
