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
	"gvisor.dev/extfs/pkg/extfs/disklayout"
)

// blockListCached returns the inode's block list, resolving it on
// first use. Resolution does I/O and therefore runs outside the handle
// lock; a concurrent resolver winning the race is harmless since both
// compute the same list.
func (in *Inode) blockListCached() ([]uint32, error) {
	in.mu.Lock()
	if in.blockList != nil {
		list := in.blockList
		in.mu.Unlock()
		return list, nil
	}
	raw := in.raw
	in.mu.Unlock()

	list, err := in.fs.blockListForInode(&raw)
	if err != nil {
		return nil, err
	}

	in.mu.Lock()
	defer in.mu.Unlock()
	if in.blockList == nil {
		in.blockList = list
	}
	return in.blockList, nil
}

// ReadBytes copies up to len(dst) bytes of file content starting at
// offset into dst and returns the number of bytes copied. Reads past
// the end of the file return 0. Short symlink targets are served
// straight from the inode record without touching the block device.
//
// A failed block read fails the whole call with EIO; partial progress
// is discarded.
func (in *Inode) ReadBytes(offset int64, dst []byte) (int, error) {
	if offset < 0 {
		return 0, unix.EINVAL
	}

	in.mu.Lock()
	size := int64(in.raw.Size)
	mode := in.raw.Mode
	if size == 0 || offset >= size {
		in.mu.Unlock()
		return 0, nil
	}

	// Symbolic links shorter than 60 bytes store the target inline in the
	// block pointer array instead of wasting a block on it.
	if disklayout.IsSymlink(mode) && size < disklayout.MaxInlineSymlinkLen {
		n := size - offset
		if n > int64(len(dst)) {
			n = int64(len(dst))
		}
		copy(dst[:n], in.raw.Data()[offset:offset+n])
		in.mu.Unlock()
		return int(n), nil
	}
	in.mu.Unlock()

	list, err := in.blockListCached()
	if err != nil {
		return 0, err
	}
	if len(list) == 0 {
		logrus.Warnf("extfs: inode %d: empty block list for %d-byte file", in.num, size)
		return 0, unix.EIO
	}

	blockSize := int64(in.fs.blockSize)
	firstBlock := offset / blockSize
	lastBlock := (offset + int64(len(dst))) / blockSize
	if lastBlock >= int64(len(list)) {
		lastBlock = int64(len(list)) - 1
	}

	remaining := int64(len(dst))
	if remaining > size-offset {
		remaining = size - offset
	}

	nread := 0
	for bi := firstBlock; remaining > 0 && bi <= lastBlock; bi++ {
		block, err := in.fs.readBlock(list[bi])
		if err != nil {
			logrus.Warnf("extfs: inode %d: reading block %d (logical %d): %v", in.num, list[bi], bi, err)
			return 0, unix.EIO
		}
		offsetIntoBlock := int64(0)
		if bi == firstBlock {
			offsetIntoBlock = offset % blockSize
		}
		n := blockSize - offsetIntoBlock
		if n > remaining {
			n = remaining
		}
		copy(dst[nread:], block[offsetIntoBlock:offsetIntoBlock+n])
		remaining -= n
		nread += int(n)
	}
	return nread, nil
}

// readEntire reads the whole file content.
func (in *Inode) readEntire() ([]byte, error) {
	buf := make([]byte, in.Size())
	n, err := in.ReadBytes(0, buf)
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}

// WriteInode writes data over the file's blocks of id, starting at the
// first block. The new content must occupy exactly as many blocks as the
// current size implies; growing or shrinking the block list is
// unsupported and returns EFBIG. The inode's size field is not updated,
// so data shorter than the current size leaves the old bytes past
// len(data) in place. Writing symlink inodes is unsupported and returns
// ENOSYS.
func (fs *Filesystem) WriteInode(id InodeID, data []byte) error {
	raw, err := fs.readRawInode(id.Index)
	if err != nil {
		return err
	}

	if disklayout.IsSymlink(raw.Mode) {
		return unix.ENOSYS
	}

	blocksNeededBefore := ceilDiv(raw.Size, fs.blockSize)
	blocksNeededAfter := ceilDiv(uint32(len(data)), fs.blockSize)
	if blocksNeededBefore != blocksNeededAfter {
		return unix.EFBIG
	}

	list, err := fs.blockListForInode(raw)
	if err != nil {
		return err
	}
	if len(list) == 0 && len(data) > 0 {
		logrus.Warnf("extfs: inode %d: empty block list on write", id.Index)
		return unix.EIO
	}

	for i := 0; i < len(list) && i*int(fs.blockSize) < len(data); i++ {
		section := data[i*int(fs.blockSize):]
		if len(section) > int(fs.blockSize) {
			section = section[:fs.blockSize]
		}
		if err := fs.writeBlock(list[i], section); err != nil {
			return err
		}
	}
	return nil
}
