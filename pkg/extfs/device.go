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

// readBlock reads the filesystem block with the given absolute index.
func (fs *Filesystem) readBlock(index uint32) ([]byte, error) {
	return fs.readBlocks(index, 1)
}

// readBlocks reads count consecutive filesystem blocks starting at
// first.
func (fs *Filesystem) readBlocks(first, count uint32) ([]byte, error) {
	buf := make([]byte, count*fs.blockSize)
	if _, err := fs.dev.ReadAt(buf, int64(first)*int64(fs.blockSize)); err != nil {
		logrus.Warnf("extfs: reading blocks [%d, %d): %v", first, first+count, err)
		return nil, unix.EIO
	}
	return buf, nil
}

// writeBlock writes b to the filesystem block with the given absolute
// index. b may be shorter than a block; the remainder of the block is
// left untouched.
func (fs *Filesystem) writeBlock(index uint32, b []byte) error {
	if _, err := fs.dev.WriteAt(b, int64(index)*int64(fs.blockSize)); err != nil {
		logrus.Warnf("extfs: writing block %d: %v", index, err)
		return unix.EIO
	}
	return nil
}

// writeBlocks writes b to consecutive filesystem blocks starting at
// first.
func (fs *Filesystem) writeBlocks(first uint32, b []byte) error {
	return fs.writeBlock(first, b)
}

// readSuperBlock reads the superblock as two consecutive 512-byte sector
// reads starting at sector 2, independent of the filesystem block size.
func (fs *Filesystem) readSuperBlock() (disklayout.SuperBlock, error) {
	var sb disklayout.SuperBlock
	buf := make([]byte, disklayout.SuperBlockSize)
	for i := 0; i < 2; i++ {
		off := disklayout.SuperBlockOffset + i*disklayout.SectorSize
		if _, err := fs.dev.ReadAt(buf[i*disklayout.SectorSize:(i+1)*disklayout.SectorSize], int64(off)); err != nil {
			logrus.Warnf("extfs: reading superblock sector %d: %v", 2+i, err)
			return sb, unix.EIO
		}
	}
	sb.UnmarshalBytes(buf)
	return sb, nil
}

// writeSuperBlockLocked persists the cached superblock, mirroring the
// two-sector read pattern. The in-memory copy is already current, which
// keeps readers consistent with what just hit the disk.
//
// Precondition: fs.metaMu must be held.
func (fs *Filesystem) writeSuperBlockLocked() error {
	buf := make([]byte, disklayout.SuperBlockSize)
	fs.sb.MarshalBytes(buf)
	for i := 0; i < 2; i++ {
		off := disklayout.SuperBlockOffset + i*disklayout.SectorSize
		if _, err := fs.dev.WriteAt(buf[i*disklayout.SectorSize:(i+1)*disklayout.SectorSize], int64(off)); err != nil {
			logrus.Warnf("extfs: writing superblock sector %d: %v", 2+i, err)
			return unix.EIO
		}
	}
	return nil
}

// bgdtBlocks returns the number of blocks occupied by the descriptor
// table.
func (fs *Filesystem) bgdtBlocks() uint32 {
	return ceilDiv(fs.blockGroupCount*disklayout.BlockGroupSize, fs.blockSize)
}

// readBGDT populates the cached block group descriptor table.
func (fs *Filesystem) readBGDT() error {
	buf, err := fs.readBlocks(fs.bgdtFirstBlock(), fs.bgdtBlocks())
	if err != nil {
		return err
	}
	fs.bgdt = make([]disklayout.BlockGroup, fs.blockGroupCount)
	for i := range fs.bgdt {
		fs.bgdt[i].UnmarshalBytes(buf[i*disklayout.BlockGroupSize:])
	}
	return nil
}

// writeBGDTLocked persists the entire cached descriptor table.
//
// Precondition: fs.metaMu must be held.
func (fs *Filesystem) writeBGDTLocked() error {
	buf := make([]byte, fs.bgdtBlocks()*fs.blockSize)
	for i := range fs.bgdt {
		fs.bgdt[i].MarshalBytes(buf[i*disklayout.BlockGroupSize : i*disklayout.BlockGroupSize+disklayout.BlockGroupSize])
	}
	return fs.writeBlocks(fs.bgdtFirstBlock(), buf)
}
