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
	"math/bits"

	"github.com/sirupsen/logrus"
)

// bitmap is a view over one block of an allocation bitmap. Bit i of the
// group's bitmap corresponds to block/inode number group_first + i.
type bitmap []byte

func (bm bitmap) get(i uint32) bool { return bm[i/8]&(1<<(i%8)) != 0 }

func (bm bitmap) set(i uint32, v bool) {
	if v {
		bm[i/8] |= 1 << (i % 8)
	} else {
		bm[i/8] &^= 1 << (i % 8)
	}
}

// findFirstClear returns the first clear bit below limit.
func (bm bitmap) findFirstClear(limit uint32) (uint32, bool) {
	for byt := uint32(0); byt*8 < limit; byt++ {
		if bm[byt] == 0xff {
			continue
		}
		for bit := uint32(0); bit < 8; bit++ {
			i := byt*8 + bit
			if i >= limit {
				return 0, false
			}
			if bm[byt]&(1<<bit) == 0 {
				return i, true
			}
		}
	}
	return 0, false
}

// popcount returns the number of set bits below limit.
func (bm bitmap) popcount(limit uint32) uint32 {
	var n uint32
	for byt := uint32(0); byt*8 < limit; byt++ {
		b := bm[byt]
		if rem := limit - byt*8; rem < 8 {
			b &= byte(1<<rem) - 1
		}
		n += uint32(bits.OnesCount8(b))
	}
	return n
}

// setInodeAllocationState flips inode n's bit in its group's inode
// bitmap and updates the two redundant counters, in this order: bitmap
// block, superblock free count, group descriptor free count. Each
// surface is written through before the next is touched. A bit already
// in the requested state short-circuits with no writes.
//
// Precondition: fs.mu must be held.
func (fs *Filesystem) setInodeAllocationState(n uint32, allocated bool) error {
	group := fs.groupOfInode(n)
	bgd, err := fs.blockGroupDescriptor(group)
	if err != nil {
		return err
	}

	bitsPerBlock := fs.blockSize * 8
	index := fs.inodeIndexInGroup(n)
	bitmapBlock := bgd.InodeBitmap + index/bitsPerBlock
	bit := index % bitsPerBlock

	block, err := fs.readBlock(bitmapBlock)
	if err != nil {
		return err
	}
	bm := bitmap(block)
	if bm.get(bit) == allocated {
		return nil
	}
	logrus.Debugf("extfs: inode %d allocation state %t -> %t", n, !allocated, allocated)
	bm.set(bit, allocated)
	if err := fs.writeBlock(bitmapBlock, block); err != nil {
		return err
	}

	fs.metaMu.Lock()
	defer fs.metaMu.Unlock()
	if allocated {
		fs.sb.FreeInodesCount--
	} else {
		fs.sb.FreeInodesCount++
	}
	if err := fs.writeSuperBlockLocked(); err != nil {
		return err
	}
	if allocated {
		fs.bgdt[group-1].FreeInodesCount--
	} else {
		fs.bgdt[group-1].FreeInodesCount++
	}
	return fs.writeBGDTLocked()
}

// setBlockAllocationState is the block twin of setInodeAllocationState:
// same three-surface update, same ordering, same short-circuit.
//
// Precondition: fs.mu must be held.
func (fs *Filesystem) setBlockAllocationState(group, blk uint32, allocated bool) error {
	bgd, err := fs.blockGroupDescriptor(group)
	if err != nil {
		return err
	}

	bitsPerBlock := fs.blockSize * 8
	index := blk - fs.firstBlockOfGroup(group)
	bitmapBlock := bgd.BlockBitmap + index/bitsPerBlock
	bit := index % bitsPerBlock

	block, err := fs.readBlock(bitmapBlock)
	if err != nil {
		return err
	}
	bm := bitmap(block)
	if bm.get(bit) == allocated {
		return nil
	}
	logrus.Debugf("extfs: block %d allocation state %t -> %t", blk, !allocated, allocated)
	bm.set(bit, allocated)
	if err := fs.writeBlock(bitmapBlock, block); err != nil {
		return err
	}

	fs.metaMu.Lock()
	defer fs.metaMu.Unlock()
	if allocated {
		fs.sb.FreeBlocksCount--
	} else {
		fs.sb.FreeBlocksCount++
	}
	if err := fs.writeSuperBlockLocked(); err != nil {
		return err
	}
	if allocated {
		fs.bgdt[group-1].FreeBlocksCount--
	} else {
		fs.bgdt[group-1].FreeBlocksCount++
	}
	return fs.writeBGDTLocked()
}
