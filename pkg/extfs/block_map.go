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
	"encoding/binary"

	"gvisor.dev/extfs/pkg/extfs/disklayout"
)

// blockListForInode resolves raw's block pointer trees into the ordered
// list of physical block indices. The expected length comes from the
// inode's sector count; a zero entry inside any indirect array
// terminates the walk early since it marks the end of the allocation.
// Sparse files are not distinguished and not supported.
func (fs *Filesystem) blockListForInode(raw *disklayout.Inode) ([]uint32, error) {
	blockCount := raw.BlocksCount / (fs.blockSize / disklayout.InodeBlocksUnit)
	remaining := blockCount
	list := make([]uint32, 0, blockCount)

	direct := remaining
	if direct > disklayout.NumDirectBlocks {
		direct = disklayout.NumDirectBlocks
	}
	for i := uint32(0); i < direct; i++ {
		list = append(list, raw.BlockPtr(int(i)))
		remaining--
	}
	if remaining == 0 {
		return list, nil
	}

	// processBlockArray reads an indirect block as a uint32 array and
	// feeds each non-zero entry to fn until the expected count is
	// reached.
	var processBlockArray func(arrayBlock uint32, fn func(uint32) error) error
	processBlockArray = func(arrayBlock uint32, fn func(uint32) error) error {
		block, err := fs.readBlock(arrayBlock)
		if err != nil {
			return err
		}
		entriesPerBlock := fs.sb.AddressesPerBlock()
		count := remaining
		if count > entriesPerBlock {
			count = entriesPerBlock
		}
		for i := uint32(0); i < count; i++ {
			entry := binary.LittleEndian.Uint32(block[i*4 : i*4+4])
			if entry == 0 {
				remaining = 0
				return nil
			}
			if err := fn(entry); err != nil {
				return err
			}
		}
		return nil
	}

	appendEntry := func(entry uint32) error {
		list = append(list, entry)
		remaining--
		return nil
	}

	if ind := raw.BlockPtr(disklayout.IndirectBlock); ind != 0 {
		if err := processBlockArray(ind, appendEntry); err != nil {
			return nil, err
		}
	}
	if remaining == 0 {
		return list, nil
	}

	if dind := raw.BlockPtr(disklayout.DoubleIndirectBlock); dind != 0 {
		err := processBlockArray(dind, func(entry uint32) error {
			return processBlockArray(entry, appendEntry)
		})
		if err != nil {
			return nil, err
		}
	}
	if remaining == 0 {
		return list, nil
	}

	if tind := raw.BlockPtr(disklayout.TripleIndirectBlock); tind != 0 {
		err := processBlockArray(tind, func(entry uint32) error {
			return processBlockArray(entry, func(entry uint32) error {
				return processBlockArray(entry, appendEntry)
			})
		})
		if err != nil {
			return nil, err
		}
	}

	return list, nil
}
