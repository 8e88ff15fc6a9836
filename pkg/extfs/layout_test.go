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
	"testing"

	"gvisor.dev/extfs/pkg/extfs/disklayout"
)

// layoutFilesystem builds a Filesystem with just enough superblock
// state for the pure layout arithmetic.
func layoutFilesystem(blockSize, inodesPerGroup, blocksPerGroup, firstDataBlock uint32) *Filesystem {
	fs := &Filesystem{blockSize: blockSize}
	fs.sb.InodesPerGroup = inodesPerGroup
	fs.sb.BlocksPerGroup = blocksPerGroup
	fs.sb.FirstDataBlock = firstDataBlock
	fs.sb.InodesCount = 4 * inodesPerGroup
	fs.sb.RevLevel = disklayout.DynamicRev
	fs.sb.FirstInodeRaw = disklayout.OldFirstInode
	return fs
}

func TestGroupOfInode(t *testing.T) {
	fs := layoutFilesystem(1024, 2048, 8192, 1)

	tests := []struct {
		inode uint32
		group uint32
	}{
		{0, 0}, // 0 is the invalid-inode sentinel.
		{1, 1},
		{2, 1},
		{2048, 1},
		{2049, 2},
		{4096, 2},
		{4097, 3},
	}
	for _, test := range tests {
		if got := fs.groupOfInode(test.inode); got != test.group {
			t.Errorf("groupOfInode(%d) = %d, want %d", test.inode, got, test.group)
		}
	}
}

// TestPlacementInverses checks that group numbering round-trips with the
// ext2 placement rules.
func TestPlacementInverses(t *testing.T) {
	fs := layoutFilesystem(1024, 2048, 8192, 1)

	for g := uint32(1); g <= 4; g++ {
		firstInode := (g-1)*fs.sb.InodesPerGroup + 1
		if got := fs.groupOfInode(firstInode); got != g {
			t.Errorf("groupOfInode(first inode of group %d) = %d", g, got)
		}
		if got := fs.groupOfInode(firstInode + fs.sb.InodesPerGroup - 1); got != g {
			t.Errorf("groupOfInode(last inode of group %d) = %d", g, got)
		}
		wantFirstBlock := fs.sb.FirstDataBlock + (g-1)*fs.sb.BlocksPerGroup
		if got := fs.firstBlockOfGroup(g); got != wantFirstBlock {
			t.Errorf("firstBlockOfGroup(%d) = %d, want %d", g, got, wantFirstBlock)
		}
	}
}

func TestInodeIndexInGroup(t *testing.T) {
	fs := layoutFilesystem(1024, 2048, 8192, 1)

	tests := []struct {
		inode uint32
		index uint32
	}{
		{1, 0},
		{2048, 2047},
		{2049, 0},
	}
	for _, test := range tests {
		if got := fs.inodeIndexInGroup(test.inode); got != test.index {
			t.Errorf("inodeIndexInGroup(%d) = %d, want %d", test.inode, got, test.index)
		}
	}
}

func TestBgdtFirstBlock(t *testing.T) {
	tests := []struct {
		blockSize uint32
		want      uint32
	}{
		{1024, 2},
		{2048, 1},
		{4096, 1},
	}
	for _, test := range tests {
		fs := layoutFilesystem(test.blockSize, 2048, test.blockSize*8, 0)
		if got := fs.bgdtFirstBlock(); got != test.want {
			t.Errorf("bgdtFirstBlock with %d-byte blocks = %d, want %d", test.blockSize, got, test.want)
		}
	}
}

func TestValidInodeNumber(t *testing.T) {
	fs := layoutFilesystem(1024, 2048, 8192, 1)

	tests := []struct {
		inode uint32
		want  bool
	}{
		{0, false},
		{1, false},
		{disklayout.RootDirInode, true},
		{3, false},
		{10, false},
		{11, true},
		{fs.sb.InodesCount, true},
		{fs.sb.InodesCount + 1, false},
	}
	for _, test := range tests {
		if got := fs.validInodeNumber(test.inode); got != test.want {
			t.Errorf("validInodeNumber(%d) = %t, want %t", test.inode, got, test.want)
		}
	}
}
