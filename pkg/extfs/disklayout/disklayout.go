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

// Package disklayout provides Go implementations of the on-disk data
// structures of the ext2 filesystem: the superblock, the block group
// descriptor, the inode and the directory entry.
//
// All fields are stored little-endian on disk. Unlike ext4 there is no
// 64-bit mode; block and inode numbers fit in 32 bits.
//
// See https://www.kernel.org/doc/html/latest/filesystems/ext4/index.html
// for the (superset) layout documentation.
package disklayout

// SectorSize is the granularity at which the underlying device is
// addressed for the superblock read/write path. The filesystem block size
// is established from the superblock afterwards.
const SectorSize = 512

// SuperBlockOffset is the absolute byte offset of the superblock on disk,
// regardless of block size.
const SuperBlockOffset = 1024

// RootDirInode is the inode number of the root directory. Inode numbers
// are 1-based; inodes below the superblock's first usable inode are
// reserved, with the root directory being the exception.
const RootDirInode = 2
