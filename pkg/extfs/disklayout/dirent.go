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

package disklayout

import (
	"encoding/binary"
	"fmt"
)

// DirentHeaderSize is the size of the fixed part of a directory entry:
// inode number, record length, name length and file type.
const DirentHeaderSize = 8

// MaxFileName is the maximum length of a directory entry name.
const MaxFileName = 255

// DirentRecLen returns the on-disk record length for a name of the given
// length: header plus name, padded up to a 4-byte boundary.
func DirentRecLen(nameLen int) uint16 {
	return uint16((DirentHeaderSize + nameLen + 3) &^ 3)
}

// Dirent emulates Linux's ext2_dir_entry_2 struct, a variable-length
// record in a directory's data blocks. RecordLength is authoritative for
// advancing through the stream and may exceed the record's logical size;
// the final record of each block is padded out to the end of that block.
// An entry with Inode 0 is a tombstone: skipped during traversal but
// still consuming RecordLength bytes.
type Dirent struct {
	Inode        uint32
	RecordLength uint16
	FileType     uint8
	Name         string
}

// SizeBytes returns the logical (unpadded) size of the record.
func (d *Dirent) SizeBytes() int { return DirentHeaderSize + len(d.Name) }

// MarshalBytes serializes the dirent into b. b must be at least
// RecordLength bytes long; the padding bytes are zeroed.
func (d *Dirent) MarshalBytes(b []byte) {
	binary.LittleEndian.PutUint32(b[0:4], d.Inode)
	binary.LittleEndian.PutUint16(b[4:6], d.RecordLength)
	b[6] = uint8(len(d.Name))
	b[7] = d.FileType
	copy(b[DirentHeaderSize:], d.Name)
	for i := DirentHeaderSize + len(d.Name); i < int(d.RecordLength) && i < len(b); i++ {
		b[i] = 0
	}
}

// UnmarshalBytes deserializes one dirent from the start of b, validating
// that the record length stays inside b and covers the name.
func (d *Dirent) UnmarshalBytes(b []byte) error {
	if len(b) < DirentHeaderSize {
		return fmt.Errorf("dirent: %d bytes left in stream, need at least %d", len(b), DirentHeaderSize)
	}
	d.Inode = binary.LittleEndian.Uint32(b[0:4])
	d.RecordLength = binary.LittleEndian.Uint16(b[4:6])
	nameLen := int(b[6])
	d.FileType = b[7]

	if int(d.RecordLength) > len(b) {
		return fmt.Errorf("dirent: record length %d overruns stream (%d bytes left)", d.RecordLength, len(b))
	}
	if d.RecordLength < DirentRecLen(nameLen) {
		return fmt.Errorf("dirent: record length %d shorter than %d needed for a %d-byte name", d.RecordLength, DirentRecLen(nameLen), nameLen)
	}
	if d.Inode != 0 && nameLen == 0 {
		return fmt.Errorf("dirent: live entry for inode %d has an empty name", d.Inode)
	}
	d.Name = string(b[DirentHeaderSize : DirentHeaderSize+nameLen])
	return nil
}
