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

// Inode mode bits: the top nibble holds the file type, the rest holds
// permissions and the set-id/sticky bits. Values match the POSIX S_IF*
// constants.
const (
	ModeTypeMask uint16 = 0xf000

	ModeFIFO      uint16 = 0x1000
	ModeCharDev   uint16 = 0x2000
	ModeDirectory uint16 = 0x4000
	ModeBlockDev  uint16 = 0x6000
	ModeRegular   uint16 = 0x8000
	ModeSymlink   uint16 = 0xa000
	ModeSocket    uint16 = 0xc000
)

// IsRegular returns true if mode describes a regular file.
func IsRegular(mode uint16) bool { return mode&ModeTypeMask == ModeRegular }

// IsDirectory returns true if mode describes a directory.
func IsDirectory(mode uint16) bool { return mode&ModeTypeMask == ModeDirectory }

// IsCharDev returns true if mode describes a character device.
func IsCharDev(mode uint16) bool { return mode&ModeTypeMask == ModeCharDev }

// IsBlockDev returns true if mode describes a block device.
func IsBlockDev(mode uint16) bool { return mode&ModeTypeMask == ModeBlockDev }

// IsFIFO returns true if mode describes a named pipe.
func IsFIFO(mode uint16) bool { return mode&ModeTypeMask == ModeFIFO }

// IsSocket returns true if mode describes a socket.
func IsSocket(mode uint16) bool { return mode&ModeTypeMask == ModeSocket }

// IsSymlink returns true if mode describes a symbolic link.
func IsSymlink(mode uint16) bool { return mode&ModeTypeMask == ModeSymlink }

// Directory entry file type hints, stored in each dirent so readdir does
// not need to touch the inode table.
const (
	FileTypeUnknown  uint8 = 0
	FileTypeRegular  uint8 = 1
	FileTypeDirectory uint8 = 2
	FileTypeCharDev  uint8 = 3
	FileTypeBlockDev uint8 = 4
	FileTypeFIFO     uint8 = 5
	FileTypeSocket   uint8 = 6
	FileTypeSymlink  uint8 = 7
)

// FileTypeFromMode returns the dirent file type hint for an inode mode.
func FileTypeFromMode(mode uint16) uint8 {
	switch mode & ModeTypeMask {
	case ModeRegular:
		return FileTypeRegular
	case ModeDirectory:
		return FileTypeDirectory
	case ModeCharDev:
		return FileTypeCharDev
	case ModeBlockDev:
		return FileTypeBlockDev
	case ModeFIFO:
		return FileTypeFIFO
	case ModeSocket:
		return FileTypeSocket
	case ModeSymlink:
		return FileTypeSymlink
	default:
		return FileTypeUnknown
	}
}
