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

// DirEntry is one live directory record.
type DirEntry struct {
	Name string
	ID   InodeID

	// Type is the dirent file type hint (disklayout.FileType*).
	Type uint8
}

// TraverseAsDirectory decodes the directory's record stream and invokes
// cb for each live entry in stream order. Tombstone records (inode 0)
// are skipped but still advance the walk by their record length. cb
// returning false stops the traversal early.
func (in *Inode) TraverseAsDirectory(cb func(DirEntry) bool) error {
	if !in.IsDirectory() {
		return unix.ENOTDIR
	}

	buf, err := in.readEntire()
	if err != nil {
		return err
	}

	for off := 0; off < len(buf); {
		var d disklayout.Dirent
		if err := d.UnmarshalBytes(buf[off:]); err != nil {
			logrus.Warnf("extfs: inode %d: corrupt directory stream at offset %d: %v", in.num, off, err)
			return unix.EIO
		}
		if d.Inode != 0 {
			if !cb(DirEntry{Name: d.Name, ID: InodeID{FS: in.fs.fsid, Index: d.Inode}, Type: d.FileType}) {
				break
			}
		}
		off += int(d.RecordLength)
	}
	return nil
}

// writeDirectoryInode reencodes entries as the full content of the
// directory inode dir. Record lengths are padded to 4-byte boundaries
// and the last record is extended so it reaches the end of the final
// block.
func (fs *Filesystem) writeDirectoryInode(dir uint32, entries []DirEntry) error {
	var directorySize uint32
	for _, e := range entries {
		directorySize += uint32(disklayout.DirentRecLen(len(e.Name)))
	}
	occupied := ceilDiv(directorySize, fs.blockSize) * fs.blockSize

	buf := make([]byte, occupied)
	off := uint32(0)
	for i, e := range entries {
		recLen := uint32(disklayout.DirentRecLen(len(e.Name)))
		if i == len(entries)-1 {
			recLen += occupied - directorySize
		}
		d := disklayout.Dirent{
			Inode:        e.ID.Index,
			RecordLength: uint16(recLen),
			FileType:     e.Type,
			Name:         e.Name,
		}
		d.MarshalBytes(buf[off : off+recLen])
		off += recLen
	}

	return fs.WriteInode(InodeID{FS: fs.fsid, Index: dir}, buf)
}

// populateLookupCache fills the directory's name map on first use. The
// check-read-recheck dance keeps the traversal I/O outside the handle
// lock without ever installing two maps.
func (in *Inode) populateLookupCache() error {
	in.mu.Lock()
	if in.lookupCache != nil {
		in.mu.Unlock()
		return nil
	}
	in.mu.Unlock()

	children := make(map[string]uint32)
	err := in.TraverseAsDirectory(func(e DirEntry) bool {
		children[e.Name] = e.ID.Index
		return true
	})
	if err != nil {
		return err
	}

	in.mu.Lock()
	defer in.mu.Unlock()
	if in.lookupCache == nil {
		in.lookupCache = children
	}
	return nil
}

// Lookup resolves name within the directory.
func (in *Inode) Lookup(name string) (InodeID, bool) {
	if err := in.populateLookupCache(); err != nil {
		return InodeID{}, false
	}
	in.mu.Lock()
	defer in.mu.Unlock()
	n, ok := in.lookupCache[name]
	if !ok {
		return InodeID{}, false
	}
	return InodeID{FS: in.fs.fsid, Index: n}, true
}

// ReverseLookup returns the name under which child appears in the
// directory.
func (in *Inode) ReverseLookup(child InodeID) (string, bool) {
	if err := in.populateLookupCache(); err != nil {
		return "", false
	}
	in.mu.Lock()
	defer in.mu.Unlock()
	for name, n := range in.lookupCache {
		if n == child.Index {
			return name, true
		}
	}
	return "", false
}

// addInodeToDirectory appends a record for child to parent, rewriting
// the whole record stream. Returns EEXIST if the name is already taken.
func (fs *Filesystem) addInodeToDirectory(parent *Inode, child uint32, name string, fileType uint8) error {
	logrus.Debugf("extfs: adding inode %d as %q to directory %d", child, name, parent.num)

	var entries []DirEntry
	nameExists := false
	err := parent.TraverseAsDirectory(func(e DirEntry) bool {
		if e.Name == name {
			nameExists = true
			return false
		}
		entries = append(entries, e)
		return true
	})
	if err != nil {
		return err
	}
	if nameExists {
		logrus.Warnf("extfs: name %q already exists in directory inode %d", name, parent.num)
		return unix.EEXIST
	}

	entries = append(entries, DirEntry{Name: name, ID: InodeID{FS: fs.fsid, Index: child}, Type: fileType})
	if err := fs.writeDirectoryInode(parent.num, entries); err != nil {
		return err
	}

	// The record stream changed without a raw-inode rewrite, so the name
	// map has to be dropped by hand.
	parent.mu.Lock()
	parent.lookupCache = nil
	parent.mu.Unlock()
	return nil
}
