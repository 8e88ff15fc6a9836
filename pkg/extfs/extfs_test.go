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
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"golang.org/x/sys/unix"
	"gvisor.dev/extfs/pkg/extfs/disklayout"
	"gvisor.dev/extfs/pkg/extfs/mkfs"
	"gvisor.dev/extfs/pkg/memdev"
)

const (
	testBlockSize   = 1024
	testBlocksCount = 8192
	testInodesCount = 2048
	testTimestamp   = 946684800
)

// newTestFilesystem fabricates a single-group 8 MiB image and mounts
// it.
func newTestFilesystem(t *testing.T) (*Filesystem, *memdev.Device) {
	t.Helper()
	dev := memdev.New(int64(testBlocksCount) * testBlockSize)
	err := mkfs.Format(dev, mkfs.Options{
		BlockSize:   testBlockSize,
		BlocksCount: testBlocksCount,
		InodesCount: testInodesCount,
		Timestamp:   testTimestamp,
	})
	if err != nil {
		t.Fatalf("mkfs.Format failed: %v", err)
	}
	fs, err := NewFilesystem(dev)
	if err != nil {
		t.Fatalf("NewFilesystem failed: %v", err)
	}
	return fs, dev
}

func listNames(t *testing.T, fs *Filesystem, id InodeID) []string {
	t.Helper()
	dir, err := fs.GetInode(id)
	if err != nil {
		t.Fatalf("GetInode(%d) failed: %v", id.Index, err)
	}
	var names []string
	err = dir.TraverseAsDirectory(func(e DirEntry) bool {
		names = append(names, e.Name)
		return true
	})
	if err != nil {
		t.Fatalf("TraverseAsDirectory failed: %v", err)
	}
	return names
}

func TestMount(t *testing.T) {
	fs, _ := newTestFilesystem(t)

	sb := fs.SuperBlock()
	if sb.Magic != disklayout.Magic {
		t.Errorf("superblock magic is %#x, want %#x", sb.Magic, disklayout.Magic)
	}
	if fs.BlockSize() != testBlockSize {
		t.Errorf("block size is %d, want %d", fs.BlockSize(), testBlockSize)
	}
	if fs.BlockGroupCount() != 1 {
		t.Errorf("block group count is %d, want 1", fs.BlockGroupCount())
	}

	root := fs.RootInode()
	if root.Index != disklayout.RootDirInode {
		t.Errorf("root inode is %d, want %d", root.Index, disklayout.RootDirInode)
	}
	md, err := fs.InodeMetadata(root)
	if err != nil {
		t.Fatalf("InodeMetadata(root) failed: %v", err)
	}
	if !disklayout.IsDirectory(md.Mode) {
		t.Errorf("root mode %06o is not a directory", md.Mode)
	}
	if md.BlockSize != testBlockSize {
		t.Errorf("root metadata block size is %d, want %d", md.BlockSize, testBlockSize)
	}
}

func TestMountBadMagic(t *testing.T) {
	dev := memdev.New(testBlocksCount * testBlockSize)
	if _, err := NewFilesystem(dev); !errors.Is(err, unix.EINVAL) {
		t.Errorf("NewFilesystem on a zeroed device returned %v, want EINVAL", err)
	}
}

func TestRootListing(t *testing.T) {
	fs, _ := newTestFilesystem(t)

	var entries []DirEntry
	root, err := fs.GetInode(fs.RootInode())
	if err != nil {
		t.Fatalf("GetInode(root) failed: %v", err)
	}
	err = root.TraverseAsDirectory(func(e DirEntry) bool {
		entries = append(entries, e)
		return true
	})
	if err != nil {
		t.Fatalf("TraverseAsDirectory failed: %v", err)
	}

	want := []DirEntry{
		{Name: ".", ID: fs.RootInode(), Type: disklayout.FileTypeDirectory},
		{Name: "..", ID: fs.RootInode(), Type: disklayout.FileTypeDirectory},
	}
	if diff := cmp.Diff(want, entries); diff != "" {
		t.Errorf("root listing mismatch (-want +got):\n%s", diff)
	}
}

func TestCreateFile(t *testing.T) {
	fs, _ := newTestFilesystem(t)
	before := fs.SuperBlock()

	id, err := fs.CreateInode(fs.RootInode(), "hello", disklayout.ModeRegular|0644, 5)
	if err != nil {
		t.Fatalf("CreateInode failed: %v", err)
	}
	sb := fs.SuperBlock()
	if id.Index < sb.FirstInode() {
		t.Errorf("new inode %d is inside the reserved range", id.Index)
	}

	root, err := fs.GetInode(fs.RootInode())
	if err != nil {
		t.Fatalf("GetInode(root) failed: %v", err)
	}
	got, ok := root.Lookup("hello")
	if !ok || got != id {
		t.Errorf("Lookup(hello) = %v, %t; want %v, true", got, ok, id)
	}

	md, err := fs.InodeMetadata(id)
	if err != nil {
		t.Fatalf("InodeMetadata failed: %v", err)
	}
	if md.Size != 5 {
		t.Errorf("size is %d, want 5", md.Size)
	}
	if md.LinksCount != 1 {
		t.Errorf("link count is %d, want 1", md.LinksCount)
	}

	after := fs.SuperBlock()
	if after.FreeInodesCount != before.FreeInodesCount-1 {
		t.Errorf("free inodes went %d -> %d, want a decrease of 1", before.FreeInodesCount, after.FreeInodesCount)
	}
	if after.FreeBlocksCount != before.FreeBlocksCount-1 {
		t.Errorf("free blocks went %d -> %d, want a decrease of 1", before.FreeBlocksCount, after.FreeBlocksCount)
	}

	if err := fs.Check(context.Background()); err != nil {
		t.Errorf("Check after create failed: %v", err)
	}
}

func TestWriteReadRoundTrip(t *testing.T) {
	fs, _ := newTestFilesystem(t)

	id, err := fs.CreateInode(fs.RootInode(), "hello", disklayout.ModeRegular|0644, 5)
	if err != nil {
		t.Fatalf("CreateInode failed: %v", err)
	}
	if err := fs.WriteInode(id, []byte("world")); err != nil {
		t.Fatalf("WriteInode failed: %v", err)
	}

	in, err := fs.GetInode(id)
	if err != nil {
		t.Fatalf("GetInode failed: %v", err)
	}
	buf := make([]byte, 5)
	n, err := in.ReadBytes(0, buf)
	if err != nil {
		t.Fatalf("ReadBytes failed: %v", err)
	}
	if n != 5 || string(buf[:n]) != "world" {
		t.Errorf("ReadBytes returned %q (%d bytes), want \"world\"", buf[:n], n)
	}

	// Reads past EOF return nothing.
	if n, err := in.ReadBytes(5, buf); n != 0 || err != nil {
		t.Errorf("ReadBytes at EOF = %d, %v; want 0, nil", n, err)
	}

	// A partial read from an offset.
	n, err = in.ReadBytes(1, buf[:3])
	if err != nil || string(buf[:n]) != "orl" {
		t.Errorf("ReadBytes(1, 3) = %q, %v; want \"orl\", nil", buf[:n], err)
	}
}

func TestWriteInodeNoResize(t *testing.T) {
	fs, _ := newTestFilesystem(t)

	id, err := fs.CreateInode(fs.RootInode(), "hello", disklayout.ModeRegular|0644, 5)
	if err != nil {
		t.Fatalf("CreateInode failed: %v", err)
	}
	if err := fs.WriteInode(id, make([]byte, 2*testBlockSize)); !errors.Is(err, unix.EFBIG) {
		t.Errorf("growing WriteInode returned %v, want EFBIG", err)
	}
}

func TestCreateDuplicate(t *testing.T) {
	fs, _ := newTestFilesystem(t)

	if _, err := fs.CreateInode(fs.RootInode(), "hello", disklayout.ModeRegular|0644, 5); err != nil {
		t.Fatalf("CreateInode failed: %v", err)
	}
	before := fs.SuperBlock()

	if _, err := fs.CreateInode(fs.RootInode(), "hello", disklayout.ModeRegular|0644, 5); !errors.Is(err, unix.EEXIST) {
		t.Fatalf("duplicate CreateInode returned %v, want EEXIST", err)
	}

	after := fs.SuperBlock()
	if after.FreeInodesCount != before.FreeInodesCount {
		t.Errorf("free inodes changed %d -> %d on EEXIST", before.FreeInodesCount, after.FreeInodesCount)
	}
	if after.FreeBlocksCount != before.FreeBlocksCount {
		t.Errorf("free blocks changed %d -> %d on EEXIST", before.FreeBlocksCount, after.FreeBlocksCount)
	}
	if err := fs.Check(context.Background()); err != nil {
		t.Errorf("Check after EEXIST failed: %v", err)
	}
}

func TestCreateDirectory(t *testing.T) {
	fs, _ := newTestFilesystem(t)

	rootBefore, err := fs.InodeMetadata(fs.RootInode())
	if err != nil {
		t.Fatalf("InodeMetadata(root) failed: %v", err)
	}
	bgdBefore, err := fs.BlockGroupDescriptor(1)
	if err != nil {
		t.Fatalf("BlockGroupDescriptor(1) failed: %v", err)
	}

	id, err := fs.CreateDirectory(fs.RootInode(), "sub", 0755)
	if err != nil {
		t.Fatalf("CreateDirectory failed: %v", err)
	}

	if names := listNames(t, fs, id); !cmp.Equal([]string{".", ".."}, names) {
		t.Errorf("new directory lists %v, want [. ..]", names)
	}

	sub, err := fs.GetInode(id)
	if err != nil {
		t.Fatalf("GetInode(sub) failed: %v", err)
	}
	if parent, ok := sub.Lookup(".."); !ok || parent != fs.RootInode() {
		t.Errorf("sub/.. resolves to %v, want the root inode", parent)
	}

	rootAfter, err := fs.InodeMetadata(fs.RootInode())
	if err != nil {
		t.Fatalf("InodeMetadata(root) failed: %v", err)
	}
	if rootAfter.LinksCount != rootBefore.LinksCount+1 {
		t.Errorf("root link count went %d -> %d, want an increase of 1", rootBefore.LinksCount, rootAfter.LinksCount)
	}

	bgdAfter, err := fs.BlockGroupDescriptor(1)
	if err != nil {
		t.Fatalf("BlockGroupDescriptor(1) failed: %v", err)
	}
	if bgdAfter.UsedDirsCount != bgdBefore.UsedDirsCount+1 {
		t.Errorf("used dirs count went %d -> %d, want an increase of 1", bgdBefore.UsedDirsCount, bgdAfter.UsedDirsCount)
	}

	if err := fs.Check(context.Background()); err != nil {
		t.Errorf("Check after mkdir failed: %v", err)
	}
}

func TestInlineSymlink(t *testing.T) {
	fs, _ := newTestFilesystem(t)

	id, err := fs.CreateInode(fs.RootInode(), "link", disklayout.ModeSymlink|0777, 0)
	if err != nil {
		t.Fatalf("CreateInode failed: %v", err)
	}

	// Store the short target inline in the block pointer array.
	raw, err := fs.readRawInode(id.Index)
	if err != nil {
		t.Fatalf("readRawInode failed: %v", err)
	}
	target := "/tmp/ab"
	raw.Size = uint32(len(target))
	copy(raw.Data(), target)
	if err := fs.writeRawInode(id.Index, raw); err != nil {
		t.Fatalf("writeRawInode failed: %v", err)
	}

	in, err := fs.GetInode(id)
	if err != nil {
		t.Fatalf("GetInode failed: %v", err)
	}

	// The inode has no data blocks, so these bytes can only come from
	// the inline fast path.
	buf := make([]byte, 16)
	n, err := in.ReadBytes(0, buf)
	if err != nil {
		t.Fatalf("ReadBytes failed: %v", err)
	}
	if string(buf[:n]) != target {
		t.Errorf("ReadBytes = %q, want %q", buf[:n], target)
	}

	n, err = in.ReadBytes(2, buf)
	if err != nil || string(buf[:n]) != target[2:] {
		t.Errorf("ReadBytes(2) = %q, %v; want %q, nil", buf[:n], err, target[2:])
	}
}

func TestSetMtime(t *testing.T) {
	fs, _ := newTestFilesystem(t)

	id, err := fs.CreateInode(fs.RootInode(), "hello", disklayout.ModeRegular|0644, 5)
	if err != nil {
		t.Fatalf("CreateInode failed: %v", err)
	}
	if err := fs.SetMtime(id, 12345); err != nil {
		t.Fatalf("SetMtime failed: %v", err)
	}
	md, err := fs.InodeMetadata(id)
	if err != nil {
		t.Fatalf("InodeMetadata failed: %v", err)
	}
	if md.ModificationTime != 12345 {
		t.Errorf("mtime is %d, want 12345", md.ModificationTime)
	}
}

func TestGetInodeShared(t *testing.T) {
	fs, _ := newTestFilesystem(t)

	a, err := fs.GetInode(fs.RootInode())
	if err != nil {
		t.Fatalf("GetInode failed: %v", err)
	}
	b, err := fs.GetInode(fs.RootInode())
	if err != nil {
		t.Fatalf("GetInode failed: %v", err)
	}
	if a != b {
		t.Error("two resolutions of the same inode returned distinct handles")
	}
}

func TestGetInodeReserved(t *testing.T) {
	fs, _ := newTestFilesystem(t)

	for _, n := range []uint32{0, 5, 10, testInodesCount + 1} {
		if _, err := fs.GetInode(InodeID{FS: fs.ID(), Index: n}); err == nil {
			t.Errorf("GetInode(%d) succeeded, want an error for a reserved or out-of-range inode", n)
		}
	}
	if _, err := fs.GetInode(fs.RootInode()); err != nil {
		t.Errorf("GetInode(root) failed: %v", err)
	}
}

func TestFindParentOfInode(t *testing.T) {
	fs, _ := newTestFilesystem(t)

	dir, err := fs.CreateDirectory(fs.RootInode(), "sub", 0755)
	if err != nil {
		t.Fatalf("CreateDirectory failed: %v", err)
	}
	id, err := fs.CreateInode(dir, "hello", disklayout.ModeRegular|0644, 5)
	if err != nil {
		t.Fatalf("CreateInode failed: %v", err)
	}

	parent, err := fs.FindParentOfInode(id)
	if err != nil {
		t.Fatalf("FindParentOfInode failed: %v", err)
	}
	if parent != dir {
		t.Errorf("FindParentOfInode = %v, want %v", parent, dir)
	}
}
