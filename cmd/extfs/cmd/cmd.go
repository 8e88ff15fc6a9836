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

// Package cmd holds the extfs subcommands.
package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/gofrs/flock"
	"gvisor.dev/extfs/pkg/extfs"
	"gvisor.dev/extfs/pkg/extfs/disklayout"
)

// Fatalf logs to stderr and exits with a failure code.
func Fatalf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(128)
}

// mount opens the image at path and mounts it.
func mount(path string) (*os.File, *extfs.Filesystem, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, nil, err
	}
	fs, err := extfs.NewFilesystem(f)
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	return f, fs, nil
}

// lockImage takes an advisory lock on the image so concurrent extfs
// invocations cannot interleave mutations. The caller unlocks it.
func lockImage(path string) (*flock.Flock, error) {
	l := flock.New(path)
	if err := l.Lock(); err != nil {
		return nil, fmt.Errorf("locking %s: %w", path, err)
	}
	return l, nil
}

// resolve walks an absolute slash-separated path from the root
// directory to an inode.
func resolve(fs *extfs.Filesystem, path string) (extfs.InodeID, error) {
	id := fs.RootInode()
	for _, component := range strings.Split(path, "/") {
		if component == "" {
			continue
		}
		dir, err := fs.GetInode(id)
		if err != nil {
			return extfs.InodeID{}, err
		}
		child, ok := dir.Lookup(component)
		if !ok {
			return extfs.InodeID{}, fmt.Errorf("%s: no such file or directory", path)
		}
		id = child
	}
	return id, nil
}

// resolveParent splits path into its parent directory's inode and the
// final component.
func resolveParent(fs *extfs.Filesystem, path string) (extfs.InodeID, string, error) {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return extfs.InodeID{}, "", fmt.Errorf("%s: not a creatable path", path)
	}
	components := strings.Split(trimmed, "/")
	name := components[len(components)-1]
	parent, err := resolve(fs, strings.Join(components[:len(components)-1], "/"))
	if err != nil {
		return extfs.InodeID{}, "", err
	}
	return parent, name, nil
}

// modeString renders an inode mode ls-style.
func modeString(mode uint16) string {
	var b strings.Builder
	switch mode & disklayout.ModeTypeMask {
	case disklayout.ModeDirectory:
		b.WriteByte('d')
	case disklayout.ModeSymlink:
		b.WriteByte('l')
	case disklayout.ModeCharDev:
		b.WriteByte('c')
	case disklayout.ModeBlockDev:
		b.WriteByte('b')
	case disklayout.ModeFIFO:
		b.WriteByte('p')
	case disklayout.ModeSocket:
		b.WriteByte('s')
	default:
		b.WriteByte('-')
	}
	bits := "rwxrwxrwx"
	for i := 0; i < 9; i++ {
		if mode>>(8-i)&1 != 0 {
			b.WriteByte(bits[i])
		} else {
			b.WriteByte('-')
		}
	}
	return b.String()
}
