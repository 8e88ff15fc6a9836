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

package cmd

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/google/subcommands"
	"gvisor.dev/extfs/pkg/extfs/mkfs"
)

// Mkfs implements subcommands.Command for the "mkfs" command.
type Mkfs struct {
	blockSize uint
	blocks    uint
	inodes    uint
	label     string
}

// Name implements subcommands.Command.Name.
func (*Mkfs) Name() string { return "mkfs" }

// Synopsis implements subcommands.Command.Synopsis.
func (*Mkfs) Synopsis() string { return "formats an image file with a fresh ext2 filesystem" }

// Usage implements subcommands.Command.Usage.
func (*Mkfs) Usage() string { return "mkfs [flags] <image>\n" }

// SetFlags implements subcommands.Command.SetFlags.
func (m *Mkfs) SetFlags(f *flag.FlagSet) {
	f.UintVar(&m.blockSize, "block-size", 1024, "filesystem block size (1024, 2048 or 4096)")
	f.UintVar(&m.blocks, "blocks", 8192, "total number of blocks")
	f.UintVar(&m.inodes, "inodes", 0, "number of inodes (default: blocks/4)")
	f.StringVar(&m.label, "label", "", "volume label")
}

// Execute implements subcommands.Command.Execute.
func (m *Mkfs) Execute(_ context.Context, f *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	path := f.Arg(0)

	img, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		Fatalf("opening %s: %v", path, err)
	}
	defer img.Close()

	lock, err := lockImage(path)
	if err != nil {
		Fatalf("%v", err)
	}
	defer lock.Unlock()

	size := int64(m.blocks) * int64(m.blockSize)
	if err := img.Truncate(0); err != nil {
		Fatalf("truncating %s: %v", path, err)
	}
	if err := img.Truncate(size); err != nil {
		Fatalf("sizing %s to %d bytes: %v", path, size, err)
	}

	opts := mkfs.Options{
		BlockSize:   uint32(m.blockSize),
		BlocksCount: uint32(m.blocks),
		InodesCount: uint32(m.inodes),
		Label:       m.label,
		Timestamp:   uint32(time.Now().Unix()),
	}
	if err := mkfs.Format(img, opts); err != nil {
		Fatalf("%v", err)
	}
	return subcommands.ExitSuccess
}
