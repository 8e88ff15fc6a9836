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
	"fmt"
	"time"

	"github.com/google/subcommands"
	"gvisor.dev/extfs/pkg/extfs/disklayout"
)

// Stat implements subcommands.Command for the "stat" command.
type Stat struct{}

// Name implements subcommands.Command.Name.
func (*Stat) Name() string { return "stat" }

// Synopsis implements subcommands.Command.Synopsis.
func (*Stat) Synopsis() string { return "prints inode metadata from an image" }

// Usage implements subcommands.Command.Usage.
func (*Stat) Usage() string { return "stat <image> <path>\n" }

// SetFlags implements subcommands.Command.SetFlags.
func (*Stat) SetFlags(*flag.FlagSet) {}

// Execute implements subcommands.Command.Execute.
func (*Stat) Execute(_ context.Context, f *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 2 {
		f.Usage()
		return subcommands.ExitUsageError
	}

	img, fs, err := mount(f.Arg(0))
	if err != nil {
		Fatalf("%v", err)
	}
	defer img.Close()

	id, err := resolve(fs, f.Arg(1))
	if err != nil {
		Fatalf("%v", err)
	}
	md, err := fs.InodeMetadata(id)
	if err != nil {
		Fatalf("%v", err)
	}

	fmt.Printf("inode: %d\n", id.Index)
	fmt.Printf("mode: %s (%06o)\n", modeString(md.Mode), md.Mode)
	fmt.Printf("size: %d\n", md.Size)
	fmt.Printf("links: %d\n", md.LinksCount)
	fmt.Printf("uid/gid: %d/%d\n", md.UID, md.GID)
	fmt.Printf("blocks: %d (%d-byte units), block size %d\n", md.BlocksCount, disklayout.InodeBlocksUnit, md.BlockSize)
	fmt.Printf("atime: %s\n", time.Unix(int64(md.AccessTime), 0).UTC())
	fmt.Printf("mtime: %s\n", time.Unix(int64(md.ModificationTime), 0).UTC())
	fmt.Printf("ctime: %s\n", time.Unix(int64(md.ChangeTime), 0).UTC())
	if disklayout.IsBlockDev(md.Mode) || disklayout.IsCharDev(md.Mode) {
		fmt.Printf("device: %d:%d\n", md.MajorDevice, md.MinorDevice)
	}
	return subcommands.ExitSuccess
}
