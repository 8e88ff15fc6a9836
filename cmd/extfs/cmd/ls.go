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

	"github.com/google/subcommands"
	"gvisor.dev/extfs/pkg/extfs"
)

// Ls implements subcommands.Command for the "ls" command.
type Ls struct {
	long bool
}

// Name implements subcommands.Command.Name.
func (*Ls) Name() string { return "ls" }

// Synopsis implements subcommands.Command.Synopsis.
func (*Ls) Synopsis() string { return "lists a directory inside an image" }

// Usage implements subcommands.Command.Usage.
func (*Ls) Usage() string { return "ls [flags] <image> [path]\n" }

// SetFlags implements subcommands.Command.SetFlags.
func (l *Ls) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&l.long, "l", false, "long listing")
}

// Execute implements subcommands.Command.Execute.
func (l *Ls) Execute(_ context.Context, f *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	if f.NArg() < 1 || f.NArg() > 2 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	path := "/"
	if f.NArg() == 2 {
		path = f.Arg(1)
	}

	img, fs, err := mount(f.Arg(0))
	if err != nil {
		Fatalf("%v", err)
	}
	defer img.Close()

	id, err := resolve(fs, path)
	if err != nil {
		Fatalf("%v", err)
	}
	dir, err := fs.GetInode(id)
	if err != nil {
		Fatalf("%v", err)
	}

	err = dir.TraverseAsDirectory(func(e extfs.DirEntry) bool {
		if !l.long {
			fmt.Println(e.Name)
			return true
		}
		md, err := fs.InodeMetadata(e.ID)
		if err != nil {
			Fatalf("inode %d: %v", e.ID.Index, err)
		}
		fmt.Printf("%s %4d %8d %8d %s\n", modeString(md.Mode), md.LinksCount, e.ID.Index, md.Size, e.Name)
		return true
	})
	if err != nil {
		Fatalf("%v", err)
	}
	return subcommands.ExitSuccess
}
