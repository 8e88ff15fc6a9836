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
	"io"
	"os"

	"github.com/google/subcommands"
	"gvisor.dev/extfs/pkg/extfs/disklayout"
)

// Touch implements subcommands.Command for the "touch" command. It
// creates a regular file, optionally filled from stdin.
type Touch struct {
	mode  uint
	stdin bool
}

// Name implements subcommands.Command.Name.
func (*Touch) Name() string { return "touch" }

// Synopsis implements subcommands.Command.Synopsis.
func (*Touch) Synopsis() string { return "creates a regular file inside an image" }

// Usage implements subcommands.Command.Usage.
func (*Touch) Usage() string { return "touch [flags] <image> <path>\n" }

// SetFlags implements subcommands.Command.SetFlags.
func (t *Touch) SetFlags(f *flag.FlagSet) {
	f.UintVar(&t.mode, "mode", 0644, "permission bits for the new file")
	f.BoolVar(&t.stdin, "stdin", false, "fill the file with the bytes read from stdin")
}

// Execute implements subcommands.Command.Execute.
func (t *Touch) Execute(_ context.Context, f *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 2 {
		f.Usage()
		return subcommands.ExitUsageError
	}

	var content []byte
	if t.stdin {
		var err error
		if content, err = io.ReadAll(os.Stdin); err != nil {
			Fatalf("reading stdin: %v", err)
		}
	}

	lock, err := lockImage(f.Arg(0))
	if err != nil {
		Fatalf("%v", err)
	}
	defer lock.Unlock()

	img, fs, err := mount(f.Arg(0))
	if err != nil {
		Fatalf("%v", err)
	}
	defer img.Close()

	parent, name, err := resolveParent(fs, f.Arg(1))
	if err != nil {
		Fatalf("%v", err)
	}

	mode := disklayout.ModeRegular | uint16(t.mode)
	id, err := fs.CreateInode(parent, name, mode, uint32(len(content)))
	if err != nil {
		Fatalf("touch %s: %v", f.Arg(1), err)
	}
	if len(content) > 0 {
		if err := fs.WriteInode(id, content); err != nil {
			Fatalf("writing %s: %v", f.Arg(1), err)
		}
	}
	return subcommands.ExitSuccess
}
