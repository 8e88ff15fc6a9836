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
)

// Check implements subcommands.Command for the "check" command. It
// verifies the accounting invariants of an image without repairing
// anything.
type Check struct{}

// Name implements subcommands.Command.Name.
func (*Check) Name() string { return "check" }

// Synopsis implements subcommands.Command.Synopsis.
func (*Check) Synopsis() string { return "verifies an image's allocation accounting" }

// Usage implements subcommands.Command.Usage.
func (*Check) Usage() string { return "check <image>\n" }

// SetFlags implements subcommands.Command.SetFlags.
func (*Check) SetFlags(*flag.FlagSet) {}

// Execute implements subcommands.Command.Execute.
func (*Check) Execute(ctx context.Context, f *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		f.Usage()
		return subcommands.ExitUsageError
	}

	img, fs, err := mount(f.Arg(0))
	if err != nil {
		Fatalf("%v", err)
	}
	defer img.Close()

	if err := fs.Check(ctx); err != nil {
		Fatalf("%v", err)
	}

	sb := fs.SuperBlock()
	fmt.Printf("%s: clean: %d/%d inodes free, %d/%d blocks free, %d group(s)\n",
		f.Arg(0), sb.FreeInodesCount, sb.InodesCount, sb.FreeBlocksCount, sb.BlocksCount, fs.BlockGroupCount())
	return subcommands.ExitSuccess
}
