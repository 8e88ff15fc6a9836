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

	"github.com/google/subcommands"
)

// Cat implements subcommands.Command for the "cat" command.
type Cat struct{}

// Name implements subcommands.Command.Name.
func (*Cat) Name() string { return "cat" }

// Synopsis implements subcommands.Command.Synopsis.
func (*Cat) Synopsis() string { return "prints a file's content from an image" }

// Usage implements subcommands.Command.Usage.
func (*Cat) Usage() string { return "cat <image> <path>...\n" }

// SetFlags implements subcommands.Command.SetFlags.
func (*Cat) SetFlags(*flag.FlagSet) {}

// Execute implements subcommands.Command.Execute.
func (*Cat) Execute(_ context.Context, f *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	if f.NArg() < 2 {
		f.Usage()
		return subcommands.ExitUsageError
	}

	img, fs, err := mount(f.Arg(0))
	if err != nil {
		Fatalf("%v", err)
	}
	defer img.Close()

	for _, path := range f.Args()[1:] {
		id, err := resolve(fs, path)
		if err != nil {
			Fatalf("%v", err)
		}
		in, err := fs.GetInode(id)
		if err != nil {
			Fatalf("%v", err)
		}
		buf := make([]byte, in.Size())
		n, err := in.ReadBytes(0, buf)
		if err != nil {
			Fatalf("reading %s: %v", path, err)
		}
		os.Stdout.Write(buf[:n])
	}
	return subcommands.ExitSuccess
}
