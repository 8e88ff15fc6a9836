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

	"github.com/google/subcommands"
)

// Mkdir implements subcommands.Command for the "mkdir" command.
type Mkdir struct {
	mode uint
}

// Name implements subcommands.Command.Name.
func (*Mkdir) Name() string { return "mkdir" }

// Synopsis implements subcommands.Command.Synopsis.
func (*Mkdir) Synopsis() string { return "creates a directory inside an image" }

// Usage implements subcommands.Command.Usage.
func (*Mkdir) Usage() string { return "mkdir [flags] <image> <path>\n" }

// SetFlags implements subcommands.Command.SetFlags.
func (m *Mkdir) SetFlags(f *flag.FlagSet) {
	f.UintVar(&m.mode, "mode", 0755, "permission bits for the new directory")
}

// Execute implements subcommands.Command.Execute.
func (m *Mkdir) Execute(_ context.Context, f *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 2 {
		f.Usage()
		return subcommands.ExitUsageError
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
	if _, err := fs.CreateDirectory(parent, name, uint16(m.mode)); err != nil {
		Fatalf("mkdir %s: %v", f.Arg(1), err)
	}
	return subcommands.ExitSuccess
}
