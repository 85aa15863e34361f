// Copyright 2023 Matrix Origin
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// stripe-tool inspects stripe files: metadata, stream layout and row dumps.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"

	"github.com/matrixorigin/stripeio/pkg/fileservice"
	"github.com/matrixorigin/stripeio/pkg/logutil"
	"github.com/matrixorigin/stripeio/pkg/stripeio"
)

// Profile is the optional TOML configuration passed with --config.
type Profile struct {
	Reader stripeio.ReaderOptions `toml:"reader"`
	Log    logutil.Config         `toml:"log"`
}

var (
	configPath string
	profile    Profile
)

func loadProfile(cmd *cobra.Command, args []string) error {
	if configPath == "" {
		logutil.Setup(logutil.Config{Level: "warn"})
		return nil
	}
	if _, err := toml.DecodeFile(configPath, &profile); err != nil {
		return fmt.Errorf("load config %s: %w", configPath, err)
	}
	logutil.Setup(profile.Log)
	return nil
}

// openFile splits a path into a LocalFS rooted at its directory and the
// file name within it.
func openFile(path string) (fileservice.FileService, string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, "", err
	}
	fs, err := fileservice.NewLocalFS("stripe-tool", filepath.Dir(abs))
	if err != nil {
		return nil, "", err
	}
	return fs, filepath.Base(abs), nil
}

func main() {
	root := &cobra.Command{
		Use:               "stripe-tool",
		Short:             "Inspect stripe files",
		PersistentPreRunE: loadProfile,
		SilenceUsage:      true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "TOML profile with reader and log settings")

	root.AddCommand(metaCommand())
	root.AddCommand(stripesCommand())
	root.AddCommand(dumpCommand())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
