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

package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/matrixorigin/stripeio/pkg/encodings"
	"github.com/matrixorigin/stripeio/pkg/objectio"
)

var titleColor = color.New(color.FgGreen, color.Bold)

func metaCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "meta <file>",
		Short: "Print file metadata, schema and stripe directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fs, name, err := openFile(args[0])
			if err != nil {
				return err
			}
			defer fs.Close()
			meta, err := objectio.ReadMeta(context.Background(), fs, name)
			if err != nil {
				return err
			}

			titleColor.Printf("file %s\n", args[0])
			fmt.Printf("version:        %d\n", meta.Version)
			fmt.Printf("compression:    %s\n", compressionName(meta.CompressAlg))
			fmt.Printf("rows:           %d\n", meta.Rows())
			fmt.Printf("rows per group: %d\n", meta.RowsPerGroup)

			titleColor.Println("\nschema")
			printSchema(meta.Schema.Root, 0)

			titleColor.Println("\nstripes")
			table := tablewriter.NewWriter(os.Stdout)
			table.SetHeader([]string{"#", "offset", "rows", "data", "index", "footer"})
			for i, s := range meta.Stripes {
				table.Append([]string{
					strconv.Itoa(i),
					strconv.FormatUint(uint64(s.Offset), 10),
					strconv.FormatUint(uint64(s.Rows), 10),
					strconv.FormatUint(uint64(s.DataLen), 10),
					strconv.FormatUint(uint64(s.IndexLen), 10),
					strconv.FormatUint(uint64(s.FooterLen), 10),
				})
			}
			table.Render()

			titleColor.Println("\ncolumn stats")
			stats := tablewriter.NewWriter(os.Stdout)
			stats.SetHeader([]string{"leaf", "name", "nulls", "zonemap"})
			for i, leaf := range meta.Schema.Leaves() {
				stats.Append([]string{
					strconv.Itoa(i),
					leaf.Name,
					strconv.FormatUint(meta.ColStats[i].NullCnt, 10),
					meta.ColStats[i].ZoneMap.String(),
				})
			}
			stats.Render()
			return nil
		},
	}
}

func stripesCommand() *cobra.Command {
	var stripeIdx int
	cmd := &cobra.Command{
		Use:   "streams <file>",
		Short: "Print the stream catalog of one stripe",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			fs, name, err := openFile(args[0])
			if err != nil {
				return err
			}
			defer fs.Close()
			meta, err := objectio.ReadMeta(ctx, fs, name)
			if err != nil {
				return err
			}
			if stripeIdx < 0 || stripeIdx >= len(meta.Stripes) {
				return fmt.Errorf("stripe %d out of range, file has %d", stripeIdx, len(meta.Stripes))
			}
			footer, err := objectio.ReadStripeFooter(ctx, fs, name, meta.Stripes[stripeIdx])
			if err != nil {
				return err
			}

			titleColor.Printf("stripe %d: %d rows\n", stripeIdx, meta.Stripes[stripeIdx].Rows)
			table := tablewriter.NewWriter(os.Stdout)
			table.SetHeader([]string{"leaf", "name", "encoding", "dict", "stream", "offset", "len", "raw"})
			leaves := meta.Schema.Leaves()
			for ord, col := range footer.Columns {
				for _, st := range col.Streams {
					table.Append([]string{
						strconv.Itoa(ord),
						leaves[ord].Name,
						encodings.EncodingName(col.Encoding),
						strconv.FormatUint(uint64(col.DictEntries), 10),
						objectio.StreamKindName(st.Kind),
						strconv.FormatUint(uint64(st.Offset), 10),
						strconv.FormatUint(uint64(st.Len), 10),
						strconv.FormatUint(uint64(st.RawLen), 10),
					})
				}
			}
			table.Render()
			return nil
		},
	}
	cmd.Flags().IntVarP(&stripeIdx, "stripe", "s", 0, "stripe index")
	return cmd
}

func printSchema(node *objectio.Node, depth int) {
	if depth > 0 {
		name := node.Name
		if name == "" {
			name = "<anon>"
		}
		fmt.Printf("%s%s %s (def=%d rep=%d)\n",
			strings.Repeat("  ", depth), name, node.Type.String(), node.Def, node.Rep)
	}
	for _, child := range node.Children {
		printSchema(child, depth+1)
	}
}

func compressionName(alg uint8) string {
	switch alg {
	case 0:
		return "none"
	case 1:
		return "lz4"
	}
	return fmt.Sprintf("unknown(%d)", alg)
}
