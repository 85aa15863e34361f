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
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/matrixorigin/stripeio/pkg/container/types"
	"github.com/matrixorigin/stripeio/pkg/container/vector"
	"github.com/matrixorigin/stripeio/pkg/stripeio"
)

func dumpCommand() *cobra.Command {
	var (
		columns []string
		limit   int
	)
	cmd := &cobra.Command{
		Use:   "dump <file>",
		Short: "Print rows as a table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			fs, name, err := openFile(args[0])
			if err != nil {
				return err
			}
			defer fs.Close()

			opts := profile.Reader
			if len(columns) > 0 {
				opts.Columns = columns
			}
			rd, err := stripeio.NewReader(ctx, fs, name, nil, opts, nil)
			if err != nil {
				return err
			}
			defer rd.Close()

			table := tablewriter.NewWriter(os.Stdout)
			printed := 0
			for printed < limit || limit <= 0 {
				bat, err := rd.NextBatch(ctx)
				if err != nil {
					return err
				}
				if bat == nil {
					break
				}
				if printed == 0 {
					table.SetHeader(bat.Attrs)
				}
				for i := 0; i < bat.RowCount(); i++ {
					if limit > 0 && printed >= limit {
						break
					}
					row := make([]string, len(bat.Vecs))
					for c, vec := range bat.Vecs {
						row[c] = formatValue(vec, i)
					}
					table.Append(row)
					printed++
				}
				bat.Clean()
			}
			table.Render()
			fmt.Printf("%d rows\n", printed)
			return nil
		},
	}
	cmd.Flags().StringSliceVarP(&columns, "columns", "C", nil, "columns to dump, default all")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "max rows to print, 0 for all")
	return cmd
}

func formatValue(vec *vector.Vector, i int) string {
	if vec.IsNull(i) {
		return "NULL"
	}
	t := vec.GetType().Oid
	switch t {
	case types.T_bool:
		return fmt.Sprintf("%v", vector.MustFixedCol[bool](vec)[i])
	case types.T_int32:
		return fmt.Sprintf("%d", vector.MustFixedCol[int32](vec)[i])
	case types.T_int64:
		return fmt.Sprintf("%d", vector.MustFixedCol[int64](vec)[i])
	case types.T_float32:
		return fmt.Sprintf("%g", vector.MustFixedCol[float32](vec)[i])
	case types.T_float64:
		return fmt.Sprintf("%g", vector.MustFixedCol[float64](vec)[i])
	case types.T_decimal64:
		return fmt.Sprintf("%d", vector.MustFixedCol[types.Decimal64](vec)[i])
	case types.T_decimal128:
		d := vector.MustFixedCol[types.Decimal128](vec)[i]
		return fmt.Sprintf("%d:%d", d.B64_127, d.B0_63)
	case types.T_timestamp:
		return fmt.Sprintf("%d", vector.MustFixedCol[types.Timestamp](vec)[i])
	case types.T_char, types.T_varchar:
		return vec.GetStringAt(i)
	case types.T_struct:
		parts := make([]string, len(vec.Children()))
		for c, child := range vec.Children() {
			parts[c] = formatValue(child, i)
		}
		return "{" + strings.Join(parts, ", ") + "}"
	case types.T_array:
		offs := vec.Offsets()
		elem := vec.Children()[0]
		parts := make([]string, 0, offs[i+1]-offs[i])
		for p := offs[i]; p < offs[i+1]; p++ {
			parts = append(parts, formatValue(elem, int(p)))
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case types.T_map:
		offs := vec.Offsets()
		keys, vals := vec.Children()[0], vec.Children()[1]
		parts := make([]string, 0, offs[i+1]-offs[i])
		for p := offs[i]; p < offs[i+1]; p++ {
			parts = append(parts, formatValue(keys, int(p))+":"+formatValue(vals, int(p)))
		}
		return "{" + strings.Join(parts, ", ") + "}"
	}
	return "?"
}
