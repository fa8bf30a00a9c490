package main

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"coredb/engine"
	"coredb/planner"
	"coredb/sql/parser"
)

func newReplCmd(root *RootCommand) *cobra.Command {
	return &cobra.Command{
		Use:   "repl",
		Short: "interactive SQL shell",
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := root.newEngine()
			if err != nil {
				return err
			}
			defer eng.Close()

			sess := uuid.New()
			scanner := bufio.NewScanner(os.Stdin)
			fmt.Println("reldb> type SQL statements, terminated by ';'. Ctrl-D to quit.")

			var buf strings.Builder
			for {
				if buf.Len() == 0 {
					fmt.Print("reldb> ")
				} else {
					fmt.Print("   ...> ")
				}
				if !scanner.Scan() {
					break
				}
				buf.WriteString(scanner.Text())
				buf.WriteByte('\n')
				if !strings.Contains(scanner.Text(), ";") {
					continue
				}
				sql := strings.TrimSpace(buf.String())
				buf.Reset()
				if sql == "" {
					continue
				}
				runOne(eng, sess, sql)
			}
			return nil
		},
	}
}

func runOne(eng *engine.StorageEngine, sess uuid.UUID, sql string) {
	stmt, err := parser.Parse(sql)
	if err != nil {
		fmt.Printf("parse error: %v\n", err)
		return
	}
	result, err := eng.Execute(sess, stmt)
	if err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}
	if result.Message != "" {
		fmt.Println(result.Message)
	}
	if len(result.Rows) > 0 {
		for _, row := range result.Rows {
			fmt.Println(formatTuple(row))
		}
		fmt.Printf("(%d rows)\n", len(result.Rows))
	} else if result.RowsAffected > 0 {
		fmt.Printf("(%d rows affected)\n", result.RowsAffected)
	}
}

func formatTuple(row planner.Tuple) string {
	keys := make([]string, 0, len(row))
	for k := range row {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%s", strings.TrimPrefix(k, "."), row[k].String())
	}
	return strings.Join(parts, ", ")
}
