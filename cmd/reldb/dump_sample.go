package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

func newDumpSampleCmd(root *RootCommand) *cobra.Command {
	var database, outputPath string
	cmd := &cobra.Command{
		Use:   "dump-sample",
		Short: "seed a sample database and dump every index it creates to a file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return dumpSample(root, database, outputPath)
		},
	}
	cmd.Flags().StringVar(&database, "database", "demo", "name of the sample database to create")
	cmd.Flags().StringVar(&outputPath, "out", "sample_run_output.txt", "file to write the dump to")
	return cmd
}

// redirectStdout points os.Stdout at f for the duration of the caller's
// work, returning a func that restores the original.
func redirectStdout(f *os.File) func() {
	original := os.Stdout
	os.Stdout = f
	return func() { os.Stdout = original }
}

// dumpSample seeds database fresh, then walks every B+ tree index file it
// produced and writes the whole run's output to outputPath, a single
// artifact useful for diffing the engine's on-disk layout across changes.
func dumpSample(root *RootCommand, database, outputPath string) error {
	os.RemoveAll(filepath.Join(root.Options.DBRoot, database))

	f, err := os.Create(outputPath)
	if err != nil {
		return err
	}
	defer f.Close()

	restoreStdout := redirectStdout(f)
	defer restoreStdout()

	fmt.Println("========== SEED ==========")
	eng, err := root.newEngine()
	if err != nil {
		return err
	}
	if err := seedDatabase(eng, database); err != nil {
		eng.Close()
		return err
	}
	eng.Close()

	indexDir := filepath.Join(root.Options.DBRoot, database, "indexes")
	entries, err := os.ReadDir(indexDir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		path := filepath.Join(indexDir, entry.Name())
		fmt.Printf("\n========== INSPECT %s ==========\n", entry.Name())
		if err := inspectIndexFile(root, path); err != nil {
			fmt.Printf("inspect error: %v\n", err)
		}
	}
	return nil
}
