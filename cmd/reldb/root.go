// Command reldb is the single entry point for the engine: an interactive
// SQL shell plus a few inspection utilities, replacing the three separate
// seed/inspect-idx/dump-sample binaries with subcommands of one tool.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"coredb/engine"
)

type Options struct {
	DBRoot        string
	PageCacheSize int
	Dev           bool
}

type RootCommand struct {
	*cobra.Command
	Options Options
}

func Init() *RootCommand {
	cmd := &RootCommand{
		Command: &cobra.Command{
			Use:   "reldb",
			Short: "a teaching relational database engine",
		},
	}
	cmd.initFlags()
	cmd.AddCommand(
		newReplCmd(cmd),
		newSeedCmd(cmd),
		newInspectIdxCmd(cmd),
		newDumpSampleCmd(cmd),
	)
	return cmd
}

func (c *RootCommand) initFlags() {
	c.PersistentFlags().StringVar(&c.Options.DBRoot, "db-root", "databases", "root directory holding every database")
	c.PersistentFlags().IntVar(&c.Options.PageCacheSize, "page-cache-size", 256, "buffer pool capacity, in pages")
	c.PersistentFlags().BoolVar(&c.Options.Dev, "dev", false, "use a human-readable console logger instead of JSON")
}

func (c *RootCommand) Execute(ctx context.Context) error {
	return c.ExecuteContext(ctx)
}

func (c *RootCommand) MustExecute(ctx context.Context) {
	if err := c.Execute(ctx); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "reldb: %v\n", err)
		os.Exit(1)
	}
}

func (c *RootCommand) newLogger() *zap.Logger {
	if c.Options.Dev {
		log, _ := zap.NewDevelopment()
		return log
	}
	log, _ := zap.NewProduction()
	return log
}

func (c *RootCommand) newEngine() (*engine.StorageEngine, error) {
	log := c.newLogger()
	return engine.NewStorageEngine(c.Options.DBRoot, afero.NewOsFs(), c.Options.PageCacheSize, log)
}

func main() {
	root := Init()
	root.MustExecute(context.Background())
}
