package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/rochafa10/govfetch"
)

func main() {
	// Best-effort .env for development; a missing file is fine.
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:     "govfetch",
		Short:   "Resilient client for government and public data APIs",
		Version: govfetch.Version,
	}

	root.AddCommand(
		newFetchCmd(),
		newServicesCmd(),
		newVersionCmd(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the full version string",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(govfetch.GetVersion())
		},
	}
}
