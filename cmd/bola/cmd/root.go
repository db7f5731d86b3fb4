package cmd

import (
	"context"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/BioHazard786/bola/internal/client"
	"github.com/BioHazard786/bola/internal/config"
	"github.com/BioHazard786/bola/internal/ui"
	"github.com/BioHazard786/bola/internal/version"
)

var serverURL string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:     "bola",
	Short:   "Operator tool for a bola game server",
	Long:    `bola inspects a running bola server: live room counters, leaderboards (optionally as a live view) and the current tournament week.`,
	Version: version.Version,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&serverURL, "server", "s", "", "server base URL (env BOLA_SERVER, default "+config.DefaultServerURL+")")
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		if clientErr, ok := err.(*client.Error); ok {
			clientErr.Print()
		} else {
			ui.PrintError(err.Error())
		}
		stop()
		os.Exit(1)
	}
}

func newClient() (*client.Client, error) {
	cfg, err := config.LoadClient(serverURL)
	if err != nil {
		return nil, err
	}
	return client.New(cfg), nil
}
