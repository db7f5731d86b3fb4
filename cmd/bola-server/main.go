package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/BioHazard786/bola/internal/clock"
	"github.com/BioHazard786/bola/internal/config"
	"github.com/BioHazard786/bola/internal/leaderboard"
	"github.com/BioHazard786/bola/internal/logging"
	"github.com/BioHazard786/bola/internal/server"
	"github.com/BioHazard786/bola/internal/signaling"
	"github.com/BioHazard786/bola/internal/store"
	"github.com/BioHazard786/bola/internal/tournament"
	"github.com/BioHazard786/bola/internal/version"
)

const shutdownTimeout = 5 * time.Second

func main() {
	rootCmd := &cobra.Command{
		Use:     "bola-server",
		Short:   "Game API server for bola",
		Long:    `bola-server hosts the live leaderboards, the weekly tournament clock and the WebRTC signaling broker for peer-to-peer multiplayer rooms.`,
		Version: version.Version,
	}
	rootCmd.AddCommand(newServeCmd(), newVersionCmd())

	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newServeCmd() *cobra.Command {
	var opts config.Options

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and websocket server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.ConfigPath, "config", "c", "", "YAML config file (env BOLA_CONFIG)")
	flags.StringVar(&opts.ListenAddr, "listen", "", "listen address (default "+config.DefaultListenAddr+")")
	flags.StringVar(&opts.APIToken, "api-token", "", "bearer token for highscore submissions")
	flags.StringVar(&opts.DatabasePath, "db", "", "SQLite database path (default "+config.DefaultDatabasePath+")")
	flags.IntVar(&opts.LeaderboardSpan, "span", 0, "entries per leaderboard")
	flags.IntVar(&opts.MaxRoomSize, "max-room-size", 0, "maximum joiners per multiplayer room")
	flags.Int64Var(&opts.TournamentStart, "tournament-start", 0, "unix time of tournament week zero")
	flags.StringVar(&opts.STUNServer, "stun", "", "STUN server URL")
	flags.StringVar(&opts.TURNServer, "turn", "", "TURN server host")
	flags.StringVar(&opts.TURNUser, "turn-user", "", "TURN username")
	flags.StringVar(&opts.TURNPass, "turn-pass", "", "TURN password")
	flags.StringVar(&opts.LogLevel, "log-level", "", "debug, info, warn or error")

	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "bola-server", version.Version)
		},
	}
}

func runServe(ctx context.Context, opts config.Options) error {
	cfg, err := config.Load(opts)
	if err != nil {
		return err
	}
	logger := logging.Init(cfg.LogLevel)

	st, err := store.Open(cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer st.Close()

	board := leaderboard.New(st, cfg.LeaderboardSpan, logger.With("component", "leaderboard"))
	if err := board.Load(ctx); err != nil {
		return err
	}

	manager := signaling.NewManager(signaling.WithLogger(logger.With("component", "signaling")))
	tour := tournament.New(cfg.TournamentStartTime(), clock.Real())
	srv := server.New(cfg, manager, board, tour, logger.With("component", "server"))

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		// Websocket handlers live as long as this context, so a shutdown
		// closes every room.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", "addr", cfg.ListenAddr, "version", version.Version)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down", "rooms", manager.Len())
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown incomplete", slog.Any("error", err))
		return err
	}
	return nil
}
