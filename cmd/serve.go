package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/photo-dedupe/internal/photostore"
	"github.com/kozaktomas/photo-dedupe/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the review web server",
	Long: `Start the HTTP API for browsing duplicate groups and reviewing batches.

Detection runs as background jobs with progress streamed over SSE. When the
photo source is a local directory, the server watches it and invalidates the
cached detection result whenever photos change.

Examples:
  # Serve the configured photo source on the default port
  photo-dedupe serve

  # Serve a directory on a custom port
  photo-dedupe serve --dir ~/Pictures --port 9000`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("dir", "", "Photo directory to serve (defaults to PHOTOS_DIR)")
	serveCmd.Flags().Int("port", 0, "Port to listen on (defaults to WEB_PORT or 8080)")
	serveCmd.Flags().String("host", "", "Host to bind (defaults to WEB_HOST)")
}

func runServe(cmd *cobra.Command, args []string) error {
	dir := mustGetString(cmd, "dir")
	port := mustGetInt(cmd, "port")
	host := mustGetString(cmd, "host")

	deps, err := initApp(dir)
	if err != nil {
		return err
	}
	defer deps.Close()

	if port != 0 {
		deps.cfg.Web.Port = port
	}
	if host != "" {
		deps.cfg.Web.Host = host
	}

	if fs, ok := deps.photos.(*photostore.FilesystemStore); ok {
		watcher, err := photostore.NewWatcher(fs.Root(), deps.engine.InvalidateResults)
		if err != nil {
			fmt.Printf("Warning: photo watcher disabled: %v\n", err)
		} else if err := watcher.Start(); err != nil {
			fmt.Printf("Warning: photo watcher disabled: %v\n", err)
			_ = watcher.Close()
		} else {
			defer func() { _ = watcher.Close() }()
		}
	}

	server := web.NewServer(deps.cfg, deps.engine, deps.photos)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\nShutting down...")
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			fmt.Printf("Error during shutdown: %v\n", err)
		}
	}()

	fmt.Printf("Starting photo-dedupe web server on http://%s\n", deps.cfg.Web.Addr())
	fmt.Println("Press Ctrl+C to stop")

	return server.Start()
}
