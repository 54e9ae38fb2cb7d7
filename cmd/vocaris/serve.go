package main

import (
	"log"
	"os"

	"github.com/spf13/cobra"
	"github.com/vocaris/vocaris/backend"
	"github.com/vocaris/vocaris/clickup"
	internalstrings "github.com/vocaris/vocaris/internal/strings"
	"github.com/vocaris/vocaris/proxy"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the local JSON proxy in front of the backend",
	Long: `Run the local JSON proxy in front of the backend.

Requests to /api/... are forwarded upstream with the caller's Authorization
header. ClickUp token exchange and batch pushes run in the proxy itself.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

var serveAddr string

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Address to listen on (default from config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	logger := log.New(os.Stderr, "proxy: ", log.LstdFlags)

	// The proxy forwards each caller's own token, so its client has none.
	client := backend.NewClient(backend.Options{
		BaseURL: a.cfg.Backend.BaseURL,
		Timeout: a.cfg.Backend.Timeout.Duration,
	})
	authorizer := clickup.NewAuthorizer(clickup.AuthorizerOptions{
		TokenURL:     a.cfg.ClickUp.TokenURL,
		ClientID:     a.cfg.ClickUp.ClientID,
		ClientSecret: a.cfg.ClickUp.ClientSecret,
		Backend:      client,
	})

	l, err := a.openLedger(cmd.Context())
	if err != nil {
		return err
	}
	defer l.Close()
	pusher := clickup.NewPusher(clickup.PusherOptions{Creator: client, Recorder: l, Logger: logger})

	server, err := proxy.NewServer(proxy.Options{
		Backend:    client,
		Authorizer: authorizer,
		Pusher:     pusher,
		Logger:     logger,
	})
	if err != nil {
		return err
	}
	return server.Serve(internalstrings.FirstNonBlank(serveAddr, a.cfg.Proxy.Addr))
}
