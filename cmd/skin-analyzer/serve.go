package main

import (
	"github.com/spf13/cobra"

	"github.com/menta2k/skin-analyzer/internal/server"
)

var servePort string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the analyze, quality and history endpoints over HTTP",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVarP(&servePort, "port", "p", "", "listen port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg := loader.Config()

	sa, err := newPipeline()
	if err != nil {
		return err
	}
	store, err := openHistory(ctx)
	if err != nil {
		return err
	}
	defer store.Close()
	pub := openPublisher(ctx)
	defer pub.Close()

	port := cfg.Server.Port
	if servePort != "" {
		port = servePort
	}

	srv, err := server.New(server.Options{
		Port:           port,
		RateLimit:      cfg.Server.RateLimit,
		IsDevelopment:  cfg.Server.IsDevelopment,
		MaxUploadBytes: int64(cfg.Analysis.MaxBytes),
		ClientID:       cfg.Backend.ClientID,
		ClientSecret:   cfg.Backend.ClientSecret,
	}, server.Deps{
		Analysis:  sa.Client(),
		Inspector: sa.Inspector(),
		Presenter: sa.Presenter(),
		History:   store,
		Publisher: pub,
	}, logger)
	if err != nil {
		return err
	}
	return srv.Run(ctx)
}
