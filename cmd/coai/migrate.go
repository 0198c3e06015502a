package main

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"coai-backend/storage/auth"
	storage "coai-backend/storage/marketplace"
)

func migrateCmd() *cobra.Command {
	var seed bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create the postgres schema and optionally load fixtures",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.Store.Driver != "postgres" {
				return fmt.Errorf("migrate needs store.driver=postgres, got %q", cfg.Store.Driver)
			}
			ctx := cmd.Context()
			store, err := storage.NewPGStore(ctx, cfg.Store.PGDSN, seed)
			if err != nil {
				return err
			}
			defer store.Close()
			if _, err := auth.NewPGSessionStore(ctx, store.Pool(), cfg.Auth.SessionTTL); err != nil {
				return err
			}
			log.Printf("schema ready (fixtures loaded: %v)", seed)
			return nil
		},
	}
	cmd.Flags().BoolVar(&seed, "seed", false, "load demo fixtures")
	return cmd
}
