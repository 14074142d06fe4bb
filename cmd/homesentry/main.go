// homesentry es el CLI operativo: provisioning de devices, generación de
// claves y migraciones. Habla directo con la base (no con el API).
package main

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/dropDatabas3/homesentry/internal/store/core"
	"github.com/dropDatabas3/homesentry/internal/store/pg"
)

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func randB64(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

func openStore(ctx context.Context, dsn string) (*pg.Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("falta DSN (flag --dsn o env STORAGE_DSN)")
	}
	return pg.Open(ctx, dsn, 2, 1)
}

func main() {
	_ = godotenv.Load()

	var dsn string

	root := &cobra.Command{
		Use:          "homesentry",
		Short:        "CLI operativo de HomeSentry (provisioning, claves, migraciones)",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&dsn, "dsn", envOr("STORAGE_DSN", ""), "DSN de postgres (env STORAGE_DSN)")

	// ── device ──
	deviceCmd := &cobra.Command{Use: "device", Short: "Provisioning de device credentials"}

	var createID string
	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Crea una credential sin reclamar (imprime id + api key)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()
			st, err := openStore(ctx, dsn)
			if err != nil {
				return err
			}
			defer st.Close()

			id := createID
			if id == "" {
				id = uuid.NewString()
			}
			key, err := randB64(32)
			if err != nil {
				return err
			}
			cred := &core.DeviceCredential{ID: id, APIKey: key, CreatedAt: time.Now().UTC()}
			if err := st.CreateDeviceCredential(ctx, cred); err != nil {
				return fmt.Errorf("create credential: %w", err)
			}
			// La key se imprime una sola vez: grabarla en el device ahora.
			fmt.Printf("device_id: %s\napi_key:   %s\n", id, key)
			return nil
		},
	}
	createCmd.Flags().StringVar(&createID, "id", "", "UUID del device (default: generado)")

	var showID string
	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Muestra el estado de una credential (sin la key)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if showID == "" {
				return fmt.Errorf("--id es requerido")
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()
			st, err := openStore(ctx, dsn)
			if err != nil {
				return err
			}
			defer st.Close()

			cred, err := st.GetDeviceCredential(ctx, showID)
			if err != nil {
				return err
			}
			owner := "-"
			if cred.UserID != nil {
				owner = *cred.UserID
			}
			fmt.Printf("device_id: %s\nclaimed:   %v\nowner:     %s\ncreated:   %s\n",
				cred.ID, cred.Claimed, owner, cred.CreatedAt.Format(time.RFC3339))
			return nil
		},
	}
	showCmd.Flags().StringVar(&showID, "id", "", "UUID del device")

	deviceCmd.AddCommand(createCmd, showCmd)

	// ── keys ──
	keysCmd := &cobra.Command{Use: "keys", Short: "Generación de secretos"}
	genCmd := &cobra.Command{
		Use:   "gen",
		Short: "Genera MASTER_KEY y JWT_SECRET nuevos (base64, 32 bytes)",
		RunE: func(cmd *cobra.Command, args []string) error {
			mk, err := randB64(32)
			if err != nil {
				return err
			}
			js, err := randB64(32)
			if err != nil {
				return err
			}
			fmt.Printf("MASTER_KEY=%s\nJWT_SECRET=%s\n", mk, js)
			return nil
		},
	}
	keysCmd.AddCommand(genCmd)

	// ── migrate ──
	var migrateDown bool
	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Aplica las migraciones embebidas (up, o down con --down)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
			defer cancel()
			st, err := openStore(ctx, dsn)
			if err != nil {
				return err
			}
			defer st.Close()
			if migrateDown {
				return st.MigrateDown(ctx)
			}
			return st.Migrate(ctx)
		},
	}
	migrateCmd.Flags().BoolVar(&migrateDown, "down", false, "revierte las migraciones (solo dev)")

	root.AddCommand(deviceCmd, keysCmd, migrateCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}
