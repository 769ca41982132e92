package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"datavault/db"
	"datavault/logging"
	"datavault/secrets"
)

func newExportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export [file]",
		Short: "Write all notes, decrypted, as CSV (stdout when no file is given)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			var out io.Writer = cmd.OutOrStdout()
			if len(args) == 1 {
				f, err := os.OpenFile(args[0], os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
				if err != nil {
					return err
				}
				defer f.Close()
				out = f
			}
			return a.notes.Export(cmd.Context(), out)
		},
	}
}

func newImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Create one note per CSV row",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			n, err := a.notes.Import(cmd.Context(), f)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d notes\n", n)
			return nil
		},
	}
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Encrypt any fields still stored as legacy plain text",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			n, err := a.notes.UpgradeLegacy(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Upgraded %d notes\n", n)
			return nil
		},
	}
}

func presence(ok bool) string {
	if ok {
		return "present"
	}
	return "missing (created on first use)"
}

func newDoctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check the secure store and the database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			out := cmd.OutOrStdout()
			st, err := secrets.NewProvisioner(a.store, logging.ForModule("secrets")).Status()
			if err != nil {
				return fmt.Errorf("secure store: %w", err)
			}
			fmt.Fprintf(out, "passphrase: %s\n", presence(st.PassphrasePresent))
			fmt.Fprintf(out, "salt:       %s\n", presence(st.SaltPresent))

			count, err := db.CheckSchema(cmd.Context(), a.conn)
			if err != nil {
				return fmt.Errorf("database: %w", err)
			}
			fmt.Fprintf(out, "notes:      %d\n", count)
			return nil
		},
	}
}
