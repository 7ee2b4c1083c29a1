package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jsdzhang/moltis/internal/config"
	"github.com/jsdzhang/moltis/internal/store"
)

// pairingCmd manages device/channel pairing approvals against the same
// pairing.json the gateway consults when an unrecognized sender shows up.
func pairingCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pairing",
		Short: "List and approve channel pairing requests",
	}
	cmd.AddCommand(pairingListCmd())
	cmd.AddCommand(pairingApproveCmd())
	cmd.AddCommand(pairingRevokeCmd())
	return cmd
}

func openPairingStore() (*store.FilePairingStore, error) {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	path := filepath.Join(resolveDataDir(cfg), "pairing.json")
	return store.NewFilePairingStore(path), nil
}

func pairingListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List known pairing requests",
		Run: func(cmd *cobra.Command, args []string) {
			s, err := openPairingStore()
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(1)
			}
			records, err := s.List()
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(1)
			}
			if len(records) == 0 {
				fmt.Println("No pairing requests on file.")
				return
			}
			for _, r := range records {
				status := "pending"
				if r.Approved {
					status = "approved"
				}
				fmt.Printf("%-10s %-10s user=%-20s chat=%-16s code=%s\n", status, r.Channel, r.UserID, r.ChatID, r.Code)
			}
		},
	}
}

func pairingApproveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "approve <code>",
		Short: "Approve a pending pairing code",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			s, err := openPairingStore()
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(1)
			}
			rec, err := s.Approve(args[0])
			if err != nil {
				fmt.Fprintln(os.Stderr, "approve:", err)
				os.Exit(1)
			}
			fmt.Printf("Approved %s on %s (chat %s)\n", rec.UserID, rec.Channel, rec.ChatID)
		},
	}
}

func pairingRevokeCmd() *cobra.Command {
	var channel string
	cmd := &cobra.Command{
		Use:   "revoke <userID>",
		Short: "Revoke a pairing so the sender must re-request access",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			s, err := openPairingStore()
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(1)
			}
			if err := s.Revoke(args[0], channel); err != nil {
				fmt.Fprintln(os.Stderr, "revoke:", err)
				os.Exit(1)
			}
			fmt.Printf("Revoked pairing for %s on %s\n", args[0], channel)
		},
	}
	cmd.Flags().StringVar(&channel, "channel", "", "channel the userID belongs to (required)")
	cmd.MarkFlagRequired("channel")
	return cmd
}
