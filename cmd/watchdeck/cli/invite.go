package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/watchdeck/watchdeck/internal/model"
)

func newInviteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "invite",
		Short: "Manage registration invites",
		Long:  "Mint and list the single-use invite codes required to register an account.",
	}

	cmd.AddCommand(newInviteCreateCmd())
	cmd.AddCommand(newInviteListCmd())

	return cmd
}

// ---------- invite create ----------

func newInviteCreateCmd() *cobra.Command {
	var expiresIn string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new invite code",
		Example: `  watchdeck invite create
  watchdeck invite create --expires-in 168h`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInviteCreate(expiresIn)
		},
	}

	cmd.Flags().StringVar(&expiresIn, "expires-in", "", "Expiry as a duration, e.g. 168h")

	return cmd
}

func runInviteCreate(expiresIn string) error {
	var expiresAt *time.Time
	if expiresIn != "" {
		d, err := time.ParseDuration(expiresIn)
		if err != nil || d <= 0 {
			return fmt.Errorf("invalid --expires-in %q", expiresIn)
		}
		t := time.Now().Add(d)
		expiresAt = &t
	}

	st, err := openStore()
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer st.Close()

	inv := &model.Invite{
		Code:      uuid.NewString(),
		ExpiresAt: expiresAt,
	}
	if err := st.CreateInvite(context.Background(), inv); err != nil {
		return fmt.Errorf("create invite: %w", err)
	}

	fmt.Println("Invite created:")
	fmt.Println()
	fmt.Printf("  Code: %s\n", inv.Code)
	if expiresAt != nil {
		fmt.Printf("  Expires: %s\n", expiresAt.Format(time.RFC3339))
	}
	return nil
}

// ---------- invite list ----------

func newInviteListCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List all invites",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInviteList(jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runInviteList(jsonOutput bool) error {
	st, err := openStore()
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer st.Close()

	invites, err := st.ListInvites(context.Background())
	if err != nil {
		return fmt.Errorf("list invites: %w", err)
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(invites)
	}

	if len(invites) == 0 {
		fmt.Println("No invites. Use 'watchdeck invite create' to mint one.")
		return nil
	}

	now := time.Now()
	fmt.Printf("%-38s %-10s %-24s\n", "CODE", "STATE", "EXPIRES")
	fmt.Printf("%-38s %-10s %-24s\n", "----", "-----", "-------")
	for _, inv := range invites {
		state := "open"
		switch {
		case inv.UsedBy != nil:
			state = "used"
		case inv.ExpiresAt != nil && !inv.ExpiresAt.After(now):
			state = "expired"
		}
		expires := "-"
		if inv.ExpiresAt != nil {
			expires = inv.ExpiresAt.Format(time.RFC3339)
		}
		fmt.Printf("%-38s %-10s %-24s\n", inv.Code, state, expires)
	}

	return nil
}
