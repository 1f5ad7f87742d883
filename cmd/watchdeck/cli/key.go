package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/watchdeck/watchdeck/internal/auth"
	"github.com/watchdeck/watchdeck/internal/model"
	"github.com/watchdeck/watchdeck/internal/store"
)

func newKeyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "key",
		Aliases: []string{"apikey"},
		Short:   "Manage API keys",
		Long:    "Create, list, revoke, and freeze API keys used to authenticate against the Watchdeck REST API.",
	}

	cmd.AddCommand(newKeyCreateCmd())
	cmd.AddCommand(newKeyListCmd())
	cmd.AddCommand(newKeyRevokeCmd())
	cmd.AddCommand(newKeyFreezeCmd(true))
	cmd.AddCommand(newKeyFreezeCmd(false))

	return cmd
}

// ---------- key create ----------

func newKeyCreateCmd() *cobra.Command {
	var (
		name        string
		permissions []string
		userID      string
		expiresIn   string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new API key",
		Long:  "Generate a new API key with a set of permission scopes. The raw key is shown once and cannot be retrieved again.",
		Example: `  watchdeck key create --name "discord bot" --permission public.watch.read --permission public.comments.write
  watchdeck key create --name ci --permission "admin.*" --expires-in 720h`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeyCreate(name, permissions, userID, expiresIn)
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Human-readable name for the key (required)")
	cmd.Flags().StringArrayVar(&permissions, "permission", nil, "Permission scope, repeatable (required)")
	cmd.Flags().StringVar(&userID, "user", "", "Bind the key to a user account id")
	cmd.Flags().StringVar(&expiresIn, "expires-in", "", "Expiry as a duration, e.g. 720h")
	cmd.MarkFlagRequired("name")
	cmd.MarkFlagRequired("permission")

	return cmd
}

func runKeyCreate(name string, permissions []string, userID, expiresIn string) error {
	st, err := openStore()
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer st.Close()

	ctx := context.Background()

	var expiresAt *time.Time
	if expiresIn != "" {
		d, err := time.ParseDuration(expiresIn)
		if err != nil || d <= 0 {
			return fmt.Errorf("invalid --expires-in %q", expiresIn)
		}
		t := time.Now().Add(d)
		expiresAt = &t
	}

	raw, hash, prefix, err := auth.GenerateKey()
	if err != nil {
		return fmt.Errorf("generate key: %w", err)
	}

	key := &model.APIKey{
		KeyHash:     hash,
		KeyPrefix:   prefix,
		Name:        name,
		Permissions: permissions,
		ExpiresAt:   expiresAt,
	}
	if userID != "" {
		if _, err := st.GetUserByID(ctx, userID); err != nil {
			return fmt.Errorf("user %q not found", userID)
		}
		key.UserID = &userID
	}

	if err := st.CreateAPIKey(ctx, key); err != nil {
		return fmt.Errorf("create api key: %w", err)
	}

	fmt.Println("API Key created:")
	fmt.Println()
	fmt.Printf("  Key:         %s\n", raw)
	fmt.Printf("  Name:        %s\n", name)
	fmt.Printf("  Permissions: %s\n", strings.Join(permissions, ", "))
	if expiresAt != nil {
		fmt.Printf("  Expires:     %s\n", expiresAt.Format(time.RFC3339))
	}
	fmt.Println()
	fmt.Println("  Save this key now - it cannot be retrieved again.")
	return nil
}

// ---------- key list ----------

func newKeyListCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List all API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeyList(jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runKeyList(jsonOutput bool) error {
	st, err := openStore()
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer st.Close()

	keys, err := st.ListAPIKeys(context.Background())
	if err != nil {
		return fmt.Errorf("list api keys: %w", err)
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(keys)
	}

	if len(keys) == 0 {
		fmt.Println("No API keys configured. Use 'watchdeck key create' to create one.")
		return nil
	}

	fmt.Printf("%-16s %-24s %-32s %-8s\n", "PREFIX", "NAME", "PERMISSIONS", "STATE")
	fmt.Printf("%-16s %-24s %-32s %-8s\n", "------", "----", "-----------", "-----")
	now := time.Now()
	for _, k := range keys {
		state := "active"
		switch {
		case k.Revoked:
			state = "revoked"
		case k.Frozen:
			state = "frozen"
		case k.IsExpired(now):
			state = "expired"
		}
		fmt.Printf("%-16s %-24s %-32s %-8s\n", k.KeyPrefix, k.Name, strings.Join(k.Permissions, ","), state)
	}

	return nil
}

// ---------- key revoke / freeze ----------

func newKeyRevokeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "revoke <prefix>",
		Short: "Revoke an API key by its prefix",
		Long:  "Permanently revoke an API key, preventing any further authenticated requests using that key.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withKeyByPrefix(args[0], func(ctx context.Context, st *store.Store, key *model.APIKey) error {
				if err := st.RevokeAPIKey(ctx, key.ID); err != nil {
					return fmt.Errorf("revoke api key: %w", err)
				}
				fmt.Printf("Revoked API key %q\n", key.KeyPrefix)
				return nil
			})
		},
	}

	return cmd
}

func newKeyFreezeCmd(freeze bool) *cobra.Command {
	use, short := "freeze <prefix>", "Freeze an API key, suspending it without revoking"
	if !freeze {
		use, short = "unfreeze <prefix>", "Unfreeze a previously frozen API key"
	}

	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withKeyByPrefix(args[0], func(ctx context.Context, st *store.Store, key *model.APIKey) error {
				if err := st.SetAPIKeyFrozen(ctx, key.ID, freeze); err != nil {
					return fmt.Errorf("update api key: %w", err)
				}
				if freeze {
					fmt.Printf("Froze API key %q\n", key.KeyPrefix)
				} else {
					fmt.Printf("Unfroze API key %q\n", key.KeyPrefix)
				}
				return nil
			})
		},
	}

	return cmd
}

// withKeyByPrefix resolves a key by prefix match and hands it to fn along
// with the open store.
func withKeyByPrefix(prefix string, fn func(ctx context.Context, st *store.Store, key *model.APIKey) error) error {
	st, err := openStore()
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer st.Close()

	ctx := context.Background()
	keys, err := st.ListAPIKeys(ctx)
	if err != nil {
		return fmt.Errorf("list api keys: %w", err)
	}

	var matched *model.APIKey
	for i := range keys {
		if strings.HasPrefix(keys[i].KeyPrefix, prefix) || keys[i].ID == prefix {
			if matched != nil {
				return fmt.Errorf("prefix %q matches more than one key", prefix)
			}
			matched = &keys[i]
		}
	}
	if matched == nil {
		return fmt.Errorf("no API key found with prefix %q", prefix)
	}

	return fn(ctx, st, matched)
}
