package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"nova-workspace/backend/internal/config"
	"nova-workspace/backend/internal/security"
)

func newTokenCommand(g *globalFlags) *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "token <user-id> <email>",
		Short: "Issue a development bearer token signed with JWT_PRIVATE_KEY",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.IsProduction() {
				return fmt.Errorf("token: refusing to issue tokens with APP_ENV=production")
			}
			if cfg.JWTPrivateKey == "" {
				return fmt.Errorf("token: JWT_PRIVATE_KEY is not set")
			}
			key, err := security.ParsePrivateKey(cfg.JWTPrivateKey)
			if err != nil {
				return fmt.Errorf("token: %w", err)
			}
			tokens := security.NewTokenProvider(key, nil, cfg.JWTIssuer, cfg.JWTAudience, cfg.AccessTTL())
			token, exp, err := tokens.Issue(args[0], args[1], name)
			if err != nil {
				return err
			}
			if g.json {
				fmt.Fprintf(cmd.OutOrStdout(), "{\"token\":%q,\"expires_at\":%q}\n", token, exp.Format(time.RFC3339))
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "full name claim")
	return cmd
}

func newResolveCommand(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve",
		Short: "Sign in, provision on first use, and resolve the active workspace",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := g.open()
			if err != nil {
				return err
			}
			defer s.close()
			snap, err := s.signIn(cmd.Context())
			if err != nil {
				return err
			}
			if err := printSnapshot(cmd.OutOrStdout(), g.json, snap); err != nil {
				return err
			}
			return settledError(snap)
		},
	}
}

func newUseCommand(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "use <tenant-id>",
		Short: "Switch the active workspace to one you are a member of",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := g.open()
			if err != nil {
				return err
			}
			defer s.close()
			snap, err := s.signIn(cmd.Context())
			if err != nil {
				return err
			}
			if err := settledError(snap); err != nil {
				return err
			}
			if err := s.machine.SwitchWorkspace(cmd.Context(), args[0]); err != nil {
				return fmt.Errorf("use %s: %w", args[0], err)
			}
			snap, err = s.machine.WaitSettled(cmd.Context())
			if err != nil {
				return err
			}
			if err := printSnapshot(cmd.OutOrStdout(), g.json, snap); err != nil {
				return err
			}
			return settledError(snap)
		},
	}
}

func newStatusCommand(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the configured session and the persisted selection without calling the API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.loadConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "api: %s\n", cfg.APIURL)
			fmt.Fprintf(out, "profile: %s\n", cfg.Profile)
			if cfg.Token == "" {
				fmt.Fprintln(out, "session: signed out")
			} else if id, err := security.ParseUnverified(cfg.Token); err != nil {
				fmt.Fprintf(out, "session: unreadable token (%v)\n", err)
			} else {
				fmt.Fprintf(out, "session: %s <%s>", id.UserID, id.Email)
				if !id.ExpiresAt.IsZero() {
					fmt.Fprintf(out, " expires %s", id.ExpiresAt.Format(time.RFC3339))
				}
				fmt.Fprintln(out)
			}

			s, err := g.open()
			if err != nil {
				return err
			}
			defer s.close()
			selected, err := s.store.Get(cmd.Context())
			if err != nil {
				return err
			}
			if selected == "" {
				selected = "(none)"
			}
			fmt.Fprintf(out, "selected workspace: %s\n", selected)
			return nil
		},
	}
}

func newSignOutCommand(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "signout",
		Short: "Forget the persisted workspace selection for this profile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := g.open()
			if err != nil {
				return err
			}
			defer s.close()
			if err := s.store.Clear(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "signed out")
			return nil
		},
	}
}
