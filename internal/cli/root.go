// Package cli implements novactl, the command-line client for workspace resolution.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"nova-workspace/backend/internal/client/api"
	"nova-workspace/backend/internal/client/identity"
	"nova-workspace/backend/internal/client/resolver"
	"nova-workspace/backend/internal/client/selection"
	"nova-workspace/backend/internal/client/signin"
	"nova-workspace/backend/internal/client/state"
	"nova-workspace/backend/internal/config"
	"nova-workspace/backend/internal/logging"
)

// ErrNoToken is returned by commands that need a session when no token is configured.
var ErrNoToken = errors.New("no token: set NOVA_TOKEN or pass --token")

type globalFlags struct {
	apiURL   string
	token    string
	stateDir string
	profile  string
	json     bool
}

// NewRootCommand returns the novactl command tree.
func NewRootCommand() *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:   "novactl",
		Short: "Resolve and switch nova workspaces",
		Long: `novactl signs in with a bearer token, provisions the caller's workspace on first use,
and resolves which workspace is active. The selected workspace is remembered per profile.

Examples:
  # Issue a development token (needs JWT_PRIVATE_KEY)
  novactl token dev-user-001 dev@example.com

  # Resolve the active workspace
  NOVA_TOKEN=... novactl resolve

  # Switch to another workspace you belong to
  novactl use <tenant-id>
`,
		SilenceUsage: true,
	}
	pf := root.PersistentFlags()
	pf.StringVar(&g.apiURL, "api-url", "", "API base URL (default $NOVA_API_URL)")
	pf.StringVar(&g.token, "token", "", "bearer token (default $NOVA_TOKEN)")
	pf.StringVar(&g.stateDir, "state-dir", "", "directory of the selection database (default $NOVA_STATE_DIR)")
	pf.StringVar(&g.profile, "profile", "", "selection profile (default $NOVA_PROFILE)")
	pf.BoolVar(&g.json, "json", false, "print JSON")

	root.AddCommand(
		newTokenCommand(g),
		newResolveCommand(g),
		newUseCommand(g),
		newStatusCommand(g),
		newSignOutCommand(g),
	)
	return root
}

// session is one novactl invocation's client stack.
type session struct {
	cfg     *config.ClientConfig
	logger  *zap.Logger
	store   *selection.SQLite
	hub     *identity.Hub
	machine *state.Machine
	stop    func()
}

func (g *globalFlags) loadConfig() (*config.ClientConfig, error) {
	cfg, err := config.LoadClient()
	if err != nil {
		return nil, err
	}
	if g.apiURL != "" {
		cfg.APIURL = g.apiURL
	}
	if g.token != "" {
		cfg.Token = g.token
	}
	if g.stateDir != "" {
		cfg.StateDir = g.stateDir
	}
	if g.profile != "" {
		cfg.Profile = g.profile
	}
	return cfg, nil
}

// open builds the client stack. The machine is started but not signed in.
func (g *globalFlags) open() (*session, error) {
	cfg, err := g.loadConfig()
	if err != nil {
		return nil, err
	}
	logger, err := logging.New("development", cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	store, err := selection.OpenSQLite(cfg.SelectionPath(), cfg.Profile)
	if err != nil {
		return nil, err
	}
	client := api.NewClient(cfg.APIURL, nil)
	hub := identity.NewHub()
	res := resolver.New(hub, client, store, resolver.WithFetchTimeout(cfg.FetchTimeoutDuration()), resolver.WithLogger(logger))
	orch := signin.New(client, signin.WithTimeout(cfg.BootstrapTimeoutDuration()), signin.WithLogger(logger))
	m := state.New(hub, orch, res, store, logger)
	return &session{cfg: cfg, logger: logger, store: store, hub: hub, machine: m, stop: m.Start()}, nil
}

func (s *session) close() {
	s.stop()
	_ = s.store.Close()
	_ = s.logger.Sync()
}

// signIn installs the configured token and waits for resolution to settle.
func (s *session) signIn(ctx context.Context) (state.Snapshot, error) {
	if s.cfg.Token == "" {
		return state.Snapshot{}, ErrNoToken
	}
	if _, err := s.hub.SignIn(s.cfg.Token); err != nil {
		return state.Snapshot{}, fmt.Errorf("sign in: %w", err)
	}
	return s.machine.WaitSettled(ctx)
}

// snapshotView is the printable form of a resolution.
type snapshotView struct {
	State          string           `json:"state"`
	UserID         string           `json:"user_id,omitempty"`
	ActiveTenantID string           `json:"active_tenant_id,omitempty"`
	Workspace      *api.Workspace   `json:"workspace,omitempty"`
	Memberships    []api.Membership `json:"memberships,omitempty"`
	Error          string           `json:"error,omitempty"`
	BootstrapError string           `json:"bootstrap_error,omitempty"`
}

func viewOf(s state.Snapshot) snapshotView {
	v := snapshotView{
		State:          string(s.State),
		UserID:         s.UserID,
		ActiveTenantID: s.ActiveTenantID,
		Workspace:      s.Workspace,
		Memberships:    s.Memberships,
	}
	if s.Err != nil {
		v.Error = s.Err.Error()
	}
	if s.Bootstrap != nil && s.Bootstrap.Err != nil {
		v.BootstrapError = s.Bootstrap.Err.Error()
	}
	return v
}

func printSnapshot(w io.Writer, asJSON bool, s state.Snapshot) error {
	v := viewOf(s)
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	fmt.Fprintf(w, "state: %s\n", v.State)
	if v.UserID != "" {
		fmt.Fprintf(w, "user: %s\n", v.UserID)
	}
	if v.Workspace != nil {
		fmt.Fprintf(w, "workspace: %s (%s) slug=%s role=%s\n", v.Workspace.Name, v.Workspace.ID, v.Workspace.Slug, v.Workspace.Role)
	}
	for _, m := range v.Memberships {
		marker := " "
		if m.TenantID == v.ActiveTenantID {
			marker = "*"
		}
		fmt.Fprintf(w, "  %s %s %s joined %s\n", marker, m.TenantID, m.Role, m.CreatedAt.Format("2006-01-02 15:04"))
	}
	if v.BootstrapError != "" {
		fmt.Fprintf(w, "bootstrap: %s\n", v.BootstrapError)
	}
	if v.Error != "" {
		fmt.Fprintf(w, "error: %s\n", v.Error)
	}
	return nil
}

// settledError turns a non-ready resolution into a command error so the exit status reflects it.
func settledError(s state.Snapshot) error {
	switch s.State {
	case state.Ready:
		return nil
	case state.NoWorkspace:
		return errors.New("no workspace: provisioning has not become visible yet; try again")
	case state.NoSession:
		return ErrNoToken
	default:
		if s.Err != nil {
			return s.Err
		}
		return fmt.Errorf("resolution ended in %s", s.State)
	}
}
