package main

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	clientgw "github.com/Lumos-Programming/profile-api/internal/adapters/httpclient/profilegateway"
	"github.com/Lumos-Programming/profile-api/internal/app/editing"
	"github.com/Lumos-Programming/profile-api/internal/domain"
	"github.com/Lumos-Programming/profile-api/internal/platform/config"
	"github.com/Lumos-Programming/profile-api/internal/platform/markdown"
)

type globalOptions struct {
	endpoint   string
	token      string
	subject    string
	configPath string
	timeout    time.Duration
	verbose    bool
}

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	g := &globalOptions{}
	root := &cobra.Command{
		Use:          "profilectl",
		Short:        "Edit your member profile",
		SilenceUsage: true,
	}
	root.SetOut(out)
	root.SetErr(errOut)

	pf := root.PersistentFlags()
	pf.StringVar(&g.endpoint, "endpoint", envOr("PROFILE_ENDPOINT", "http://localhost:8080/api/profile/basic-info"), "basic-info endpoint URL")
	pf.StringVar(&g.token, "token", os.Getenv("PROFILE_TOKEN"), "bearer token")
	pf.StringVar(&g.subject, "subject", os.Getenv("PROFILE_SUBJECT"), "X-Debug-Subject for AUTH_MODE=dev servers")
	pf.StringVar(&g.configPath, "config", "", "profile config YAML (default $PROFILE_CONFIG_PATH)")
	pf.DurationVar(&g.timeout, "timeout", 10*time.Second, "request timeout")
	pf.BoolVarP(&g.verbose, "verbose", "v", false, "log session events")

	root.AddCommand(newShowCmd(g), newEditCmd(g), newBioCmd(g), newStatusCmd(g))
	return root
}

// open builds a session over the configured endpoint and loads the remote record.
func (g *globalOptions) open(cmd *cobra.Command) (*editing.Session, config.ProfileConfig, error) {
	var (
		cfg config.ProfileConfig
		err error
	)
	if g.configPath != "" {
		cfg, err = config.LoadProfileConfigFile(g.configPath)
	} else {
		cfg, err = config.LoadProfileConfig()
	}
	if err != nil {
		return nil, cfg, err
	}
	reg, err := cfg.Registry()
	if err != nil {
		return nil, cfg, err
	}

	level := slog.LevelWarn
	if g.verbose {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

	gw := clientgw.New(g.endpoint, reg, clientgw.Options{
		HTTPClient:   &http.Client{Timeout: g.timeout},
		BearerToken:  g.token,
		DebugSubject: g.subject,
	})
	s := editing.NewSession(gw, reg, log)
	if _, err := s.Load(cmd.Context()); err != nil {
		s.Close()
		return nil, cfg, fmt.Errorf("load profile: %w", err)
	}
	return s, cfg, nil
}

func newShowCmd(g *globalOptions) *cobra.Command {
	var as string
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the profile as the given viewer sees it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, _, err := g.open(cmd)
			if err != nil {
				return err
			}
			defer s.Close()
			printView(cmd.OutOrStdout(), s.Preview(domain.ParseViewerRole(as)))
			return nil
		},
	}
	cmd.Flags().StringVar(&as, "as", string(domain.RoleOwner), "viewer role: owner or other")
	return cmd
}

func printView(w io.Writer, v domain.RedactedView) {
	fmt.Fprintf(w, "viewer: %s\n", v.Role())
	fmt.Fprintf(w, "%-12s %s\n", "name", v.FullName())
	for _, f := range v.Fields() {
		if f.Field == domain.FieldBio {
			continue
		}
		fmt.Fprintf(w, "%-12s %s\n", f.Field, f.Disclosed)
	}
	for _, a := range v.Accounts() {
		state := domain.HiddenMarker
		switch {
		case a.Hidden:
		case a.Connected:
			state = "connected (" + a.ExternalID + ")"
		default:
			state = "not connected"
		}
		req := ""
		if a.Required {
			req = " *"
		}
		fmt.Fprintf(w, "%-12s %s%s\n", a.Service, state, req)
	}
}

type editOptions struct {
	set        []string
	show       []string
	hide       []string
	connect    []string
	disconnect []string
	dryRun     bool
}

func newEditCmd(g *globalOptions) *cobra.Command {
	o := &editOptions{}
	cmd := &cobra.Command{
		Use:   "edit",
		Short: "Apply edits and save them; nothing is saved if any edit is invalid",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, _, err := g.open(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.Edit(o.apply); err != nil {
				return err
			}
			if !s.Dirty() {
				fmt.Fprintln(cmd.OutOrStdout(), "no changes")
				return nil
			}
			if o.dryRun {
				printView(cmd.OutOrStdout(), s.Preview(domain.RoleOwner))
				return nil
			}
			ack, err := s.Save(cmd.Context())
			if err != nil {
				return fmt.Errorf("save profile: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "saved (status %d, key %s)\n", ack.StatusCode, ack.IdempotencyKey)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringArrayVar(&o.set, "set", nil, "field=value; field is a field id or wire key (repeatable)")
	f.StringArrayVar(&o.show, "show", nil, "visibility group to disclose (repeatable)")
	f.StringArrayVar(&o.hide, "hide", nil, "visibility group to hide (repeatable)")
	f.StringArrayVar(&o.connect, "connect", nil, "service=externalID (repeatable)")
	f.StringArrayVar(&o.disconnect, "disconnect", nil, "service to disconnect (repeatable)")
	f.BoolVar(&o.dryRun, "dry-run", false, "print the edited record instead of saving")
	return cmd
}

func (o *editOptions) apply(p *domain.Profile) error {
	reg := p.Registry()
	for _, kv := range o.set {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			return fmt.Errorf("--set %q: want field=value", kv)
		}
		id, ok := lookupField(reg, k)
		if !ok {
			return fmt.Errorf("--set: %w: %s", domain.ErrUnknownField, k)
		}
		if err := p.Set(id, v); err != nil {
			return fmt.Errorf("--set %s: %w", k, err)
		}
	}
	for _, g := range o.show {
		if err := p.SetVisibility(domain.GroupID(g), true); err != nil {
			return err
		}
	}
	for _, g := range o.hide {
		if err := p.SetVisibility(domain.GroupID(g), false); err != nil {
			return err
		}
	}
	for _, kv := range o.connect {
		svc, ext, ok := strings.Cut(kv, "=")
		if !ok {
			return fmt.Errorf("--connect %q: want service=externalID", kv)
		}
		if err := p.Connect(domain.ServiceID(svc), ext); err != nil {
			return err
		}
	}
	for _, svc := range o.disconnect {
		if err := p.Disconnect(domain.ServiceID(svc)); err != nil {
			return err
		}
	}
	return nil
}

func lookupField(reg *domain.Registry, key string) (domain.FieldID, bool) {
	for _, f := range reg.Fields() {
		if string(f.ID) == key || f.WireKey == key {
			return f.ID, true
		}
	}
	return "", false
}

func newBioCmd(g *globalOptions) *cobra.Command {
	var (
		caps string
		tree bool
	)
	cmd := &cobra.Command{
		Use:   "bio",
		Short: "Render the biography with the given markup capabilities",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, cfg, err := g.open(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			c, err := cfg.Capabilities()
			if err != nil {
				return err
			}
			if caps != "" {
				if c, err = markdown.ParseCapabilities(caps); err != nil {
					return err
				}
			}
			n := s.RenderBio(c)
			if tree {
				printTree(cmd.OutOrStdout(), n, 0)
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), markdown.Text(n))
			return nil
		},
	}
	cmd.Flags().StringVar(&caps, "caps", "", "capabilities: minimal, extended or a comma list (default from config)")
	cmd.Flags().BoolVar(&tree, "tree", false, "print the render tree instead of normalized markup")
	return cmd
}

func printTree(w io.Writer, n *markdown.Node, depth int) {
	fmt.Fprintf(w, "%s%s", strings.Repeat("  ", depth), n.Kind)
	if n.Literal != "" {
		fmt.Fprintf(w, " %q", n.Literal)
	}
	if n.Dest != "" {
		fmt.Fprintf(w, " -> %s", n.Dest)
	}
	fmt.Fprintln(w)
	for _, c := range n.Children {
		printTree(w, c, depth+1)
	}
}

func newStatusCmd(g *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Report required services that are not connected",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, _, err := g.open(cmd)
			if err != nil {
				return err
			}
			defer s.Close()
			missing := s.Record().MissingRequiredServices()
			if len(missing) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "complete")
				return nil
			}
			names := make([]string, len(missing))
			for i, m := range missing {
				names[i] = string(m)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "incomplete: connect %s\n", strings.Join(names, ", "))
			return nil
		},
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
