package main

import (
	"github.com/spf13/cobra"

	"github.com/tonimelisma/workitems-go/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
	}

	cmd.AddCommand(newConfigShowCmd())

	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Display effective configuration after all overrides",
		Args:  cobra.NoArgs,
		RunE:  runConfigShow,
	}
}

// configShowOutput is the structured form of `config show`. Secrets are
// reduced to whether they are set.
type configShowOutput struct {
	Profile     string               `json:"profile" yaml:"profile"`
	ConfigPath  string               `json:"configPath" yaml:"config_path"`
	URL         string               `json:"url" yaml:"url"`
	Auth        string               `json:"auth" yaml:"auth"`
	Tenant      string               `json:"tenant,omitempty" yaml:"tenant,omitempty"`
	ClientID    string               `json:"clientId,omitempty" yaml:"client_id,omitempty"`
	Project     string               `json:"project,omitempty" yaml:"project,omitempty"`
	Domain      string               `json:"domain,omitempty" yaml:"domain,omitempty"`
	Username    string               `json:"username,omitempty" yaml:"username,omitempty"`
	PATSet      bool                 `json:"patSet" yaml:"pat_set"`
	PasswordSet bool                 `json:"passwordSet" yaml:"password_set"`
	TokenPath   string               `json:"tokenPath" yaml:"token_path"`
	DBPath      string               `json:"dbPath" yaml:"db_path"`
	Logging     config.LoggingConfig `json:"logging" yaml:"logging"`
	Network     config.NetworkConfig `json:"network" yaml:"network"`
	Query       config.QueryConfig   `json:"query" yaml:"query"`
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())
	rp := cc.Cfg

	out := configShowOutput{
		Profile:     rp.Name,
		ConfigPath:  rp.ConfigPath,
		URL:         rp.URL,
		Auth:        rp.Auth,
		Tenant:      rp.Tenant,
		ClientID:    rp.ClientID,
		Project:     rp.Project,
		Domain:      rp.Domain,
		Username:    rp.Username,
		PATSet:      rp.PAT != "",
		PasswordSet: rp.Password != "",
		TokenPath:   rp.TokenPath,
		DBPath:      rp.DBPath,
		Logging:     rp.Logging,
		Network:     rp.Network,
		Query:       rp.Query,
	}

	w := cmd.OutOrStdout()
	if done, err := writeStructured(w, cc.Flags.Format(), out); done {
		return err
	}

	return config.RenderEffective(rp, w)
}
