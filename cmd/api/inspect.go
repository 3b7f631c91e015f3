package main

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"tryonapi/config"
	"tryonapi/services"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var defaultProbeSpaces = []string{
	"yisol/IDM-VTON",
	"human37/IDM-VTON",
	"cuuupid/idm-vton",
	"KW-AI/Kolors-Virtual-Try-On",
	"TencentARC/PhotoMaker-V2",
}

func newInspectGateway(cfg *config.Config) (*services.GradioGateway, error) {
	hosts, err := services.NewSpaceHostCache(&http.Client{Timeout: 30 * time.Second}, cfg.HuggingFaceAPIURL, cfg.HFAccessToken)
	if err != nil {
		return nil, err
	}
	gateway := services.NewGradioGateway(cfg, hosts)
	gateway.HTTPClient = &http.Client{Timeout: 60 * time.Second}
	return gateway, nil
}

func newInspectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect [space]",
		Short: "Print the API description of a space as YAML",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			space := cfg.Space
			if len(args) == 1 {
				space = args[0]
			}
			gateway, err := newInspectGateway(cfg)
			if err != nil {
				return err
			}

			info, err := gateway.DescribeAPI(cmd.Context(), space)
			if err != nil {
				return fmt.Errorf("inspect %s: %w", space, err)
			}
			out, err := yaml.Marshal(info)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
	return cmd
}

func newProbeCmd() *cobra.Command {
	var anonymous bool

	cmd := &cobra.Command{
		Use:   "probe [space...]",
		Short: "Check which try-on spaces are reachable and list their endpoints",
		RunE: func(cmd *cobra.Command, args []string) error {
			spaces := args
			if len(spaces) == 0 {
				spaces = defaultProbeSpaces
			}
			cfg := config.Load()
			if anonymous {
				cfg.HFAccessToken = ""
			}
			gateway, err := newInspectGateway(cfg)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, space := range spaces {
				info, err := gateway.DescribeAPI(cmd.Context(), space)
				if err != nil {
					fmt.Fprintf(out, "FAILED    %s: %v\n", space, err)
					continue
				}
				endpoints := make([]string, 0, len(info.NamedEndpoints))
				for name := range info.NamedEndpoints {
					endpoints = append(endpoints, name)
				}
				sort.Strings(endpoints)
				fmt.Fprintf(out, "CONNECTED %s (%s): %s\n", space, info.Host, strings.Join(endpoints, ", "))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&anonymous, "anonymous", false, "Connect without the HF token to check public availability")

	return cmd
}
