/*
Copyright 2016 The GoStor Authors All rights reserved.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package cmd

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/gostor/iscsitgt/pkg/api"
	"github.com/gostor/iscsitgt/pkg/api/client"
)

func newTargetCommand(cli *client.Client) *cobra.Command {
	var format string
	var cmd = &cobra.Command{
		Use:   "target",
		Short: "Inspect and control the iSCSI target",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return checkFormat(format)
		},
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(cmd.UsageString())
		},
	}
	cmd.PersistentFlags().StringVarP(&format, "output", "o", formatTable, "Output format (table, json, yaml)")

	status := func(call func(context.Context) (api.TargetStatus, error)) func(cmd *cobra.Command, args []string) error {
		return func(cmd *cobra.Command, args []string) error {
			if err := NoArgs(cmd, args); err != nil {
				return err
			}
			st, err := call(cmd.Context())
			if err != nil {
				return err
			}
			return printStatus(st, format)
		}
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "status",
			Short: "Show the target state",
			RunE:  status(cli.TargetStatus),
		},
		&cobra.Command{
			Use:   "start",
			Short: "Start accepting initiator connections",
			RunE:  status(cli.TargetStart),
		},
		&cobra.Command{
			Use:   "stop",
			Short: "Close the portal and every session",
			RunE:  status(cli.TargetStop),
		},
		&cobra.Command{
			Use:   "save",
			Short: "Write the running configuration to the daemon's config file",
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := NoArgs(cmd, args); err != nil {
					return err
				}
				if err := cli.TargetSave(cmd.Context()); err != nil {
					return err
				}
				fmt.Println("Configuration saved")
				return nil
			},
		},
		&cobra.Command{
			Use:   "discover",
			Short: "Show what a SendTargets discovery returns",
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := NoArgs(cmd, args); err != nil {
					return err
				}
				return discover(cmd.Context(), cli, format)
			},
		},
	)
	return cmd
}

func printStatus(st api.TargetStatus, format string) error {
	if format != formatTable {
		return printObject(os.Stdout, format, st)
	}
	state := "stopped"
	if st.Running {
		state = "running"
	}
	printTable(os.Stdout, []string{"Target", "Alias", "Portal", "State", "Sessions", "LUNs", "CHAP"}, [][]string{{
		st.TargetIQN,
		orDash(st.TargetAlias),
		st.Portal,
		state,
		strconv.Itoa(st.Sessions),
		strconv.Itoa(st.LUNs),
		yesNo(st.CHAP),
	}})
	return nil
}

func discover(ctx context.Context, cli *client.Client, format string) error {
	records, err := cli.Discover(ctx)
	if err != nil {
		return err
	}
	if format != formatTable {
		return printObject(os.Stdout, format, records)
	}
	if len(records) == 0 {
		fmt.Println("The target is not running")
		return nil
	}
	for _, r := range records {
		fmt.Printf("%s %s\n", r.TargetAddress, r.TargetName)
	}
	return nil
}
