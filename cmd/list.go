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
	"strings"

	"github.com/spf13/cobra"

	"github.com/gostor/iscsitgt/pkg/api/client"
)

func newListCommand(cli *client.Client) *cobra.Command {
	var format string
	var cmd = &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List object(s)",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return checkFormat(format)
		},
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(cmd.UsageString())
		},
	}
	cmd.PersistentFlags().StringVarP(&format, "output", "o", formatTable, "Output format (table, json, yaml)")
	cmd.AddCommand(
		&cobra.Command{
			Use:     "luns",
			Aliases: []string{"lun"},
			Short:   "List the exported LUNs",
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := NoArgs(cmd, args); err != nil {
					return err
				}
				return listLuns(cmd.Context(), cli, format)
			},
		},
		&cobra.Command{
			Use:     "sessions",
			Aliases: []string{"session"},
			Short:   "List the connected initiators",
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := NoArgs(cmd, args); err != nil {
					return err
				}
				return listSessions(cmd.Context(), cli, format)
			},
		},
	)
	return cmd
}

func listLuns(ctx context.Context, cli *client.Client, format string) error {
	luns, err := cli.LunList(ctx)
	if err != nil {
		return err
	}
	if format != formatTable {
		return printObject(os.Stdout, format, luns)
	}

	rows := make([][]string, 0, len(luns))
	for _, lun := range luns {
		state := "ready"
		if !lun.Ready {
			state = "not ready"
		}
		rows = append(rows, []string{
			strconv.Itoa(int(lun.ID)),
			lun.Name,
			lun.BackingStore,
			lun.Path,
			formatSize(lun.Size),
			yesNo(lun.ReadOnly),
			state,
			orDash(strings.Join(lun.AllowedInitiators, ",")),
		})
	}
	printTable(os.Stdout, []string{"LUN", "Name", "Store", "Path", "Size", "Read only", "State", "Initiators"}, rows)
	return nil
}

func listSessions(ctx context.Context, cli *client.Client, format string) error {
	sessions, err := cli.TargetSessions(ctx)
	if err != nil {
		return err
	}
	if format != formatTable {
		return printObject(os.Stdout, format, sessions)
	}

	rows := make([][]string, 0, len(sessions))
	for _, s := range sessions {
		rows = append(rows, []string{
			s.Initiator,
			s.RemoteAddr,
			s.Type,
			s.Phase,
			s.ISID,
			strconv.Itoa(int(s.TSIH)),
			orDash(s.ChapUser),
			s.Connected.Format("2006-01-02 15:04:05"),
		})
	}
	printTable(os.Stdout, []string{"Initiator", "Address", "Type", "Phase", "ISID", "TSIH", "CHAP user", "Connected"}, rows)
	return nil
}
