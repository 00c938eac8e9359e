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
	"strconv"

	"github.com/spf13/cobra"

	"github.com/gostor/iscsitgt/pkg/api"
	"github.com/gostor/iscsitgt/pkg/api/client"
)

func newRemoveCommand(cli *client.Client) *cobra.Command {
	var cmd = &cobra.Command{
		Use:     "rm",
		Aliases: []string{"remove"},
		Short:   "Remove an object",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(cmd.UsageString())
		},
	}
	cmd.AddCommand(
		newRemoveLunCmd(cli),
	)
	return cmd
}

func newRemoveLunCmd(cli *client.Client) *cobra.Command {
	opts := api.LunRemoveOptions{}
	var cmd = &cobra.Command{
		Use:   "lun ID",
		Short: "Close a LUN and drop it from the configuration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseUint(args[0], 10, 8)
			if err != nil {
				return fmt.Errorf("invalid LUN id %q", args[0])
			}
			opts.ID = uint8(id)
			return removeLun(cmd.Context(), cli, opts)
		},
	}
	flags := cmd.Flags()
	flags.BoolVar(&opts.Save, "save", false, "Persist the configuration")

	return cmd
}

func removeLun(ctx context.Context, cli *client.Client, opts api.LunRemoveOptions) error {
	if err := cli.LunRemove(ctx, opts); err != nil {
		if client.IsErrNotFound(err) {
			return fmt.Errorf("LUN %d does not exist", opts.ID)
		}
		return err
	}
	fmt.Printf("LUN %d successfully removed\n", opts.ID)
	return nil
}
