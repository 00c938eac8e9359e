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

	"github.com/spf13/cobra"

	"github.com/gostor/iscsitgt/pkg/api"
	"github.com/gostor/iscsitgt/pkg/api/client"
)

func newCreateCommand(cli *client.Client) *cobra.Command {
	var cmd = &cobra.Command{
		Use:   "create",
		Short: "Create a new object",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(cmd.UsageString())
		},
	}
	cmd.AddCommand(
		newCreateLunCmd(cli),
	)
	return cmd
}

func newCreateLunCmd(cli *client.Client) *cobra.Command {
	opts := api.LunCreateRequest{}
	var cmd = &cobra.Command{
		Use:   "lun",
		Short: "Open a backing file and export it as a LUN",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := NoArgs(cmd, args); err != nil {
				return err
			}
			return createLun(cmd.Context(), cli, opts)
		},
	}
	flags := cmd.Flags()
	flags.Uint8Var(&opts.ID, "id", 0, "LUN number")
	flags.StringVar(&opts.Path, "path", "", "Backing file or device")
	flags.StringVar(&opts.Name, "name", "", "Name reported in INQUIRY, defaults to the file name")
	flags.StringVar(&opts.BackingStore, "backing-store", "", "Backing store type (file, qcow2, null)")
	flags.BoolVar(&opts.ReadOnly, "read-only", false, "Reject writes")
	flags.StringSliceVar(&opts.AllowedInitiators, "allow", nil, "Initiator IQN allowed to use the LUN, may be repeated")
	flags.BoolVar(&opts.Save, "save", false, "Persist the configuration")
	cmd.MarkFlagRequired("path")

	return cmd
}

func createLun(ctx context.Context, cli *client.Client, opts api.LunCreateRequest) error {
	lun, err := cli.LunCreate(ctx, opts)
	if err != nil {
		return err
	}
	fmt.Printf("LUN %d (%s) successfully created, %s\n", lun.ID, lun.Name, formatSize(lun.Size))
	return nil
}
