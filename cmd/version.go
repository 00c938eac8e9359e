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
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gostor/iscsitgt/pkg/api/client"
	"github.com/gostor/iscsitgt/pkg/version"
)

func newVersionCommand(cli *client.Client) *cobra.Command {
	var cmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version of the client and the daemon",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("Client: iscsitgt %s, API %s\n", version.VERSION, cli.ClientVersion())
			st, err := cli.TargetStatus(cmd.Context())
			if err != nil {
				fmt.Printf("Daemon: unreachable (%v)\n", err)
				return
			}
			fmt.Printf("Daemon: iscsitgt %s\n", st.Version)
		},
	}
	return cmd
}
