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

// iSCSI target daemon and its management client
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/gostor/iscsitgt/cmd"
	"github.com/gostor/iscsitgt/pkg/api/client"
	"github.com/gostor/iscsitgt/pkg/config"
	"github.com/gostor/iscsitgt/pkg/version"
)

func main() {
	host := os.Getenv("ISCSITGT_HOST")
	if host == "" {
		host = config.DefaultAPIHost
	}

	cli, err := client.NewClient(host, version.APIVersion, nil, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	if err := cmd.NewCommand(cli).ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
