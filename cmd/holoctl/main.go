// holoctl builds, signs, verifies and audits Holograph deployment configs.
//
// Every library operation is exposed as a subcommand; `holoctl serve`
// exposes the same operations over JSON-RPC.
package main

import "github.com/holographxyz/holograph-sub000/cmd/holoctl/cmd"

func main() {
	cmd.Execute()
}
