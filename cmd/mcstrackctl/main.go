// mcstrackctl -- CLI client for the mcstrackd daemon.
package main

import "github.com/mcstrack/mcstrackd/cmd/mcstrackctl/commands"

func main() {
	commands.Execute()
}
