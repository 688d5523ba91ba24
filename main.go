package main

import "portwatch/cmd"

// version is set via -ldflags at release time.
var version = "dev"

func main() {
	cmd.SetVersion(version)
	cmd.Execute()
}
