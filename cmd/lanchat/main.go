// Package main is the lanchat binary entrypoint.
package main

import "github.com/WebFirstLanguage/lanchat/internal/cli"

// Build-time variable set by ldflags
var version = "dev"

func main() {
	cli.Execute(version)
}
