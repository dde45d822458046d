// Package main provides the larder CLI.
package main

import "github.com/mesh-intelligence/larder/internal/cli"

func main() {
	cli.Execute()
}
