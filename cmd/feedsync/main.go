// Package main is the entry point for the feedsync CLI.
package main

import "github.com/kayteedberserker/feedsync/internal/cli"

func main() {
	cli.Execute()
}
