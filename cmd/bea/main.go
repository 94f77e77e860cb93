// Command bea crawls business epic hierarchies from a Jira-style
// tracker into a local cache and renders trees and change histories
// from it.
package main

import "os"

func main() {
	if err := Execute(); err != nil {
		os.Exit(1)
	}
}
