// Slnsync keeps C# project and solution files in sync with a source tree.
package main

import "github.com/albertocavalcante/slnsync/cmd/slnsync/internal/cli"

func main() {
	cli.Execute()
}
