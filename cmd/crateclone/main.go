package main

import "github.com/crateclone/crateclone/pkg/cmd"

func main() {
	cmd.Execute()
}
