package main

import "github.com/pearlgull/pearlgull/cmd"

func main() {
	cmd.Execute()
}
