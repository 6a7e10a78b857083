package main

import "github.com/querygate/querygate/cmd"

func main() {
	cmd.Cmd()
}
