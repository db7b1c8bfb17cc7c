package main

import "github.com/akash-R-A-J/idmap-gateway/cmd"

func main() {
	cmd.Execute()
}
