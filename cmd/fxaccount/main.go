package main

import "github.com/jmcleod/fxaccount/cmd/fxaccount/cmd"

func main() {
	cmd.Execute()
}
