package main

import "github.com/javi11/gcsio/cmd/gcsio/cmd"

func main() {
	cmd.Execute()
}
