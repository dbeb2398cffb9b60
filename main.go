package main

import "github.com/arcward/guildsweep/cmd"

func main() {
	cmd.Execute()
}
