package main

import "github.com/denobridge/denobridge/cmd/denobridge/cmd"

func main() {
	cmd.Execute()
}
