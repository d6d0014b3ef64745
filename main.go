package main

import "github.com/drgolem/audiobridge/cmd"

func main() {
	cmd.Execute()
}
