package main

import "github.com/levelcord/levelcord/cmd"

func main() {
	cmd.Execute()
}
