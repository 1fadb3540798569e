package main

import "github.com/sentinelai/sentinel/cmd"

func main() {
	cmd.Execute()
}
