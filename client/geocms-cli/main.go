package main

import "GeoCMS/client/geocms-cli/cmd"

func main() {
	cmd.Execute()
}
