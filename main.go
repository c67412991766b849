package main

import "github.com/hacastro22/watibot3-sub002/cmd"

func main() {
	cmd.Execute()
}
