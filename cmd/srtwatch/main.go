package main

import "github.com/example/srt-watcher/cmd"

func main() {
	cmd.Execute()
}
