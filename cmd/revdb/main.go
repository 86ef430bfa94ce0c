package main

import "github.com/andreyvit/revdb/cmd"

func main() {
	cmd.Execute()
}
