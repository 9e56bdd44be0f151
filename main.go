/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package main

import "warden/cmd"

func main() {
	cmd.Execute()
}
