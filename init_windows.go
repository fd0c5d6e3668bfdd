//go:build windows

package main

import "golang.org/x/sys/windows"

func init() {
	// UTF-8 output and ANSI escapes for the styled terminal output
	windows.SetConsoleOutputCP(65001)

	stdout := windows.Handle(windows.Stdout)
	var mode uint32
	if err := windows.GetConsoleMode(stdout, &mode); err == nil {
		windows.SetConsoleMode(stdout, mode|windows.ENABLE_VIRTUAL_TERMINAL_PROCESSING)
	}
}
