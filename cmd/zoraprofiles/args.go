package main

import "strings"

// splitArgs accepts handles as separate arguments, comma-separated, or both.
func splitArgs(args []string) []string {
	var out []string
	for _, a := range args {
		out = append(out, strings.Split(a, ",")...)
	}
	return out
}
