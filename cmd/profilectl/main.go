// Command profilectl edits the caller's own profile through the basic-info API.
//
//	profilectl show --as other
//	profilectl edit --set nickname=たろう --show nickname --connect line=U123
//	profilectl bio --caps extended
package main

import (
	"os"
)

func main() {
	if err := newRootCmd(os.Stdout, os.Stderr).Execute(); err != nil {
		os.Exit(1)
	}
}
