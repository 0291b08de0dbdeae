package main

import (
	"fmt"
	"runtime"
)

// Version is the tool version, overridden at build time.
var Version = "1.0.0"

// Gitref is set by the release pipeline via -ldflags.
var Gitref string

func (c *VersionCmdConfig) Run() error {
	if Gitref != "" {
		fmt.Printf("%v v%v git:%v %v\n", toolName, Version, Gitref, runtime.Version())
	} else {
		fmt.Printf("%v v%v %v\n", toolName, Version, runtime.Version())
	}
	return nil
}
