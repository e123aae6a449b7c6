//go:build !unix

package reach

import "os/exec"

func setProcessGroup(*exec.Cmd) {}
