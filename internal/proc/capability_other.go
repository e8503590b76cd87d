//go:build !linux

package proc

func canInspectAllProcesses() bool { return false }
