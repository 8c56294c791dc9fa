// Package cnienv models the per-invocation environment (spec §3 CniEnv).
package cnienv

import (
	"github.com/containernetworking/cni/pkg/skel"
)

// Command is the CNI command for this invocation.
type Command string

const (
	CommandAdd    Command = "ADD"
	CommandDel    Command = "DEL"
	CommandCheck  Command = "CHECK"
	CommandStatus Command = "STATUS"
	CommandGC     Command = "GC"
	CommandVerify Command = "VERSION"
)

// NotSupported reports whether command is one of CHECK/STATUS/GC, which
// this plugin always answers with CNI error code 287.
func (c Command) NotSupported() bool {
	switch c {
	case CommandCheck, CommandStatus, CommandGC:
		return true
	}
	return false
}

// Env is the parsed invocation environment.
type Env struct {
	Command     Command
	ContainerID string
	NetnsPath   string
	IfName      string
}

// FromArgs builds an Env from the skel.CmdArgs the CNI library already
// parsed from CNI_CONTAINERID/CNI_NETNS/CNI_IFNAME, plus the explicit
// command the caller is handling.
func FromArgs(command Command, args *skel.CmdArgs) *Env {
	return &Env{
		Command:     command,
		ContainerID: args.ContainerID,
		NetnsPath:   args.Netns,
		IfName:      args.IfName,
	}
}
