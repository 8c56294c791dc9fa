package cnienv

import (
	"testing"

	"github.com/containernetworking/cni/pkg/skel"
)

func TestNotSupported(t *testing.T) {
	cases := []struct {
		cmd  Command
		want bool
	}{
		{CommandAdd, false},
		{CommandDel, false},
		{CommandVerify, false},
		{CommandCheck, true},
		{CommandStatus, true},
		{CommandGC, true},
	}
	for _, c := range cases {
		if got := c.cmd.NotSupported(); got != c.want {
			t.Errorf("Command(%q).NotSupported() = %v, want %v", c.cmd, got, c.want)
		}
	}
}

func TestFromArgs(t *testing.T) {
	args := &skel.CmdArgs{
		ContainerID: "cid-1",
		Netns:       "/var/run/netns/pod-1",
		IfName:      "eth0",
	}
	env := FromArgs(CommandAdd, args)
	if env.Command != CommandAdd || env.ContainerID != "cid-1" || env.NetnsPath != args.Netns || env.IfName != "eth0" {
		t.Fatalf("FromArgs = %+v", env)
	}
}
