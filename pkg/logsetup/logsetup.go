// Package logsetup directs klog output the way both ohno entrypoints need
// it: the plugin to a configured file, the daemon to stderr (spec §2.1,
// §6).
package logsetup

import (
	"flag"

	"k8s.io/klog/v2"
)

// Verbosity maps a named log level onto a klog -v verbosity, since klog
// itself has no named levels.
func Verbosity(level string) string {
	switch level {
	case "debug":
		return "4"
	case "warn", "warning":
		return "1"
	case "error":
		return "0"
	default:
		return "2"
	}
}

// ToFile directs klog output at logFile, used by the plugin (spec §6: the
// plugin logs to the configured "log" file path at "logLevel").
func ToFile(logFile, level string) {
	fs := flag.NewFlagSet("ohno", flag.ContinueOnError)
	klog.InitFlags(fs)
	_ = fs.Set("logtostderr", "false")
	_ = fs.Set("alsologtostderr", "false")
	if logFile != "" {
		_ = fs.Set("log_file", logFile)
		_ = fs.Set("log_file_max_size", "0")
	}
	_ = fs.Set("v", Verbosity(level))
}

// ToStderr keeps klog on its default stderr sink, used by the daemon.
func ToStderr(level string) {
	fs := flag.NewFlagSet("ohno-agent", flag.ContinueOnError)
	klog.InitFlags(fs)
	_ = fs.Set("logtostderr", "true")
	_ = fs.Set("v", Verbosity(level))
}
