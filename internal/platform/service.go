// Package platform defines the user-service install contract: a declarative
// ServiceSpec that OS-specific supervisors (launchd, systemd, schtasks)
// consume to run the daemon at login. This package renders supervisor
// definitions; it never installs them.
package platform

import (
	"fmt"
	"sort"
	"strings"
)

// DefaultLabel is the reverse-DNS service identifier used on every platform.
const DefaultLabel = "dev.summarize.daemon"

// envAllowlist names the environment variables forwarded into the service.
// Supervisors start services with a minimal environment, so credentials and
// endpoint overrides must be carried explicitly.
var envAllowlist = []string{
	"HOME",
	"PATH",
	"OPENAI_API_KEY",
	"OPENAI_BASE_URL",
	"ANTHROPIC_API_KEY",
	"ANTHROPIC_BASE_URL",
	"GEMINI_API_KEY",
	"GOOGLE_API_KEY",
	"GOOGLE_GENERATIVE_AI_API_KEY",
	"XAI_API_KEY",
	"ZAI_API_KEY",
	"OPENROUTER_API_KEY",
	"FIRECRAWL_API_KEY",
	"APIFY_API_TOKEN",
	"NO_COLOR",
}

// ServiceSpec is the install contract for running the daemon as a user
// service.
type ServiceSpec struct {
	// Label identifies the service to the supervisor (launchd label,
	// systemd unit name stem, scheduled-task name).
	Label string

	// ExecPath is the absolute path of the binary to run.
	ExecPath string

	// Args are the arguments after the binary path.
	Args []string

	// Env carries the allowlisted environment, already filtered.
	Env map[string]string

	// WorkingDir is the service working directory.
	WorkingDir string

	// KeepAlive asks the supervisor to restart the service when it exits.
	KeepAlive bool

	// RunAtLoad starts the service at login rather than on demand.
	RunAtLoad bool

	// StdoutPath and StderrPath are the service log destinations.
	StdoutPath string
	StderrPath string
}

// NewServiceSpec builds the daemon service spec from the binary path and
// data directory. environ is the caller's environment in os.Environ form.
func NewServiceSpec(execPath, dataDir string, environ []string) ServiceSpec {
	return ServiceSpec{
		Label:      DefaultLabel,
		ExecPath:   execPath,
		Args:       []string{"serve"},
		Env:        FilterEnv(environ),
		WorkingDir: dataDir,
		KeepAlive:  true,
		RunAtLoad:  true,
		StdoutPath: dataDir + "/daemon.log",
		StderrPath: dataDir + "/daemon.err.log",
	}
}

// FilterEnv keeps only allowlisted variables from an os.Environ-style list.
func FilterEnv(environ []string) map[string]string {
	allowed := make(map[string]bool, len(envAllowlist))
	for _, name := range envAllowlist {
		allowed[name] = true
	}
	out := make(map[string]string)
	for _, kv := range environ {
		name, value, ok := strings.Cut(kv, "=")
		if ok && allowed[name] && value != "" {
			out[name] = value
		}
	}
	return out
}

// Validate rejects specs a supervisor could not act on.
func (s ServiceSpec) Validate() error {
	if s.Label == "" {
		return fmt.Errorf("service label is required")
	}
	if s.ExecPath == "" {
		return fmt.Errorf("service exec path is required")
	}
	if strings.ContainsAny(s.Label, " \t\n") {
		return fmt.Errorf("service label %q must not contain whitespace", s.Label)
	}
	return nil
}

// sortedEnvKeys returns env names in stable order so rendered definitions
// are deterministic.
func (s ServiceSpec) sortedEnvKeys() []string {
	keys := make([]string, 0, len(s.Env))
	for k := range s.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// LaunchdPlist renders the macOS launch agent definition.
func (s ServiceSpec) LaunchdPlist() string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
	b.WriteString(`<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">` + "\n")
	b.WriteString("<plist version=\"1.0\">\n<dict>\n")

	fmt.Fprintf(&b, "\t<key>Label</key>\n\t<string>%s</string>\n", xmlEscape(s.Label))

	b.WriteString("\t<key>ProgramArguments</key>\n\t<array>\n")
	fmt.Fprintf(&b, "\t\t<string>%s</string>\n", xmlEscape(s.ExecPath))
	for _, arg := range s.Args {
		fmt.Fprintf(&b, "\t\t<string>%s</string>\n", xmlEscape(arg))
	}
	b.WriteString("\t</array>\n")

	if len(s.Env) > 0 {
		b.WriteString("\t<key>EnvironmentVariables</key>\n\t<dict>\n")
		for _, k := range s.sortedEnvKeys() {
			fmt.Fprintf(&b, "\t\t<key>%s</key>\n\t\t<string>%s</string>\n", xmlEscape(k), xmlEscape(s.Env[k]))
		}
		b.WriteString("\t</dict>\n")
	}

	if s.WorkingDir != "" {
		fmt.Fprintf(&b, "\t<key>WorkingDirectory</key>\n\t<string>%s</string>\n", xmlEscape(s.WorkingDir))
	}
	fmt.Fprintf(&b, "\t<key>RunAtLoad</key>\n\t<%t/>\n", s.RunAtLoad)
	fmt.Fprintf(&b, "\t<key>KeepAlive</key>\n\t<%t/>\n", s.KeepAlive)
	if s.StdoutPath != "" {
		fmt.Fprintf(&b, "\t<key>StandardOutPath</key>\n\t<string>%s</string>\n", xmlEscape(s.StdoutPath))
	}
	if s.StderrPath != "" {
		fmt.Fprintf(&b, "\t<key>StandardErrorPath</key>\n\t<string>%s</string>\n", xmlEscape(s.StderrPath))
	}

	b.WriteString("</dict>\n</plist>\n")
	return b.String()
}

// SystemdUnit renders the user-scope systemd service definition.
func (s ServiceSpec) SystemdUnit() string {
	var b strings.Builder
	b.WriteString("[Unit]\n")
	fmt.Fprintf(&b, "Description=%s\n", s.Label)
	b.WriteString("After=network-online.target\n\n")

	b.WriteString("[Service]\n")
	b.WriteString("Type=simple\n")
	fmt.Fprintf(&b, "ExecStart=%s\n", strings.Join(append([]string{systemdQuote(s.ExecPath)}, quoteAll(s.Args)...), " "))
	if s.WorkingDir != "" {
		fmt.Fprintf(&b, "WorkingDirectory=%s\n", s.WorkingDir)
	}
	for _, k := range s.sortedEnvKeys() {
		fmt.Fprintf(&b, "Environment=%s\n", systemdQuote(k+"="+s.Env[k]))
	}
	if s.KeepAlive {
		b.WriteString("Restart=on-failure\nRestartSec=5\n")
	}
	if s.StdoutPath != "" {
		fmt.Fprintf(&b, "StandardOutput=append:%s\n", s.StdoutPath)
	}
	if s.StderrPath != "" {
		fmt.Fprintf(&b, "StandardError=append:%s\n", s.StderrPath)
	}
	b.WriteString("\n[Install]\nWantedBy=default.target\n")
	return b.String()
}

// SchtasksArgs returns the `schtasks /Create` argument list for a logon
// task. Windows has no user-scope keepalive; the task restarts at logon
// only.
func (s ServiceSpec) SchtasksArgs() []string {
	cmd := s.ExecPath
	for _, arg := range s.Args {
		cmd += " " + arg
	}
	return []string{
		"/Create",
		"/TN", s.Label,
		"/TR", cmd,
		"/SC", "ONLOGON",
		"/F",
	}
}

func quoteAll(args []string) []string {
	out := make([]string, len(args))
	for i, a := range args {
		out[i] = systemdQuote(a)
	}
	return out
}

func systemdQuote(s string) string {
	if !strings.ContainsAny(s, " \t\"'") {
		return s
	}
	return `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
}

var xmlReplacer = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
)

func xmlEscape(s string) string {
	return xmlReplacer.Replace(s)
}
