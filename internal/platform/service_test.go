package platform

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSpec() ServiceSpec {
	return ServiceSpec{
		Label:      DefaultLabel,
		ExecPath:   "/usr/local/bin/summarize",
		Args:       []string{"serve"},
		Env:        map[string]string{"OPENROUTER_API_KEY": "sk-test", "PATH": "/usr/bin"},
		WorkingDir: "/home/u/.summarize",
		KeepAlive:  true,
		RunAtLoad:  true,
		StdoutPath: "/home/u/.summarize/daemon.log",
		StderrPath: "/home/u/.summarize/daemon.err.log",
	}
}

func TestFilterEnv(t *testing.T) {
	env := FilterEnv([]string{
		"OPENROUTER_API_KEY=sk-or",
		"ANTHROPIC_API_KEY=sk-ant",
		"SECRET_SSH_AGENT=/tmp/agent.sock",
		"LANG=en_US.UTF-8",
		"GEMINI_API_KEY=",
		"PATH=/usr/bin:/bin",
	})

	assert.Equal(t, "sk-or", env["OPENROUTER_API_KEY"])
	assert.Equal(t, "sk-ant", env["ANTHROPIC_API_KEY"])
	assert.Equal(t, "/usr/bin:/bin", env["PATH"])
	assert.NotContains(t, env, "SECRET_SSH_AGENT")
	assert.NotContains(t, env, "LANG")
	// Empty values are not forwarded.
	assert.NotContains(t, env, "GEMINI_API_KEY")
}

func TestNewServiceSpec(t *testing.T) {
	spec := NewServiceSpec("/opt/bin/summarize", "/home/u/.summarize", []string{"OPENAI_API_KEY=k"})

	require.NoError(t, spec.Validate())
	assert.Equal(t, DefaultLabel, spec.Label)
	assert.Equal(t, []string{"serve"}, spec.Args)
	assert.True(t, spec.KeepAlive)
	assert.True(t, spec.RunAtLoad)
	assert.Equal(t, "k", spec.Env["OPENAI_API_KEY"])
	assert.Equal(t, "/home/u/.summarize/daemon.log", spec.StdoutPath)
}

func TestValidate(t *testing.T) {
	spec := testSpec()
	require.NoError(t, spec.Validate())

	spec.Label = ""
	assert.Error(t, spec.Validate())

	spec = testSpec()
	spec.ExecPath = ""
	assert.Error(t, spec.Validate())

	spec = testSpec()
	spec.Label = "has space"
	assert.Error(t, spec.Validate())
}

func TestLaunchdPlist(t *testing.T) {
	plist := testSpec().LaunchdPlist()

	assert.Contains(t, plist, "<key>Label</key>\n\t<string>dev.summarize.daemon</string>")
	assert.Contains(t, plist, "<string>/usr/local/bin/summarize</string>")
	assert.Contains(t, plist, "<string>serve</string>")
	assert.Contains(t, plist, "<key>KeepAlive</key>\n\t<true/>")
	assert.Contains(t, plist, "<key>RunAtLoad</key>\n\t<true/>")
	assert.Contains(t, plist, "<key>OPENROUTER_API_KEY</key>")
	assert.Contains(t, plist, "<key>StandardOutPath</key>")
}

func TestLaunchdPlistEscapesValues(t *testing.T) {
	spec := testSpec()
	spec.Env = map[string]string{"OPENAI_API_KEY": `a<b&"c"`}
	plist := spec.LaunchdPlist()

	assert.Contains(t, plist, "a&lt;b&amp;&quot;c&quot;")
	assert.NotContains(t, plist, `a<b`)
}

func TestSystemdUnit(t *testing.T) {
	unit := testSpec().SystemdUnit()

	assert.Contains(t, unit, "ExecStart=/usr/local/bin/summarize serve\n")
	assert.Contains(t, unit, "WorkingDirectory=/home/u/.summarize\n")
	assert.Contains(t, unit, "Environment=OPENROUTER_API_KEY=sk-test\n")
	assert.Contains(t, unit, "Restart=on-failure\n")
	assert.Contains(t, unit, "StandardOutput=append:/home/u/.summarize/daemon.log\n")
	assert.Contains(t, unit, "WantedBy=default.target\n")

	// Env keys render in sorted order for deterministic output.
	assert.Less(t, strings.Index(unit, "Environment=OPENROUTER_API_KEY"), strings.Index(unit, "Environment=PATH"))
}

func TestSystemdUnitNoKeepAlive(t *testing.T) {
	spec := testSpec()
	spec.KeepAlive = false
	assert.NotContains(t, spec.SystemdUnit(), "Restart=")
}

func TestSchtasksArgs(t *testing.T) {
	args := testSpec().SchtasksArgs()
	assert.Equal(t, []string{
		"/Create",
		"/TN", "dev.summarize.daemon",
		"/TR", "/usr/local/bin/summarize serve",
		"/SC", "ONLOGON",
		"/F",
	}, args)
}
