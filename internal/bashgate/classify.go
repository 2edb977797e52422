// Package bashgate classifies shell commands by whether they can reach
// the network.
//
// A command is split into segments on chain and pipeline operators. Every
// segment is classified on its own and the worst segment decides the
// command: network-capable beats unknown, unknown beats local-safe.
package bashgate

import (
	"path/filepath"
	"strings"
)

// Classification is the result of classifying one command string.
type Classification string

const (
	LocalSafe      Classification = "local-safe"
	NetworkCapable Classification = "network-capable"
	Unknown        Classification = "unknown"
)

func (c Classification) rank() int {
	switch c {
	case LocalSafe:
		return 0
	case NetworkCapable:
		return 2
	default:
		return 1
	}
}

// Segment is one simple command inside a compound command.
type Segment struct {
	Text    string         `json:"text"`
	Command string         `json:"command,omitempty"`
	Class   Classification `json:"class"`
	Reason  string         `json:"reason"`
}

// Result is the classification of a whole command.
type Result struct {
	Class    Classification `json:"class"`
	Reason   string         `json:"reason"`
	Segments []Segment      `json:"segments"`
}

// Options extends the default lists.
type Options struct {
	ExtraSafe    []string
	ExtraNetwork []string
}

// Classifier holds the resolved safe, network and interpreter sets.
type Classifier struct {
	safe        map[string]bool
	network     map[string]bool
	interpreter map[string]bool
}

// New creates a Classifier from the default lists plus opts. A binary
// listed in both ExtraSafe and the network list is treated as network.
func New(opts Options) *Classifier {
	c := &Classifier{
		safe:        toSet(DefaultSafe, opts.ExtraSafe),
		network:     toSet(DefaultNetwork, opts.ExtraNetwork),
		interpreter: toSet(Interpreters, nil),
	}
	return c
}

var defaultClassifier = New(Options{})

// Classify classifies command with the default lists.
func Classify(command string) Result {
	return defaultClassifier.Classify(command)
}

// Classify splits command into segments and returns the worst segment's class.
// An empty command is unknown.
func (c *Classifier) Classify(command string) Result {
	raw := splitCommand(command)

	res := Result{Class: LocalSafe}
	pipelineNetwork := false
	for _, p := range raw {
		text := strings.TrimSpace(p.text)
		if text == "" {
			continue
		}
		if !p.piped {
			pipelineNetwork = false
		}

		seg := c.classifySegment(text, p.substitution)
		if p.piped && pipelineNetwork && c.interpreter[seg.Command] {
			seg.Class = NetworkCapable
			seg.Reason = "pipe to shell interpreter: " + seg.Command
		}
		if seg.Class == NetworkCapable {
			pipelineNetwork = true
		}

		res.Segments = append(res.Segments, seg)
		if seg.Class.rank() > res.Class.rank() || res.Reason == "" {
			res.Class = seg.Class
			res.Reason = seg.Reason
		}
	}

	if len(res.Segments) == 0 {
		return Result{Class: Unknown, Reason: "empty command"}
	}
	return res
}

func (c *Classifier) classifySegment(text string, substitution bool) Segment {
	seg := Segment{Text: text}

	if strings.Contains(text, "/dev/tcp/") || strings.Contains(text, "/dev/udp/") {
		seg.Class = NetworkCapable
		seg.Reason = "redirect to network device"
		seg.Command = baseCommand(strings.Fields(text))
		return seg
	}

	words := strings.Fields(text)
	seg.Command = baseCommand(words)

	if substitution {
		seg.Class = Unknown
		seg.Reason = "command substitution"
		return seg
	}

	switch {
	case seg.Command == "":
		seg.Class = Unknown
		seg.Reason = "could not extract command"
	case c.network[seg.Command]:
		seg.Class = NetworkCapable
		seg.Reason = "network command: " + seg.Command
	case seg.Command == "git":
		seg.Class, seg.Reason = classifyGit(commandArgs(words))
	case c.safe[seg.Command]:
		if reason := runsPrograms(seg.Command, text, commandArgs(words)); reason != "" {
			seg.Class = Unknown
			seg.Reason = reason
			break
		}
		seg.Class = LocalSafe
		seg.Reason = "local command: " + seg.Command
	case c.interpreter[seg.Command]:
		seg.Class = Unknown
		seg.Reason = "interpreter runs arbitrary code: " + seg.Command
	default:
		seg.Class = Unknown
		seg.Reason = "unknown command: " + seg.Command
	}
	return seg
}

func classifyGit(args []string) (Classification, string) {
	sub := ""
	var rest []string
	for i := 0; i < len(args); i++ {
		a := args[i]
		switch {
		case a == "-c" || strings.HasPrefix(a, "--config-env") || strings.HasPrefix(a, "--exec-path="):
			// config overrides can name a pager, editor or ssh command
			return Unknown, "git option can run commands: " + a
		case a == "-C":
			i++
			continue
		case strings.HasPrefix(a, "-"):
			continue
		}
		sub = a
		rest = args[i+1:]
		break
	}

	switch {
	case sub == "":
		return LocalSafe, "git (no subcommand)"
	case gitNetwork[sub]:
		return NetworkCapable, "git " + sub + " reaches a remote"
	case gitLocal[sub]:
		if reason := gitRunsPrograms(sub, rest); reason != "" {
			return Unknown, reason
		}
		return LocalSafe, "git " + sub
	}
	return Unknown, "unknown git subcommand: " + sub
}

// gitRunsPrograms catches local subcommands whose arguments execute a
// command or store one for a later git invocation.
func gitRunsPrograms(sub string, args []string) string {
	switch sub {
	case "config":
		for _, a := range args {
			if gitConfigReads[a] {
				return ""
			}
		}
		return "git config can install aliases and hooks"
	case "rebase":
		for _, a := range args {
			if a == "-x" || strings.HasPrefix(a, "--exec") {
				return "git rebase --exec runs commands"
			}
		}
	case "bisect":
		if len(args) > 0 && args[0] == "run" {
			return "git bisect run executes a command"
		}
	case "grep":
		for _, a := range args {
			if strings.HasPrefix(a, "-O") || strings.HasPrefix(a, "--open-files-in-pager") {
				return "git grep pager runs a command"
			}
		}
	}
	return ""
}

// commandIndex returns the index of the real command word, skipping
// assignments and wrapper binaries with their flags.
func commandIndex(words []string) int {
	i := 0
	for i < len(words) {
		w := unquote(words[i])
		if isAssignment(w) {
			i++
			continue
		}
		if !wrappers[filepath.Base(w)] {
			return i
		}
		i++
		for i < len(words) {
			f := unquote(words[i])
			if isAssignment(f) {
				i++
				continue
			}
			if !strings.HasPrefix(f, "-") {
				break
			}
			i++
			if wrapperArgFlags[f] {
				i++
			}
		}
	}
	return -1
}

func baseCommand(words []string) string {
	i := commandIndex(words)
	if i < 0 {
		return ""
	}
	return filepath.Base(unquote(words[i]))
}

func commandArgs(words []string) []string {
	i := commandIndex(words)
	if i < 0 || i+1 >= len(words) {
		return nil
	}
	out := make([]string, 0, len(words)-i-1)
	for _, w := range words[i+1:] {
		out = append(out, unquote(w))
	}
	return out
}

func isAssignment(w string) bool {
	eq := strings.IndexByte(w, '=')
	if eq <= 0 {
		return false
	}
	for _, r := range w[:eq] {
		if !(r == '_' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9') {
			return false
		}
	}
	return true
}

func unquote(w string) string {
	if len(w) >= 2 && (w[0] == '"' || w[0] == '\'') && w[len(w)-1] == w[0] {
		return w[1 : len(w)-1]
	}
	return w
}

func toSet(base, extra []string) map[string]bool {
	m := make(map[string]bool, len(base)+len(extra))
	for _, s := range base {
		m[s] = true
	}
	for _, s := range extra {
		if s = strings.TrimSpace(s); s != "" {
			m[s] = true
		}
	}
	return m
}
