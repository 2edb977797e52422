package bashgate

import "strings"

// awkRunners are awk builtins and syntax that spawn processes or open
// sockets. A bare "|" covers both print-to-pipe and gawk's coprocess "|&".
var awkRunners = []string{"system", "getline", "|", "/inet"}

var awkFamily = map[string]bool{"awk": true, "gawk": true, "mawk": true, "nawk": true}

// awk flags that pull program text from somewhere the classifier cannot see
var awkSourceFlags = map[string]bool{
	"-f": true, "-E": true, "-i": true, "-l": true,
	"--file": true, "--exec": true, "--include": true, "--load": true,
}

// execLongFlags lists options that make an otherwise local tool run
// another program.
var execLongFlags = map[string][]string{
	"rg":   {"--pre"},
	"sort": {"--compress-program"},
	"tar": {
		"--to-command", "--checkpoint-action", "--use-compress-program",
		"--info-script", "--new-volume-script", "--rsh-command", "--rmt-command",
	},
	"zip": {"--unzip-command"},
}

// execShortFlags lists single-letter options, possibly clustered, with
// the same effect.
var execShortFlags = map[string]string{
	"tar": "IF",
}

// runsPrograms reports why a command on the safe list would still start
// another program. It returns "" when the arguments keep it local.
func runsPrograms(cmd, text string, args []string) string {
	switch {
	case cmd == "find" && hasExec(args):
		return "find executes commands"
	case awkFamily[cmd]:
		return awkReason(cmd, text, args)
	case cmd == "zip":
		for _, a := range args {
			if strings.HasPrefix(a, "-TT") {
				return "zip -TT runs a test command"
			}
		}
	}

	for _, a := range args {
		if a == "--" {
			break
		}
		for _, flag := range execLongFlags[cmd] {
			if longFlagMatches(a, flag) {
				return cmd + " " + flag + " runs another program"
			}
		}
	}
	if short := execShortFlags[cmd]; short != "" {
		for i, a := range args {
			if a == "--" {
				break
			}
			// tar accepts a leading option cluster without the dash
			cluster := strings.HasPrefix(a, "-") && !strings.HasPrefix(a, "--")
			if i == 0 && cmd == "tar" && !strings.HasPrefix(a, "-") {
				cluster = true
			}
			if cluster && strings.ContainsAny(a, short) {
				return cmd + " option runs another program: " + a
			}
		}
	}
	return ""
}

func awkReason(cmd, text string, args []string) string {
	for _, a := range args {
		name, _, _ := strings.Cut(a, "=")
		if awkSourceFlags[name] {
			return cmd + " program loaded from " + a
		}
	}
	// Program text may contain spaces and is split across words, so the
	// whole segment is scanned.
	for _, marker := range awkRunners {
		if strings.Contains(text, marker) {
			return cmd + " script can run commands: " + marker
		}
	}
	return ""
}

// longFlagMatches accepts the exact flag, its "=value" form, and the
// unambiguous abbreviations getopt_long allows.
func longFlagMatches(arg, flag string) bool {
	if !strings.HasPrefix(arg, "--") {
		return false
	}
	name, _, _ := strings.Cut(arg, "=")
	if len(name) <= 3 {
		return name == flag
	}
	return strings.HasPrefix(flag, name)
}

func hasExec(args []string) bool {
	for _, a := range args {
		switch a {
		case "-exec", "-execdir", "-ok", "-okdir":
			return true
		}
	}
	return false
}
