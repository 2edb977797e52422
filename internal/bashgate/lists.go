package bashgate

// DefaultSafe lists binaries that only touch local files and text.
// Options that make one of them start another program are caught by
// runsPrograms. sed is absent because its e and w commands hide inside
// script text.
var DefaultSafe = []string{
	// inspection
	"cat", "head", "tail", "less", "more", "file", "stat", "wc", "od", "xxd", "strings",
	"ls", "tree", "find", "du", "df", "pwd", "realpath", "dirname", "basename", "readlink",
	// search and text
	"grep", "egrep", "fgrep", "rg", "ag", "awk", "cut", "sort", "uniq", "tr",
	"diff", "comm", "jq", "yq", "nl", "paste", "join", "column", "fold", "rev", "tac",
	"md5sum", "sha1sum", "sha256sum", "base64",
	// file manipulation
	"cp", "mv", "mkdir", "rmdir", "touch", "rm", "ln", "chmod", "tee",
	"tar", "zip", "unzip", "gzip", "gunzip",
	// shell builtins and trivia
	"cd", "echo", "printf", "true", "false", "test", "[", "date", "sleep", "seq",
	"whoami", "id", "uname", "which", "type",
}

// DefaultNetwork lists binaries that can reach another host.
var DefaultNetwork = []string{
	"curl", "wget", "nc", "ncat", "netcat", "telnet", "socat",
	"ssh", "scp", "sftp", "rsync", "ftp",
	"ping", "dig", "nslookup", "host",
	"mail", "sendmail", "mutt",
	"gh", "aws", "gcloud", "az",
}

// Interpreters run arbitrary code from their arguments or stdin.
var Interpreters = []string{
	"sh", "bash", "zsh", "fish", "dash", "ksh",
	"python", "python3", "perl", "ruby", "node", "deno", "bun", "php",
}

var wrappers = map[string]bool{
	"sudo":  true,
	"env":   true,
	"time":  true,
	"nice":  true,
	"nohup": true,
}

// wrapper flags that consume the next word
var wrapperArgFlags = map[string]bool{
	"-u": true, // sudo -u user
	"-g": true, // sudo -g group
	"-n": true, // nice -n 10
}

var gitLocal = map[string]bool{
	"status": true, "diff": true, "log": true, "show": true, "add": true,
	"commit": true, "branch": true, "checkout": true, "switch": true,
	"restore": true, "reset": true, "rebase": true, "merge": true,
	"stash": true, "tag": true, "rev-parse": true, "ls-files": true,
	"blame": true, "config": true, "init": true, "worktree": true,
	"cherry-pick": true, "reflog": true, "describe": true, "shortlog": true,
	"clean": true, "grep": true, "mv": true, "rm": true, "bisect": true,
}

var gitConfigReads = map[string]bool{
	"--get": true, "--get-all": true, "--get-regexp": true, "--list": true, "-l": true,
}

var gitNetwork = map[string]bool{
	"push": true, "pull": true, "fetch": true, "clone": true,
	"ls-remote": true, "submodule": true, "send-email": true, "request-pull": true,
}
