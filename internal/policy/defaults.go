package policy

// Built-in patterns merged ahead of any pattern file. Protection applies to
// the entry, everything below it, and every ancestor of it, so only trees
// that must never lose a single file belong here.
var (
	BuiltinProtected = []string{
		"/bin",
		"/boot",
		"/dev",
		"/etc",
		"/lib",
		"/lib32",
		"/lib64",
		"/proc",
		"/sbin",
		"/sys",
		"/usr",
		"/var/lib",
	}

	BuiltinHoneypot = []string{}

	BuiltinRecycle = []string{
		"~/.ssh",
		"~/.gnupg",
		"~/.config",
	}
)
