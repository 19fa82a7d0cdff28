package infrastructure

import "strings"

// shellSpecials are the characters that require quoting when a command
// line is reproduced in a log message.
const shellSpecials = " \t\n\r'\"$`\\!*?[](){}|;<>&~#%"

// ShellEscape quotes a string so a logged command line can be pasted
// back into a shell. exec.Command passes arguments verbatim, so this
// matters only for display.
func ShellEscape(s string) string {
	if s == "" {
		return "''"
	}
	if !strings.ContainsAny(s, shellSpecials) {
		return s
	}

	// Single-quote the whole string. An embedded single quote closes
	// the quoting, emits a double-quoted quote, and reopens it.
	var b strings.Builder
	b.WriteByte('\'')
	for _, r := range s {
		if r == '\'' {
			b.WriteString(`'"'"'`)
			continue
		}
		b.WriteRune(r)
	}
	b.WriteByte('\'')
	return b.String()
}

// ShellEscapeCommand renders a binary and its arguments as a single
// shell-safe string for logging.
func ShellEscapeCommand(binary string, args ...string) string {
	parts := make([]string, 0, len(args)+1)
	parts = append(parts, ShellEscape(binary))
	for _, arg := range args {
		parts = append(parts, ShellEscape(arg))
	}
	return strings.Join(parts, " ")
}
