package bootstrap

import (
	"fmt"
	"strings"
)

// SourcesList renders an apt sources.list for the four pocket suites plus
// the partner repository. Every enabled deb line is immediately followed by
// its commented deb-src counterpart.
func SourcesList(mirror, partnerMirror, codename string, components []string) string {
	comps := strings.Join(components, " ")
	suites := []string{
		codename,
		codename + "-updates",
		codename + "-security",
		codename + "-backports",
	}

	var b strings.Builder
	for _, suite := range suites {
		fmt.Fprintf(&b, "deb %s %s %s\n", mirror, suite, comps)
		fmt.Fprintf(&b, "# deb-src %s %s %s\n", mirror, suite, comps)
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "deb %s %s partner\n", partnerMirror, codename)
	fmt.Fprintf(&b, "# deb-src %s %s partner\n", partnerMirror, codename)
	return b.String()
}

// HostsEntry renders the loopback alias line appended to /etc/hosts.
func HostsEntry(hostname string) string {
	return "127.0.1.1\t" + hostname + "\n"
}

// KeyboardConfig renders /etc/default/keyboard.
func KeyboardConfig(model, layout, variant, options string) string {
	var b strings.Builder
	b.WriteString("# KEYBOARD CONFIGURATION FILE\n")
	b.WriteString("\n")
	b.WriteString("# Consult the keyboard(5) manual page.\n")
	b.WriteString("\n")
	fmt.Fprintf(&b, "XKBMODEL=%q\n", model)
	fmt.Fprintf(&b, "XKBLAYOUT=%q\n", layout)
	fmt.Fprintf(&b, "XKBVARIANT=%q\n", variant)
	fmt.Fprintf(&b, "XKBOPTIONS=%q\n", options)
	b.WriteString("\n")
	b.WriteString("BACKSPACE=\"guess\"\n")
	return b.String()
}

// AptProxyConfig renders the transient apt proxy snippet written before
// network operations and removed afterwards.
func AptProxyConfig(host string, port int) string {
	return fmt.Sprintf("Acquire::http { Proxy \"http://%s:%d\"; };\n", host, port)
}
