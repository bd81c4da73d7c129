package bootstrap

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSourcesListPocketsAndPartner(t *testing.T) {
	out := SourcesList(
		"http://example.test/ubuntu/",
		"http://partner.example.test/ubuntu",
		"jammy",
		[]string{"main", "restricted", "universe", "multiverse"},
	)

	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")

	var enabled, sources []string
	for _, line := range lines {
		switch {
		case strings.HasPrefix(line, "deb "):
			enabled = append(enabled, line)
		case strings.HasPrefix(line, "# deb-src "):
			sources = append(sources, line)
		}
	}

	// Four pocket lines plus the partner line, each with a commented
	// deb-src counterpart.
	require.Len(t, enabled, 5)
	require.Len(t, sources, 5)

	comps := "main restricted universe multiverse"
	require.Equal(t, "deb http://example.test/ubuntu/ jammy "+comps, enabled[0])
	require.Equal(t, "deb http://example.test/ubuntu/ jammy-updates "+comps, enabled[1])
	require.Equal(t, "deb http://example.test/ubuntu/ jammy-security "+comps, enabled[2])
	require.Equal(t, "deb http://example.test/ubuntu/ jammy-backports "+comps, enabled[3])
	require.Equal(t, "deb http://partner.example.test/ubuntu jammy partner", enabled[4])

	// Every enabled line is immediately followed by its commented deb-src
	// counterpart.
	for i, line := range lines {
		if strings.HasPrefix(line, "deb ") {
			require.Less(t, i+1, len(lines))
			require.Equal(t, "# deb-src "+strings.TrimPrefix(line, "deb "), lines[i+1])
		}
	}
}

func TestHostsEntry(t *testing.T) {
	require.Equal(t, "127.0.1.1\tcloudimg\n", HostsEntry("cloudimg"))
}

func TestKeyboardConfig(t *testing.T) {
	out := KeyboardConfig("pc105", "us", "", "ctrl:nocaps")

	require.Contains(t, out, "XKBMODEL=\"pc105\"\n")
	require.Contains(t, out, "XKBLAYOUT=\"us\"\n")
	require.Contains(t, out, "XKBVARIANT=\"\"\n")
	require.Contains(t, out, "XKBOPTIONS=\"ctrl:nocaps\"\n")
	require.Contains(t, out, "BACKSPACE=\"guess\"\n")
}

func TestAptProxyConfig(t *testing.T) {
	require.Equal(t,
		"Acquire::http { Proxy \"http://apt-cacher.internal:3142\"; };\n",
		AptProxyConfig("apt-cacher.internal", 3142))
}
