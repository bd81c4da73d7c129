package bootstrap

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/nace/zimage/internal/system"
)

// EnableLocales uncomments the requested locales in a locale.gen style
// file. A commented line matches when it begins with #, optional
// whitespace, then <locale>.UTF-8; the trailing content is preserved.
// Already-uncommented lines no longer match, so re-running is a no-op, and
// lines for other locales are left untouched.
func EnableLocales(path string, locales []string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: locale file %s", system.ErrNotFound, path)
		}
		return fmt.Errorf("%w: read locale file: %v", system.ErrIO, err)
	}

	patterns := make([]*regexp.Regexp, 0, len(locales))
	for _, locale := range locales {
		patterns = append(patterns,
			regexp.MustCompile(`^#\s*(`+regexp.QuoteMeta(locale)+`\.UTF-8\b.*)$`))
	}

	lines := strings.Split(string(data), "\n")
	for i, line := range lines {
		for _, re := range patterns {
			if m := re.FindStringSubmatch(line); m != nil {
				lines[i] = m[1]
				break
			}
		}
	}

	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")), 0644); err != nil {
		return fmt.Errorf("%w: write locale file: %v", system.ErrIO, err)
	}
	return nil
}
