package provenance

import (
	"bufio"
	"errors"
	"log/slog"
	"os"
	"slices"
	"strings"
)

// DefaultSoftwareFile is where the container build records software versions.
const DefaultSoftwareFile = "/software_provenance.txt"

// SoftwareVersions reads "name;url" lines from path and returns the entries
// whose name is in names. A missing file, malformed lines or missing names
// are logged and never returned as an error.
func SoftwareVersions(path string, logger *slog.Logger, names ...string) map[string]string {
	if logger == nil {
		logger = slog.Default()
	}
	versions := make(map[string]string, len(names))

	f, err := os.Open(path) // #nosec G304 - path comes from configuration
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logger.Info("software version file does not exist",
				slog.String("path", path),
				slog.Any("names", names),
			)
		} else {
			logger.Warn("could not read software version file",
				slog.String("path", path),
				slog.String("error", err.Error()),
			)
		}
		return versions
	}
	defer func() { _ = f.Close() }()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		name, url, ok := strings.Cut(line, ";")
		if !ok {
			logger.Warn("malformed software version line", slog.String("line", line))
			continue
		}
		name = strings.TrimSpace(name)
		if slices.Contains(names, name) {
			versions[name] = strings.TrimSpace(url)
		}
	}
	if err := scanner.Err(); err != nil {
		logger.Warn("could not read software version file",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
	}

	if len(versions) != len(names) {
		logger.Info("software versions incomplete",
			slog.Any("requested", names),
			slog.Int("found", len(versions)),
		)
	}
	return versions
}
