package backup

import (
	"regexp"
	"strings"
	"time"

	"dbvault/internal/archive"

	"github.com/google/uuid"
)

const archivePrefix = "backup-"

var archiveNamePattern = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// ValidateArchiveName rejects anything that is not a plain file name made of
// letters, digits, dot, underscore and hyphen.
func ValidateArchiveName(name string) error {
	if name == "" {
		return NewValidationError("archive filename is required", nil)
	}
	if name == "." || name == ".." {
		return NewValidationError("invalid archive filename", nil).WithContext("filename", name)
	}
	if !archiveNamePattern.MatchString(name) {
		return NewValidationError("archive filename may only contain letters, digits, '.', '_' and '-'", nil).
			WithContext("filename", name)
	}
	return nil
}

// GenerateArchiveName returns backup-<UTC timestamp>-<8 hex>.tar.<ext>
func GenerateArchiveName(now time.Time, compression archive.Compression) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return archivePrefix + now.UTC().Format("20060102-150405") + "-" + suffix + compression.Extension()
}

// isArchiveFile reports whether a directory entry looks like an archive
func isArchiveFile(name string) bool {
	if strings.HasPrefix(name, ".") || ValidateArchiveName(name) != nil {
		return false
	}
	for _, ext := range archive.Extensions() {
		if strings.HasSuffix(name, ext) {
			return true
		}
	}
	return false
}
