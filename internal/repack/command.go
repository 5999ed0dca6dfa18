package repack

import (
	"errors"
	"strings"
)

// Placeholders recognized in command templates.
const (
	PlaceholderSourceFile        = "{source_file}"
	PlaceholderDestinationFolder = "{destination_folder}"
	PlaceholderDestinationFile   = "{destination_file}"
	PlaceholderMembers           = "{members}"
)

// Commands holds the argument-vector templates for the external tool.
//
// Placeholders are substituted inside each element, so "-o{destination_folder}"
// works, and {members} expands to one element per workspace member. A
// decompress template without {source_file} gets the archive appended; a
// compress template without {members} gets the members appended. Nothing is
// passed through a shell, so paths containing spaces are safe.
type Commands struct {
	Decompress []string
	Compress   []string
}

// DefaultCommands returns the 7-Zip invocations.
func DefaultCommands() Commands {
	return Commands{
		Decompress: []string{"7z", "e", "-o" + PlaceholderDestinationFolder, PlaceholderSourceFile},
		Compress:   []string{"7z", "a", PlaceholderDestinationFile, PlaceholderMembers},
	}
}

// ParseCommand splits a command line template on whitespace. Splitting happens
// before substitution, so substituted paths are never split.
func ParseCommand(line string) []string {
	return strings.Fields(line)
}

var errEmptyTemplate = errors.New("empty command template")

// DecompressArgs returns the argv extracting archive into folder.
func (c Commands) DecompressArgs(archive, folder string) ([]string, error) {
	if len(c.Decompress) == 0 {
		return nil, errEmptyTemplate
	}
	replacer := strings.NewReplacer(
		PlaceholderSourceFile, archive,
		PlaceholderDestinationFolder, folder,
	)

	argv := make([]string, 0, len(c.Decompress)+1)
	hasSource := false
	for _, arg := range c.Decompress {
		if strings.Contains(arg, PlaceholderSourceFile) {
			hasSource = true
		}
		argv = append(argv, replacer.Replace(arg))
	}
	if !hasSource {
		argv = append(argv, archive)
	}
	return argv, nil
}

// CompressArgs returns the argv packing members into archive.
func (c Commands) CompressArgs(archive string, members []string) ([]string, error) {
	if len(c.Compress) == 0 {
		return nil, errEmptyTemplate
	}
	replacer := strings.NewReplacer(PlaceholderDestinationFile, archive)

	argv := make([]string, 0, len(c.Compress)+len(members))
	hasMembers := false
	for _, arg := range c.Compress {
		if arg == PlaceholderMembers {
			hasMembers = true
			argv = append(argv, members...)
			continue
		}
		argv = append(argv, replacer.Replace(arg))
	}
	if !hasMembers {
		argv = append(argv, members...)
	}
	return argv, nil
}
