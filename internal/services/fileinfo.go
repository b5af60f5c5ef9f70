package services

import (
	"path"
	"strings"

	"github.com/amaumene/godebrid/internal/constants"
)

// fileInfo recognizes playable and refused content by filename.
type fileInfo struct {
	videoExtSet   map[string]bool
	archiveExtSet map[string]bool
}

func newFileInfo() *fileInfo {
	return &fileInfo{
		videoExtSet:   extensionSet(constants.VideoExtensions),
		archiveExtSet: extensionSet(constants.ArchiveExtensions),
	}
}

func extensionSet(extensions []string) map[string]bool {
	set := make(map[string]bool, len(extensions))
	for _, ext := range extensions {
		set[ext] = true
	}
	return set
}

// isVideoFile checks if a filename has a recognized video extension.
func (fi *fileInfo) isVideoFile(filename string) bool {
	return fi.videoExtSet[strings.ToLower(path.Ext(filename))]
}

// isArchiveFile checks if a filename has a refused archive extension.
func (fi *fileInfo) isArchiveFile(filename string) bool {
	return fi.archiveExtSet[strings.ToLower(path.Ext(filename))]
}
