package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ReadFileContent reads file content as string
func ReadFileContent(filePath string) (string, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}
	return string(data), nil
}

// GetMimeType returns the MIME type based on file extension
func GetMimeType(filePath string) string {
	ext := strings.ToLower(filepath.Ext(filePath))
	mimeTypes := map[string]string{
		".png":  "image/png",
		".jpg":  "image/jpeg",
		".jpeg": "image/jpeg",
		".gif":  "image/gif",
		".webp": "image/webp",
		".bmp":  "image/bmp",
		".m4a":  "audio/mp4",
		".mp3":  "audio/mpeg",
		".wav":  "audio/wav",
		".webm": "audio/webm",
		".ogg":  "audio/ogg",
		".flac": "audio/flac",
	}

	if mime, ok := mimeTypes[ext]; ok {
		return mime
	}
	return "application/octet-stream"
}

// IsImageFile checks if the file is an image
func IsImageFile(filePath string) bool {
	return strings.HasPrefix(GetMimeType(filePath), "image/")
}

// IsAudioFile checks if the file is a recording the transcription API accepts
func IsAudioFile(filePath string) bool {
	return strings.HasPrefix(GetMimeType(filePath), "audio/")
}

// FormatFileSize formats file size in human-readable format
func FormatFileSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
