package infra

import (
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"

	"github.com/Istamjon/Expressbot/internal/config"
)

// GetWorkDir returns the bot's dot directory joined with path, creating it
// when missing.
func GetWorkDir(path ...string) string {
	parts := append([]string{config.Get().DotPath}, path...)
	workDir := filepath.Join(parts...)
	if err := os.MkdirAll(workDir, os.ModePerm); err != nil {
		log.Fatalln(err)
	}
	return workDir
}
