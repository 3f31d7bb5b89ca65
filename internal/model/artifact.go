// Package model loads, runs, and unloads quantized on-device models under a
// strict one-resident-model discipline, gated by the thermal monitor and
// protected by retries and a circuit breaker.
package model

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/nku-health/nku-screen/internal/domain"
)

// onnxMagic is the protobuf header every ONNX artifact starts with: field 1
// (ir_version) as a varint. Used as a cheap corruption probe before any
// memory mapping happens.
var onnxMagic = []byte{0x08}

// ArtifactLocator resolves model files from an ordered candidate directory
// list: the application-private directory first, then the shared fallback.
type ArtifactLocator struct {
	searchDirs []string
	minBytes   int64
	log        *logrus.Logger
}

// NewArtifactLocator builds a locator over the configured directories.
func NewArtifactLocator(searchDirs []string, minBytes int64, log *logrus.Logger) *ArtifactLocator {
	return &ArtifactLocator{searchDirs: searchDirs, minBytes: minBytes, log: log}
}

// Resolve returns the first candidate path whose artifact passes the header
// and minimum-size checks. A missing or corrupt artifact in an earlier
// directory never masks a valid one later in the list.
func (l *ArtifactLocator) Resolve(name string) (string, error) {
	var lastErr error
	for _, dir := range l.searchDirs {
		path := filepath.Join(dir, name)
		if err := l.validate(path); err != nil {
			if !os.IsNotExist(err) {
				l.log.WithError(err).WithField("path", path).Warn("Model artifact candidate rejected")
			}
			lastErr = err
			continue
		}
		l.log.WithField("path", path).Info("Model artifact resolved")
		return path, nil
	}
	if lastErr == nil {
		lastErr = os.ErrNotExist
	}
	return "", fmt.Errorf("%w: artifact %q not found in %d locations: %v",
		domain.ErrModelUnavailable, name, len(l.searchDirs), lastErr)
}

func (l *ArtifactLocator) validate(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.Size() < l.minBytes {
		return fmt.Errorf("artifact %s is %d bytes, below the %d byte minimum", path, info.Size(), l.minBytes)
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	header := make([]byte, len(onnxMagic))
	if _, err := f.Read(header); err != nil {
		return fmt.Errorf("reading artifact header: %w", err)
	}
	if !bytes.Equal(header, onnxMagic) {
		return fmt.Errorf("artifact %s has an unrecognized header signature", path)
	}
	return nil
}
