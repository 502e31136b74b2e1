package ingest

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/y0ug/hashlookup/internal/hashlookup"
)

// ReadManifest reads precomputed MD5 digests. A .csv manifest holds
// "filename,md5[,size]" rows without header; any other file holds one digest
// per line. Entries without a size get Size -1. Invalid digests are logged
// and skipped.
func ReadManifest(path string, logger *logrus.Logger) ([]File, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open manifest: %v", err)
	}
	defer file.Close()

	if strings.EqualFold(filepath.Ext(path), ".csv") {
		return readCSVManifest(file, path, logger)
	}
	return readTxtManifest(file, path, logger)
}

func readTxtManifest(r io.Reader, path string, logger *logrus.Logger) ([]File, error) {
	var files []File

	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		md5, ok := manifestDigest(text, path, line, logger)
		if !ok {
			continue
		}
		files = append(files, manifestFile(md5, fmt.Sprintf("%s:%d", path, line), -1))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read manifest: %v", err)
	}
	return files, nil
}

func readCSVManifest(r io.Reader, path string, logger *logrus.Logger) ([]File, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	var files []File
	line := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("error reading CSV: %v", err)
		}
		line++
		if len(record) < 2 {
			continue
		}

		md5, ok := manifestDigest(record[1], path, line, logger)
		if !ok {
			continue
		}
		size := int64(-1)
		if len(record) > 2 {
			if n, err := strconv.ParseInt(strings.TrimSpace(record[2]), 10, 64); err == nil {
				size = n
			}
		}
		f := manifestFile(md5, record[0], size)
		f.Name = filepath.Base(record[0])
		files = append(files, f)
	}
	return files, nil
}

func manifestDigest(raw, path string, line int, logger *logrus.Logger) (string, bool) {
	digest, err := hashlookup.NormalizeDigest(raw)
	if err == nil && digest.Algorithm() != "md5" {
		err = fmt.Errorf("%s digest where md5 expected", digest.Algorithm())
	}
	if err != nil {
		logger.WithError(err).WithFields(logrus.Fields{
			"manifest": path,
			"line":     line,
		}).Warn("Skipping manifest entry")
		return "", false
	}
	return digest.String(), true
}

func manifestFile(md5, path string, size int64) File {
	return File{
		Name:    md5,
		Path:    path,
		Size:    size,
		Regular: true,
		MD5:     md5,
		Open: func() (io.ReadCloser, error) {
			return nil, fmt.Errorf("manifest entry %s has no content", path)
		},
	}
}
