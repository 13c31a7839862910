// Copyright 2023 NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package downloader

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog/log"
	"github.com/schollz/progressbar/v3"
)

// DefaultURL is the location of the tab-delimited English-French sentence
// pairs from the Tatoeba project, as distributed by manythings.org.
const DefaultURL = "http://www.manythings.org/anki/fra-eng.zip"

// ErrNoCorpus is returned when the archive does not contain any corpus file.
var ErrNoCorpus = errors.New("no corpus file found in archive")

// progressOutput is where the progress bar is drawn.
var progressOutput io.Writer = os.Stderr

// Download downloads the zip archive at the given URL into dir and extracts
// the corpus files it contains. It returns the path of the extracted corpus.
//
// If the directory doesn't yet exist, it is created setting the permissions
// bits to 0755 (rwxr-xr-x).
//
// By setting the flag overwriteIfExists to false, an archive or a corpus file
// that already exists is kept and considered as already successfully
// downloaded. If the flag is otherwise set to true, existing files are
// forcefully downloaded and overwritten.
func Download(ctx context.Context, rawURL, dir string, overwriteIfExists bool) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid URL %#v: %w", rawURL, err)
	}
	name := path.Base(u.Path)
	if name == "." || name == "/" {
		return "", fmt.Errorf("unable to infer an archive name from %#v", rawURL)
	}
	d := downloader{
		url:              rawURL,
		dir:              dir,
		archivePath:      filepath.Join(dir, name),
		overwriteIfExist: overwriteIfExists,
	}
	if err = d.ensureDir(); err != nil {
		return "", err
	}
	if err = d.downloadArchive(ctx); err != nil {
		return "", err
	}
	return d.extract()
}

// downloader is a helper struct for downloading a corpus archive.
type downloader struct {
	url              string
	dir              string
	archivePath      string
	overwriteIfExist bool
}

func (d downloader) ensureDir() error {
	if info, err := os.Stat(d.dir); err == nil && info.IsDir() {
		return nil
	}
	if err := os.MkdirAll(d.dir, 0755); err != nil {
		return fmt.Errorf("error creating directory %#v: %w", d.dir, err)
	}
	return nil
}

func (d downloader) exists(filename string) bool {
	info, err := os.Stat(filename)
	return !d.overwriteIfExist && err == nil && !info.IsDir()
}

func (d downloader) downloadArchive(ctx context.Context) (err error) {
	if d.exists(d.archivePath) {
		log.Debug().Str("file", d.archivePath).Msg("archive already exists, skipping download")
		return nil
	}
	log.Debug().Str("url", d.url).Str("destination", d.archivePath).Msg("downloading")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.url, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("error getting %#v: %w", d.url, err)
	}
	defer func() {
		if e := resp.Body.Close(); e != nil && err == nil {
			err = fmt.Errorf("error closing %#v response body: %w", d.url, e)
		}
	}()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%#v responded with %s", d.url, resp.Status)
	}
	if resp.ContentLength >= 0 {
		log.Info().Msgf("Downloading %s (%s)", d.url, humanize.Bytes(uint64(resp.ContentLength)))
	}

	f, err := os.Create(d.archivePath)
	if err != nil {
		return fmt.Errorf("error creating file %#v: %w", d.archivePath, err)
	}
	defer func() {
		if e := f.Close(); e != nil && err == nil {
			err = fmt.Errorf("error closing file %#v: %w", d.archivePath, e)
		}
	}()

	bar := progressbar.NewOptions64(resp.ContentLength,
		progressbar.OptionSetDescription(path.Base(d.archivePath)),
		progressbar.OptionSetWriter(progressOutput),
		progressbar.OptionShowBytes(true),
		progressbar.OptionSetTheme(progressbar.Theme{Saucer: "=", SaucerHead: ">", SaucerPadding: " ", BarStart: "[", BarEnd: "]"}),
		progressbar.OptionClearOnFinish(),
	)
	defer func() { _ = bar.Close() }()

	n, err := io.Copy(io.MultiWriter(f, bar), resp.Body)
	if err != nil {
		return fmt.Errorf("error downloading %#v to %#v: %w", d.url, d.archivePath, err)
	}
	log.Debug().Msgf("Downloaded %s to %s", humanize.Bytes(uint64(n)), d.archivePath)
	return nil
}

// isCorpusFile reports whether the archive entry is a corpus file. Text files
// whose name starts with an underscore hold the archive notes.
func isCorpusFile(name string) bool {
	base := path.Base(name)
	return strings.HasSuffix(base, ".txt") && !strings.HasPrefix(base, "_")
}

// extract writes the corpus files of the archive into the directory, and
// returns the path of the first one.
func (d downloader) extract() (string, error) {
	r, err := zip.OpenReader(d.archivePath)
	if err != nil {
		return "", fmt.Errorf("error opening archive %#v: %w", d.archivePath, err)
	}
	defer func() {
		if e := r.Close(); e != nil {
			log.Warn().Err(e).Msgf("failed to close archive %#v", d.archivePath)
		}
	}()

	var corpus string
	for _, zf := range r.File {
		if zf.FileInfo().IsDir() || !isCorpusFile(zf.Name) {
			continue
		}
		dest := filepath.Join(d.dir, path.Base(zf.Name))
		if corpus == "" {
			corpus = dest
		}
		if d.exists(dest) {
			log.Debug().Str("file", dest).Msg("corpus file already exists, skipping extraction")
			continue
		}
		if err = extractFile(zf, dest); err != nil {
			return "", err
		}
		log.Info().Msgf("Extracted %s (%s)", dest, humanize.Bytes(zf.UncompressedSize64))
	}
	if corpus == "" {
		return "", fmt.Errorf("%w: %s", ErrNoCorpus, d.archivePath)
	}
	return corpus, nil
}

func extractFile(zf *zip.File, dest string) (err error) {
	rc, err := zf.Open()
	if err != nil {
		return fmt.Errorf("error opening %#v: %w", zf.Name, err)
	}
	defer func() { _ = rc.Close() }()

	f, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("error creating file %#v: %w", dest, err)
	}
	defer func() {
		if e := f.Close(); e != nil && err == nil {
			err = fmt.Errorf("error closing file %#v: %w", dest, e)
		}
	}()

	if _, err = io.Copy(f, rc); err != nil {
		return fmt.Errorf("error extracting %#v: %w", zf.Name, err)
	}
	return nil
}
