/*
	stm32-devkit
	Copyright (c) 2024 stm32-devkit contributors.

	This program is free software: you can redistribute it and/or modify
	it under the terms of the GNU Affero General Public License as published
	by the Free Software Foundation, either version 3 of the License, or
	(at your option) any later version.

	This program is distributed in the hope that it will be useful,
	but WITHOUT ANY WARRANTY; without even the implied warranty of
	MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
	GNU Affero General Public License for more details.

	You should have received a copy of the GNU Affero General Public License
	along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

package deviceinfo

import (
	"fmt"

	"github.com/arduino/go-paths-helper"
	"github.com/sirupsen/logrus"
	"go.bug.st/downloader/v2"
)

// svdURLPattern points at the community CMSIS-SVD collection of peripheral
// register descriptions for STMicro parts.
const svdURLPattern = "https://raw.githubusercontent.com/cmsis-svd/cmsis-svd-data/main/data/STMicro/%s.svd"

// SVDFetcher downloads and caches the peripheral register description for a
// device. The whole subsystem is best effort: debugging works without an
// SVD file, so every failure degrades to "no file" instead of an error.
type SVDFetcher struct {
	cacheDir *paths.Path
}

// NewSVDFetcher caches SVD files under cacheDir, one per device name.
func NewSVDFetcher(cacheDir *paths.Path) *SVDFetcher {
	return &SVDFetcher{cacheDir: cacheDir}
}

// Fetch returns the cached or freshly downloaded SVD file for dev, trying
// the exact device name first and a generalized wildcard name second
// (STM32F407VG, then STM32F407, then STM32F40x). Returns nil on any
// failure and records the result on dev.SVDFile.
func (f *SVDFetcher) Fetch(dev *Device) *paths.Path {
	for _, name := range svdCandidates(dev.Name) {
		target := f.cacheDir.Join(name + ".svd")
		if target.Exist() {
			dev.SVDFile = target
			return target
		}
	}
	if err := f.cacheDir.MkdirAll(); err != nil {
		logrus.WithError(err).Debug("cannot create SVD cache directory")
		return nil
	}
	for _, name := range svdCandidates(dev.Name) {
		target := f.cacheDir.Join(name + ".svd")
		url := fmt.Sprintf(svdURLPattern, name)
		if err := fetchFile(target, url); err != nil {
			logrus.WithError(err).Debugf("SVD download failed for %s", name)
			continue
		}
		dev.SVDFile = target
		return target
	}
	return nil
}

// svdCandidates generalizes a part number towards the family-level SVD
// names used by the collection.
func svdCandidates(name string) []string {
	candidates := []string{name}
	if len(name) > 9 {
		candidates = append(candidates, name[:9])
	}
	if len(name) >= 9 {
		candidates = append(candidates, name[:8]+"x")
	}
	return candidates
}

func fetchFile(target *paths.Path, url string) error {
	d, err := downloader.Download(target.String(), url)
	if err != nil {
		return err
	}
	if err := d.Run(); err != nil {
		target.Remove()
		return fmt.Errorf("downloading %s: %w", url, err)
	}
	if d.Resp.StatusCode >= 400 && d.Resp.StatusCode <= 599 {
		target.Remove()
		return fmt.Errorf("downloading %s: %s", url, d.Resp.Status)
	}
	return nil
}
