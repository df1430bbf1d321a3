// Package dataset provides sample loaders that satisfy feed.SampleLoader.
package dataset

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/streamsim/batchfeed/feed"
)

// CIFAR-10 binary layout: one label byte followed by a 32x32 image stored
// channel-major (1024 red, 1024 green, 1024 blue bytes).
const (
	cifarSide      = 32
	cifarChannels  = 3
	cifarPixels    = cifarSide * cifarSide
	cifarRecordLen = 1 + cifarPixels*cifarChannels
	cifarClasses   = 10

	cifarTrainGlob  = "data_batch_*.bin"
	cifarPickleGlob = "data_batch_[0-9]"
	cifarTestFile   = "test_batch.bin"
	cifarMetaFile   = "batches.meta.txt"
)

// CIFAR10 loads the binary distribution of CIFAR-10 (cifar-10-binary.tar.gz)
// from a directory; the Python pickle distribution is not read.
// Training samples come from data_batch_*.bin in name order; held-out samples
// come from test_batch.bin when present. Images are returned height x width x
// channel with byte values in [0, 255].
type CIFAR10 struct {
	// LabelNames replaces class indices with the names in batches.meta.txt.
	LabelNames bool
}

var _ feed.SampleLoader = CIFAR10{}

// Load reads every batch file under dir.
func (c CIFAR10) Load(dir string) ([]feed.Sample, []feed.Sample, error) {
	trainFiles, err := filepath.Glob(filepath.Join(dir, cifarTrainGlob))
	if err != nil {
		return nil, nil, err
	}
	if len(trainFiles) == 0 {
		if pickled, _ := filepath.Glob(filepath.Join(dir, cifarPickleGlob)); len(pickled) > 0 {
			return nil, nil, fmt.Errorf("%s holds the python pickle batches; download cifar-10-binary.tar.gz instead", dir)
		}
		return nil, nil, fmt.Errorf("no %s files in %s", cifarTrainGlob, dir)
	}
	sort.Strings(trainFiles)

	var names []string
	if c.LabelNames {
		names, err = readLabelNames(filepath.Join(dir, cifarMetaFile))
		if err != nil {
			return nil, nil, err
		}
	}

	var train []feed.Sample
	for _, f := range trainFiles {
		samples, err := readCIFARFile(f, names)
		if err != nil {
			return nil, nil, err
		}
		train = append(train, samples...)
	}

	testPath := filepath.Join(dir, cifarTestFile)
	heldOut, err := readCIFARFile(testPath, names)
	if errors.Is(err, os.ErrNotExist) {
		logrus.Warnf("CIFAR-10 held-out file %s not found; using training batches only", testPath)
		heldOut = nil
	} else if err != nil {
		return nil, nil, err
	}

	logrus.Debugf("Loaded CIFAR-10 from %s: %d training, %d held-out samples", dir, len(train), len(heldOut))
	return train, heldOut, nil
}

func readCIFARFile(path string, names []string) ([]feed.Sample, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	samples, err := DecodeCIFAR(bufio.NewReader(f), names)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return samples, nil
}

// DecodeCIFAR decodes consecutive CIFAR-10 binary records from r.
// When names is non-empty, labels are the corresponding class names.
func DecodeCIFAR(r io.Reader, names []string) ([]feed.Sample, error) {
	classes := cifarClasses
	if len(names) > 0 {
		classes = len(names)
	}
	var samples []feed.Sample
	buf := make([]byte, cifarRecordLen)
	for i := 0; ; i++ {
		if _, err := io.ReadFull(r, buf); err != nil {
			if errors.Is(err, io.EOF) {
				return samples, nil
			}
			if errors.Is(err, io.ErrUnexpectedEOF) {
				return nil, fmt.Errorf("record %d truncated", i)
			}
			return nil, err
		}
		label := int(buf[0])
		if label >= classes {
			return nil, fmt.Errorf("record %d: label %d out of range [0, %d)", i, label, classes)
		}

		values := make([]float64, cifarRecordLen-1)
		pixels := buf[1:]
		for p := 0; p < cifarPixels; p++ {
			for ch := 0; ch < cifarChannels; ch++ {
				values[p*cifarChannels+ch] = float64(pixels[ch*cifarPixels+p])
			}
		}
		s := feed.Sample{
			Data:  feed.Tensor{Shape: []int{cifarSide, cifarSide, cifarChannels}, Values: values},
			Label: feed.IndexLabel(label),
		}
		if len(names) > 0 {
			s.Label = feed.NamedLabel(names[label])
		}
		samples = append(samples, s)
	}
}

func readLabelNames(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading label names: %w", err)
	}
	var names []string
	for _, line := range strings.Split(string(data), "\n") {
		if name := strings.TrimSpace(line); name != "" {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("%s lists no label names", path)
	}
	return names, nil
}
