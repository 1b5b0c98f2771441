package rawio

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/huangsam/spikewave/internal/contract"
	"github.com/huangsam/spikewave/schema"
)

// ReadClusterLabels reads a sorter label table (cluster_id<TAB>KSLabel) into id -> label.
func ReadClusterLabels(path string) (map[int]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", contract.ErrMissingInput, path)
		}
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return ParseClusterLabels(f)
}

// ParseClusterLabels parses the tab-separated label table. The label column is found by
// header name so extra columns are tolerated.
func ParseClusterLabels(r io.Reader) (map[int]string, error) {
	reader := csv.NewReader(r)
	reader.Comma = '\t'
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: cluster label header: %w", contract.ErrInsufficientData, err)
	}
	idCol, labelCol := -1, -1
	for i, name := range header {
		switch strings.TrimSpace(name) {
		case "cluster_id":
			idCol = i
		case "KSLabel", "group":
			labelCol = i
		}
	}
	if idCol < 0 || labelCol < 0 {
		return nil, fmt.Errorf("cluster label header %v lacks cluster_id or KSLabel", header)
	}

	labels := make(map[int]string)
	for {
		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if len(rec) <= max(idCol, labelCol) {
			continue
		}
		id, err := strconv.Atoi(strings.TrimSpace(rec[idCol]))
		if err != nil {
			return nil, fmt.Errorf("invalid cluster id %q: %w", rec[idCol], err)
		}
		labels[id] = strings.TrimSpace(rec[labelCol])
	}
	return labels, nil
}

// GoodClusters returns the sorted ids labelled good.
func GoodClusters(labels map[int]string) []int {
	good := make([]int, 0, len(labels))
	for id, label := range labels {
		if strings.EqualFold(label, schema.GoodLabel) {
			good = append(good, id)
		}
	}
	slices.Sort(good)
	return good
}
