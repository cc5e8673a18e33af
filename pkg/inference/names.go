package inference

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ClassNames maps class indices to labels.
type ClassNames map[int]string

func (n ClassNames) ClassName(id int) string {
	if name, ok := n[id]; ok {
		return name
	}
	return fmt.Sprintf("class_%d", id)
}

// LoadClassNames reads labels from a darknet style names file (one label per
// line) or from an Ultralytics dataset yaml with a "names" list or map. An empty
// path yields the COCO labels the stock YOLO weights are trained on.
func LoadClassNames(path string) (ClassNames, error) {
	if path == "" {
		return CocoClassNames(), nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read class names: %w", err)
	}

	var names ClassNames
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		names, err = parseYAMLNames(raw)
	default:
		names, err = parseLineNames(raw)
	}
	if err != nil {
		return nil, fmt.Errorf("parse class names %s: %w", path, err)
	}

	if len(names) == 0 {
		return nil, fmt.Errorf("class names file %s is empty", path)
	}

	return names, nil
}

func parseLineNames(raw []byte) (ClassNames, error) {
	names := ClassNames{}
	scanner := bufio.NewScanner(bytes.NewReader(raw))
	id := 0
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		names[id] = line
		id++
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return names, nil
}

func parseYAMLNames(raw []byte) (ClassNames, error) {
	var doc struct {
		Names yaml.Node `yaml:"names"`
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}

	switch doc.Names.Kind {
	case yaml.SequenceNode:
		var list []string
		if err := doc.Names.Decode(&list); err != nil {
			return nil, err
		}
		names := make(ClassNames, len(list))
		for i, name := range list {
			names[i] = name
		}
		return names, nil
	case yaml.MappingNode:
		var byID map[int]string
		if err := doc.Names.Decode(&byID); err != nil {
			return nil, err
		}
		return ClassNames(byID), nil
	default:
		return nil, fmt.Errorf("missing names list")
	}
}

var cocoLabels = []string{
	"person", "bicycle", "car", "motorcycle", "airplane", "bus", "train", "truck", "boat",
	"traffic light", "fire hydrant", "stop sign", "parking meter", "bench", "bird", "cat", "dog",
	"horse", "sheep", "cow", "elephant", "bear", "zebra", "giraffe", "backpack", "umbrella",
	"handbag", "tie", "suitcase", "frisbee", "skis", "snowboard", "sports ball", "kite",
	"baseball bat", "baseball glove", "skateboard", "surfboard", "tennis racket", "bottle",
	"wine glass", "cup", "fork", "knife", "spoon", "bowl", "banana", "apple", "sandwich", "orange",
	"broccoli", "carrot", "hot dog", "pizza", "donut", "cake", "chair", "couch", "potted plant",
	"bed", "dining table", "toilet", "tv", "laptop", "mouse", "remote", "keyboard", "cell phone",
	"microwave", "oven", "toaster", "sink", "refrigerator", "book", "clock", "vase", "scissors",
	"teddy bear", "hair drier", "toothbrush",
}

func CocoClassNames() ClassNames {
	names := make(ClassNames, len(cocoLabels))
	for i, label := range cocoLabels {
		names[i] = label
	}
	return names
}
