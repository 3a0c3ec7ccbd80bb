package local

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// yamlFile is the on-disk shape of a YAML bookmark tree:
//
//	roots:
//	  - title: Bookmarks bar
//	    children:
//	      - title: Go
//	        url: https://go.dev
type yamlFile struct {
	Roots []*yamlNode `yaml:"roots"`
}

type yamlNode struct {
	Title    string      `yaml:"title"`
	URL      string      `yaml:"url,omitempty"`
	Children []*yamlNode `yaml:"children,omitempty"`
}

// yamlFormat keeps a bookmark tree in a hand-editable YAML file. Entries
// without a url are folders. Ids are not persisted.
type yamlFormat struct{}

func (yamlFormat) Name() string { return "yaml" }

func (yamlFormat) Empty() []*Node {
	return []*Node{
		{Title: "Bookmarks bar", Folder: true},
		{Title: "Other bookmarks", Folder: true},
		{Title: "Mobile bookmarks", Folder: true},
	}
}

func (yamlFormat) Decode(data []byte) ([]*Node, error) {
	var file yamlFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse bookmarks yaml: %w", err)
	}

	roots := make([]*Node, 0, len(file.Roots))
	for i, r := range file.Roots {
		if r == nil {
			return nil, fmt.Errorf("root %d is empty", i)
		}
		if r.URL != "" {
			return nil, fmt.Errorf("root %d (%q) must be a folder", i, r.Title)
		}
		roots = append(roots, fromYAML(r))
	}
	return roots, nil
}

func fromYAML(y *yamlNode) *Node {
	n := &Node{Title: y.Title, URL: y.URL, Folder: y.URL == ""}
	for _, c := range y.Children {
		if c == nil {
			continue
		}
		n.Children = append(n.Children, fromYAML(c))
	}
	return n
}

func (yamlFormat) Encode(roots []*Node) ([]byte, error) {
	file := yamlFile{Roots: make([]*yamlNode, 0, len(roots))}
	for _, r := range roots {
		file.Roots = append(file.Roots, toYAML(r))
	}
	return yaml.Marshal(&file)
}

func toYAML(n *Node) *yamlNode {
	y := &yamlNode{Title: n.Title}
	if !n.Folder {
		y.URL = n.URL
		return y
	}
	for _, c := range n.Children {
		y.Children = append(y.Children, toYAML(c))
	}
	return y
}
