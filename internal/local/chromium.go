package local

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MrSnakeDoc/marksync/internal/logger"
)

// Chromium stores timestamps as microseconds since 1601-01-01 UTC.
const windowsEpochOffsetMicros = 11644473600 * 1_000_000

// chromiumRootOrder is the positional order of the well-known root
// containers. Unknown root keys follow in lexical order.
var chromiumRootOrder = []string{"bookmark_bar", "other", "synced"}

type chromiumNode struct {
	Children     *[]*chromiumNode  `json:"children,omitempty"`
	DateAdded    string            `json:"date_added,omitempty"`
	DateLastUsed string            `json:"date_last_used,omitempty"`
	DateModified string            `json:"date_modified,omitempty"`
	GUID         string            `json:"guid,omitempty"`
	ID           string            `json:"id"`
	MetaInfo     map[string]string `json:"meta_info,omitempty"`
	Name         string            `json:"name"`
	Type         string            `json:"type"`
	URL          string            `json:"url,omitempty"`
}

// chromiumAttrs is kept in Node.Extra for nodes read from disk.
type chromiumAttrs struct {
	rootKey      string
	guid         string
	dateAdded    string
	dateLastUsed string
	dateModified string
	metaInfo     map[string]string
}

// chromiumFormat reads and writes a Chromium profile "Bookmarks" file.
// Top-level keys other than "roots" are written back unchanged, except the
// checksum which the browser recomputes.
type chromiumFormat struct {
	now func() time.Time
	log logger.Logger

	mu  sync.Mutex
	top map[string]json.RawMessage
}

func newChromiumFormat(log logger.Logger) *chromiumFormat {
	return &chromiumFormat{now: time.Now, log: log}
}

func (f *chromiumFormat) Name() string { return "chromium" }

func (f *chromiumFormat) Empty() []*Node { return nil }

func (f *chromiumFormat) Decode(data []byte) ([]*Node, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return nil, fmt.Errorf("invalid bookmarks json: %w", err)
	}
	rawRoots, ok := top["roots"]
	if !ok {
		return nil, errors.New("missing roots object")
	}
	var roots map[string]*chromiumNode
	if err := json.Unmarshal(rawRoots, &roots); err != nil {
		return nil, fmt.Errorf("invalid roots object: %w", err)
	}

	out := make([]*Node, 0, len(roots))
	for _, key := range orderedRootKeys(roots) {
		r := roots[key]
		if r == nil || r.Type != "folder" {
			continue
		}
		n := f.fromChromium(r)
		n.Extra.(*chromiumAttrs).rootKey = key
		out = append(out, n)
	}

	delete(top, "checksum")
	f.mu.Lock()
	f.top = top
	f.mu.Unlock()

	return out, nil
}

func orderedRootKeys(roots map[string]*chromiumNode) []string {
	keys := make([]string, 0, len(roots))
	for _, k := range chromiumRootOrder {
		if _, ok := roots[k]; ok {
			keys = append(keys, k)
		}
	}
	var rest []string
	for k := range roots {
		if !slices.Contains(chromiumRootOrder, k) {
			rest = append(rest, k)
		}
	}
	slices.Sort(rest)
	return append(keys, rest...)
}

func (f *chromiumFormat) fromChromium(c *chromiumNode) *Node {
	n := &Node{
		ID:     c.ID,
		Title:  c.Name,
		URL:    c.URL,
		Folder: c.Type == "folder",
		Extra: &chromiumAttrs{
			guid:         c.GUID,
			dateAdded:    c.DateAdded,
			dateLastUsed: c.DateLastUsed,
			dateModified: c.DateModified,
			metaInfo:     c.MetaInfo,
		},
	}
	if n.Folder && c.Children != nil {
		for _, child := range *c.Children {
			if child == nil {
				continue
			}
			// A bookmark without an address cannot be told apart from a folder.
			if child.Type != "folder" && child.URL == "" {
				f.log.Warn("dropping bookmark without url",
					logger.String("id", child.ID),
					logger.String("name", child.Name))
				continue
			}
			n.Children = append(n.Children, f.fromChromium(child))
		}
	}
	return n
}

func (f *chromiumFormat) Encode(roots []*Node) ([]byte, error) {
	now := chromeTime(f.now())

	encodedRoots := make(map[string]*chromiumNode, len(roots))
	for i, r := range roots {
		key := fmt.Sprintf("root_%d", i)
		if attrs, ok := r.Extra.(*chromiumAttrs); ok && attrs.rootKey != "" {
			key = attrs.rootKey
		} else if i < len(chromiumRootOrder) {
			key = chromiumRootOrder[i]
		}
		encodedRoots[key] = toChromium(r, now)
	}
	rawRoots, err := json.Marshal(encodedRoots)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	top := make(map[string]json.RawMessage, len(f.top)+1)
	for k, v := range f.top {
		top[k] = v
	}
	f.mu.Unlock()

	top["roots"] = rawRoots
	if _, ok := top["version"]; !ok {
		top["version"] = json.RawMessage("1")
	}
	return json.MarshalIndent(top, "", "   ")
}

func toChromium(n *Node, now string) *chromiumNode {
	c := &chromiumNode{ID: n.ID, Name: n.Title}
	if attrs, ok := n.Extra.(*chromiumAttrs); ok {
		c.GUID = attrs.guid
		c.DateAdded = attrs.dateAdded
		c.DateLastUsed = attrs.dateLastUsed
		c.DateModified = attrs.dateModified
		c.MetaInfo = attrs.metaInfo
	} else {
		c.GUID = uuid.NewString()
		c.DateAdded = now
		c.DateLastUsed = "0"
		if n.Folder {
			c.DateModified = now
		}
	}

	if !n.Folder {
		c.Type = "url"
		c.URL = n.URL
		return c
	}
	c.Type = "folder"
	children := make([]*chromiumNode, 0, len(n.Children))
	for _, child := range n.Children {
		children = append(children, toChromium(child, now))
	}
	c.Children = &children
	return c
}

func chromeTime(t time.Time) string {
	return strconv.FormatInt(t.UnixMicro()+windowsEpochOffsetMicros, 10)
}
