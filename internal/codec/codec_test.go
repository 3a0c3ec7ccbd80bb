package codec

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/MrSnakeDoc/marksync/internal/domain"
)

func sampleForest() domain.Forest {
	return domain.Forest{
		{
			ID:    "1",
			Title: "Bookmarks bar",
			Children: []*domain.BookmarkNode{
				{ID: "10", Title: "A", URL: "http://a"},
				{ID: "11", Title: "Dev", Children: []*domain.BookmarkNode{
					{ID: "12", Title: "Go", URL: "https://go.dev"},
					{ID: "13", Title: "Empty", Children: []*domain.BookmarkNode{}},
					{ID: "14", Title: "", URL: "https://example.com"},
				}},
			},
		},
		{ID: "2", Title: "Other bookmarks", Children: []*domain.BookmarkNode{}},
		{ID: "3", Title: "Mobile bookmarks", Children: []*domain.BookmarkNode{
			{ID: "30", Title: "Phone", URL: "https://phone.example"},
		}},
	}
}

func TestEncodeStripsIDs(t *testing.T) {
	doc := Encode(sampleForest())

	var stack []*domain.BookmarkNode
	stack = append(stack, doc.Roots...)
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if n.ID != "" {
			t.Fatalf("encoded node %q still carries id %q", n.Title, n.ID)
		}
		stack = append(stack, n.Children...)
	}
}

func TestEncodeDoesNotAliasInput(t *testing.T) {
	forest := sampleForest()
	doc := Encode(forest)
	doc.Roots[0].Children[0].Title = "changed"

	if forest[0].Children[0].Title != "A" {
		t.Error("Encode() returned nodes shared with the input forest")
	}
}

func TestRoundTrip(t *testing.T) {
	want := Encode(sampleForest())

	data, err := Marshal(want)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	got, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}

	if !reflect.DeepEqual(got, want) {
		t.Errorf("round trip mismatch\n got: %s\nwant: %s", dump(got.Roots), dump(want.Roots))
	}
}

func TestRoundTripSpecExample(t *testing.T) {
	forest := domain.Forest{{Title: "Bar", Children: []*domain.BookmarkNode{{Title: "A", URL: "http://a"}}}}

	data, err := Marshal(Encode(forest))
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	doc, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}

	if len(doc.Roots) != 1 || doc.Roots[0].Title != "Bar" {
		t.Fatalf("unexpected roots: %s", dump(doc.Roots))
	}
	children := doc.Roots[0].Children
	if len(children) != 1 || children[0].Title != "A" || children[0].URL != "http://a" {
		t.Errorf("unexpected children: %s", dump(children))
	}
}

func TestMarshalShape(t *testing.T) {
	data, err := Marshal(Encode(domain.Forest{{Title: "Bar", Children: nil}}))
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	s := string(data)

	if !strings.HasPrefix(strings.TrimSpace(s), "[") {
		t.Errorf("snapshot must be a top-level array, got %s", s)
	}
	if strings.Contains(s, `"id"`) {
		t.Errorf("snapshot must not carry ids, got %s", s)
	}
	// An empty folder keeps an explicit children array.
	if !strings.Contains(s, `"children": []`) {
		t.Errorf("empty folder lost its children array: %s", s)
	}
}

func TestDecodeBrowserTree(t *testing.T) {
	// Shape produced by the browser extension (extra keys are ignored).
	raw := `[{"id":"0","title":"","dateAdded":1700000000000,"children":[
	  {"id":"1","parentId":"0","index":0,"title":"Bookmarks bar","children":[
	    {"id":"5","parentId":"1","index":0,"title":"Go","url":"https://go.dev","dateAdded":1700000000001}
	  ]},
	  {"id":"2","parentId":"0","index":1,"title":"Other bookmarks","children":[]},
	  {"id":"3","parentId":"0","index":2,"title":"Mobile bookmarks","children":[]}
	]}]`

	doc, err := Decode([]byte(raw))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if len(doc.Roots) != 3 {
		t.Fatalf("expected 3 roots, got %d", len(doc.Roots))
	}
	bar := doc.Roots[0]
	if bar.ID != "" {
		t.Errorf("decoded root kept id %q", bar.ID)
	}
	if len(bar.Children) != 1 || bar.Children[0].URL != "https://go.dev" {
		t.Errorf("unexpected bar children: %s", dump(bar.Children))
	}
}

func TestDecodeMalformed(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{name: "not json", raw: `{{{`},
		{name: "object root", raw: `{"children":[]}`},
		{name: "empty array", raw: `[]`},
		{name: "node without url and children", raw: `[{"title":"x","children":[{"title":"orphan"}]}]`},
		{name: "empty url", raw: `[{"children":[{"title":"bar","children":[{"title":"a","url":""}]}]}]`},
		{name: "url not a string", raw: `[{"children":[{"title":"bar","children":[{"title":"a","url":42}]}]}]`},
		{name: "children not an array", raw: `[{"children":[{"title":"bar","children":{"a":1}}]}]`},
		{name: "null children", raw: `[{"children":null}]`},
		{name: "root entry is a bookmark", raw: `[{"title":"a","url":"http://a"}]`},
		{name: "root container is a bookmark", raw: `[{"children":[{"title":"a","url":"http://a"}]}]`},
		{name: "scalar entry", raw: `["bar"]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.raw))
			if err == nil {
				t.Fatal("Decode() should fail")
			}
			if !errors.Is(err, domain.ErrFormat) {
				t.Errorf("Decode() error = %v, want a FormatError", err)
			}
		})
	}
}

func dump(nodes []*domain.BookmarkNode) string {
	var b strings.Builder
	var walk func([]*domain.BookmarkNode)
	walk = func(ns []*domain.BookmarkNode) {
		b.WriteString("[")
		for i, n := range ns {
			if i > 0 {
				b.WriteString(" ")
			}
			b.WriteString(n.Title)
			if n.URL != "" {
				b.WriteString("=" + n.URL)
			} else {
				walk(n.Children)
			}
		}
		b.WriteString("]")
	}
	walk(nodes)
	return b.String()
}
