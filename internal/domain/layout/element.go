// Package layout holds the typed text elements produced by a document layout parser.
package layout

// Category classifies a layout element.
type Category int

const (
	// Other covers every element type the segmenter ignores.
	Other Category = iota
	// Title is a heading.
	Title
	// ListItem is a bullet or numbered item.
	ListItem
	// NarrativeText is a paragraph of running text.
	NarrativeText
)

// String returns the parser type name.
func (c Category) String() string {
	switch c {
	case Title:
		return "Title"
	case ListItem:
		return "ListItem"
	case NarrativeText:
		return "NarrativeText"
	default:
		return "Other"
	}
}

// ParseCategory maps a parser type name to a Category. Unknown names map to Other.
func ParseCategory(name string) Category {
	switch name {
	case "Title":
		return Title
	case "ListItem":
		return ListItem
	case "NarrativeText":
		return NarrativeText
	default:
		return Other
	}
}

// Element is one parsed text element, in document order.
type Element struct {
	Category Category
	Text     string
}

// New creates an element.
func New(c Category, text string) Element {
	return Element{Category: c, Text: text}
}
