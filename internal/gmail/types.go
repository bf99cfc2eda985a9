// internal/gmail/types.go
package gmail

type MessageID string

// Header is a single name/value pair as returned by the provider. Names keep
// their original casing.
type Header struct {
	Name  string
	Value string
}

// MessageMeta is the headers-only view of a message.
type MessageMeta struct {
	ID      MessageID
	Headers []Header
}

// Header returns the value of the first header whose name equals name exactly.
func (m MessageMeta) Header(name string) (string, bool) {
	for _, h := range m.Headers {
		if h.Name == name {
			return h.Value, true
		}
	}
	return "", false
}

type ListOptions struct {
	Label        string // e.g. SPAM
	IncludeTrash bool
	MaxResults   int
}

const LabelSpam = "SPAM"

// HeaderFrom is the only header the sweep needs from each message.
const HeaderFrom = "From"
