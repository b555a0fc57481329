package record

import (
	"encoding/json"
	"fmt"
)

// BookmarksCollection is the collection name used for bookmark records.
const BookmarksCollection = "bookmarks"

// BookmarkType identifies the kind of node in the bookmark tree.
type BookmarkType string

const (
	BookmarkTypeFolder       BookmarkType = "folder"
	BookmarkTypeBookmark     BookmarkType = "bookmark"
	BookmarkTypeQuery        BookmarkType = "query"
	BookmarkTypeSeparator    BookmarkType = "separator"
	BookmarkTypeLivemark     BookmarkType = "livemark"
	BookmarkTypeMicrosummary BookmarkType = "microsummary"
	BookmarkTypeItem         BookmarkType = "item"
)

// IsFolder reports whether nodes of this type own a children list.
// Livemarks are folders whose contents are generated.
func (t BookmarkType) IsFolder() bool {
	return t == BookmarkTypeFolder || t == BookmarkTypeLivemark
}

// Valid reports whether t is one of the known bookmark types.
func (t BookmarkType) Valid() bool {
	switch t {
	case BookmarkTypeFolder, BookmarkTypeBookmark, BookmarkTypeQuery, BookmarkTypeSeparator,
		BookmarkTypeLivemark, BookmarkTypeMicrosummary, BookmarkTypeItem:
		return true
	}
	return false
}

// BookmarkRecord is a single node of a synchronized bookmark tree.
type BookmarkRecord struct {
	Meta

	Type          BookmarkType
	ParentID      string
	ParentName    string
	Title         string
	BookmarkURI   string
	Description   string
	Keyword       string
	Tags          []string
	Children      []string // only meaningful for folders
	Pos           int      // separator position
	LoadInSidebar bool

	// Extra holds payload fields this version does not understand.
	Extra map[string]json.RawMessage
}

// NewBookmarkTombstone returns a deleted bookmark record for guid.
func NewBookmarkTombstone(guid string, modified int64) *BookmarkRecord {
	return &BookmarkRecord{Meta: Meta{
		ID:             guid,
		CollectionName: BookmarksCollection,
		Modified:       modified,
		Deleted:        true,
	}}
}

// IsFolder reports whether this node owns a children list.
func (b *BookmarkRecord) IsFolder() bool {
	return b.Type.IsFolder()
}

// Clone returns a deep copy of the record.
func (b *BookmarkRecord) Clone() *BookmarkRecord {
	c := *b
	if b.Tags != nil {
		c.Tags = append([]string(nil), b.Tags...)
	}
	if b.Children != nil {
		c.Children = append([]string(nil), b.Children...)
	}
	if b.Extra != nil {
		c.Extra = make(map[string]json.RawMessage, len(b.Extra))
		for k, v := range b.Extra {
			c.Extra[k] = append(json.RawMessage(nil), v...)
		}
	}
	return &c
}

// BookmarkCodec serializes bookmark payloads.
type BookmarkCodec struct{}

// Collection implements Codec.
func (BookmarkCodec) Collection() string { return BookmarksCollection }

// MarshalPayload implements Codec.
func (BookmarkCodec) MarshalPayload(rec Record) ([]byte, error) {
	b, ok := rec.(*BookmarkRecord)
	if !ok {
		return nil, fmt.Errorf("%w: %T", ErrUnexpectedType, rec)
	}

	fields := make(map[string]any, 12+len(b.Extra))
	for k, v := range b.Extra {
		fields[k] = v
	}

	fields["type"] = b.Type
	if b.ParentID != "" {
		fields["parentid"] = b.ParentID
	}
	if b.ParentName != "" {
		fields["parentName"] = b.ParentName
	}
	if b.Title != "" {
		fields["title"] = b.Title
	}
	if b.BookmarkURI != "" {
		fields["bmkUri"] = b.BookmarkURI
	}
	if b.Description != "" {
		fields["description"] = b.Description
	}
	if b.Keyword != "" {
		fields["keyword"] = b.Keyword
	}
	if len(b.Tags) > 0 {
		fields["tags"] = b.Tags
	}
	if b.IsFolder() {
		children := b.Children
		if children == nil {
			children = []string{}
		}
		fields["children"] = children
	}
	if b.Type == BookmarkTypeSeparator {
		fields["pos"] = b.Pos
	}
	if b.LoadInSidebar {
		fields["loadInSidebar"] = true
	}

	return json.Marshal(fields)
}

// UnmarshalPayload implements Codec.
func (BookmarkCodec) UnmarshalPayload(meta Meta, payload []byte) (Record, error) {
	fields, err := decodeObject(payload)
	if err != nil {
		return nil, err
	}

	b := &BookmarkRecord{Meta: meta}
	if b.CollectionName == "" {
		b.CollectionName = BookmarksCollection
	}

	// The cleartext id duplicates the envelope id; the envelope wins.
	delete(fields, "id")
	delete(fields, "deleted")

	var typ string
	steps := []struct {
		key string
		dst any
	}{
		{"type", &typ},
		{"parentid", &b.ParentID},
		{"parentName", &b.ParentName},
		{"title", &b.Title},
		{"bmkUri", &b.BookmarkURI},
		{"description", &b.Description},
		{"keyword", &b.Keyword},
		{"tags", &b.Tags},
		{"children", &b.Children},
		{"pos", &b.Pos},
		{"loadInSidebar", &b.LoadInSidebar},
	}
	for _, step := range steps {
		if err := takeField(fields, step.key, step.dst); err != nil {
			return nil, err
		}
	}
	b.Type = BookmarkType(typ)

	if len(fields) > 0 {
		b.Extra = fields
	}
	return b, nil
}
