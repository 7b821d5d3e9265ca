package models

import (
	"errors"
	"fmt"
)

// ContextKind tags what a completed upload is for.
type ContextKind string

const (
	KindArticleField      ContextKind = "article-field"
	KindAutoAttach        ContextKind = "auto-attach"
	KindProfilePicture    ContextKind = "profile-picture"
	KindGenericAttachment ContextKind = "generic-attachment"
)

var ErrInvalidContext = errors.New("invalid upload context")

// Context is a closed union: Kind selects which of the remaining fields are
// meaningful. Use the constructors below rather than literals.
type Context struct {
	Kind ContextKind `json:"kind"`

	// RecordID is the article id (article-field, auto-attach) or the user id
	// (profile-picture).
	RecordID string `json:"record_id,omitempty"`

	// Field is the article field name (article-field only).
	Field string `json:"field,omitempty"`
}

func ArticleField(articleID, field string) Context {
	return Context{Kind: KindArticleField, RecordID: articleID, Field: field}
}

func AutoAttach(articleID string) Context {
	return Context{Kind: KindAutoAttach, RecordID: articleID}
}

func ProfilePicture(userID string) Context {
	return Context{Kind: KindProfilePicture, RecordID: userID}
}

func GenericAttachment() Context {
	return Context{Kind: KindGenericAttachment}
}

// Validate rejects unknown kinds and missing variant fields.
func (c Context) Validate() error {
	switch c.Kind {
	case KindArticleField:
		if c.RecordID == "" || c.Field == "" {
			return fmt.Errorf("%w: article-field needs record id and field", ErrInvalidContext)
		}
	case KindAutoAttach, KindProfilePicture:
		if c.RecordID == "" {
			return fmt.Errorf("%w: %s needs record id", ErrInvalidContext, c.Kind)
		}
	case KindGenericAttachment:
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidContext, c.Kind)
	}
	return nil
}

// ParseContext builds a Context from CLI-style arguments.
func ParseContext(kind string, args ...string) (Context, error) {
	arg := func(i int) string {
		if i < len(args) {
			return args[i]
		}
		return ""
	}

	var c Context
	switch ContextKind(kind) {
	case KindArticleField:
		c = ArticleField(arg(0), arg(1))
	case KindAutoAttach:
		c = AutoAttach(arg(0))
	case KindProfilePicture:
		c = ProfilePicture(arg(0))
	case KindGenericAttachment:
		c = GenericAttachment()
	default:
		return Context{}, fmt.Errorf("%w: unknown kind %q", ErrInvalidContext, kind)
	}
	return c, c.Validate()
}
