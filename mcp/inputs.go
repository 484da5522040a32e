package mcp

import (
	"fmt"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/novadb/novadb-mcp-demo/cms"
	"github.com/novadb/novadb-mcp-demo/index"
)

const (
	defaultToolTake           = 5
	defaultToolSuggestionTake = index.DefaultSuggestionTake
)

// takeRules accepts an unset take or any positive page size.
var takeRules = []validation.Rule{validation.NilOrNotEmpty, validation.Min(1)}

func takeOr(take *int, def int) int {
	if take == nil {
		return def
	}
	return *take
}


func trimmed(s string) string { return strings.TrimSpace(s) }

// valueInput is one attribute cell as sent by tool callers. Value stays
// untyped so the input schema accepts strings, numbers, booleans and null.
type valueInput struct {
	Attribute   int  `json:"attribute" jsonschema:"Attribute definition ID"`
	Language    int  `json:"language,omitempty" jsonschema:"Language ID: 0 for language-independent, 201=EN, 202=DE"`
	Variant     int  `json:"variant,omitempty" jsonschema:"Variant ID, 0 for the default variant"`
	Value       any  `json:"value,omitempty" jsonschema:"Cell value: string, number, boolean or null; omitted means null"`
	SortReverse *int `json:"sortReverse,omitempty" jsonschema:"Position within a multi-value attribute: 0, 1, 2..."`
	UnitRef     *int `json:"unitRef,omitempty" jsonschema:"Unit ID for numeric values with units"`
}

func (v valueInput) Validate() error {
	return validation.ValidateStruct(&v,
		validation.Field(&v.Attribute, validation.Required, validation.Min(1)),
		validation.Field(&v.Language, validation.Min(0)),
		validation.Field(&v.Variant, validation.Min(0)),
		validation.Field(&v.Value, validation.By(scalarRule)),
		validation.Field(&v.SortReverse, validation.Min(0)),
	)
}

func scalarRule(value any) error {
	_, err := cms.ScalarFromAny(value)
	if err != nil {
		return fmt.Errorf("must be a string, number, boolean or null")
	}
	return nil
}

func (v valueInput) toValue() (cms.Value, error) {
	scalar, err := cms.ScalarFromAny(v.Value)
	if err != nil {
		return cms.Value{}, invalidArgument(fmt.Errorf("attribute %d: %w", v.Attribute, err))
	}
	return cms.Value{
		Attribute:   v.Attribute,
		Variant:     v.Variant,
		Language:    v.Language,
		Value:       scalar,
		SortReverse: v.SortReverse,
		UnitRef:     v.UnitRef,
	}, nil
}

func toValues(in []valueInput) ([]cms.Value, error) {
	out := make([]cms.Value, 0, len(in))
	for _, v := range in {
		value, err := v.toValue()
		if err != nil {
			return nil, err
		}
		out = append(out, value)
	}
	return out, nil
}

type objectMetaInput struct {
	ID              *int64 `json:"id,omitempty" jsonschema:"Object ID (required on update unless guid is set)"`
	GUID            string `json:"guid,omitempty" jsonschema:"Object GUID"`
	APIIdentifier   string `json:"apiIdentifier,omitempty" jsonschema:"Object ApiIdentifier"`
	TypeRef         int    `json:"typeRef" jsonschema:"Object type ID"`
	LastTransaction *int64 `json:"lastTransaction,omitempty" jsonschema:"Transaction the caller last read; the update fails if the object changed since"`
	Deleted         *bool  `json:"deleted,omitempty" jsonschema:"Deleted flag as returned by reads"`
}

func (m objectMetaInput) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.TypeRef, validation.Required, validation.Min(1)),
		validation.Field(&m.ID, validation.NilOrNotEmpty, validation.Min(int64(1))),
		validation.Field(&m.LastTransaction, validation.Min(int64(0))),
	)
}

type objectInput struct {
	Meta   objectMetaInput `json:"meta" jsonschema:"Object identity and type"`
	Values []valueInput    `json:"values,omitempty" jsonschema:"Attribute values; one entry per attribute, language, variant and sortReverse"`
}

func (o objectInput) Validate() error {
	return validation.ValidateStruct(&o,
		validation.Field(&o.Meta),
		validation.Field(&o.Values),
	)
}

func (o objectInput) toObject() (cms.Object, error) {
	values, err := toValues(o.Values)
	if err != nil {
		return cms.Object{}, err
	}
	meta := cms.ObjectMeta{
		ID:      o.Meta.ID,
		GUID:            trimmed(o.Meta.GUID),
		TypeRef:         o.Meta.TypeRef,
		LastTransaction: o.Meta.LastTransaction,
		Deleted:         o.Meta.Deleted,
	}
	if id := trimmed(o.Meta.APIIdentifier); id != "" {
		meta.APIIdentifier = &id
	}
	return cms.Object{Meta: meta, Values: values}, nil
}

func toObjects(in []objectInput) ([]cms.Object, error) {
	out := make([]cms.Object, 0, len(in))
	for _, o := range in {
		obj, err := o.toObject()
		if err != nil {
			return nil, err
		}
		out = append(out, obj)
	}
	return out, nil
}

// hasIdentity reports whether an update can address the object.
func (o objectInput) hasIdentity() bool {
	return o.Meta.ID != nil || trimmed(o.Meta.GUID) != "" || trimmed(o.Meta.APIIdentifier) != ""
}

type valueFilterInput struct {
	AttrID          int     `json:"attrId" jsonschema:"Attribute ID to compare"`
	LangID          int     `json:"langId,omitempty" jsonschema:"Language ID (0 for language-independent)"`
	VariantID       int     `json:"variantId,omitempty" jsonschema:"Variant ID"`
	Value           *string `json:"value,omitempty" jsonschema:"Comparison value as string; '*' placeholders with compareOperator 6"`
	CompareOperator int     `json:"compareOperator,omitempty" jsonschema:"Comparison operator: 0=Eq 1=NotEq 2=LT 3=LTE 4=GT 5=GTE 6=Wildcard 7=ObjRef"`
}

func (f valueFilterInput) Validate() error {
	return validation.ValidateStruct(&f,
		validation.Field(&f.AttrID, validation.Required, validation.Min(1)),
		validation.Field(&f.CompareOperator, validation.Min(0), validation.Max(int(index.MaxCompareOperator))),
	)
}

type attributeRefInput struct {
	AttrID    int `json:"attrId" jsonschema:"Attribute ID"`
	LangID    int `json:"langId,omitempty" jsonschema:"Language ID"`
	VariantID int `json:"variantId,omitempty" jsonschema:"Variant ID"`
}

type objectFilterInput struct {
	SearchPhrase          string              `json:"searchPhrase,omitempty" jsonschema:"Quick search text"`
	FullText              string              `json:"fullText,omitempty" jsonschema:"Lucene full-text query"`
	ObjectTypeIDs         []int64             `json:"objectTypeIds,omitempty" jsonschema:"Restrict to these object type IDs"`
	ObjectIDs             []int64             `json:"objectIds,omitempty" jsonschema:"Restrict to these object IDs"`
	ModifiedBy            string              `json:"modifiedBy,omitempty" jsonschema:"Last modifier user name"`
	ModifiedSince         string              `json:"modifiedSince,omitempty" jsonschema:"RFC 3339 lower bound of the modification time"`
	Deleted               *bool               `json:"deleted,omitempty" jsonschema:"Only deleted (true) or only live (false) objects"`
	UILanguage            *int                `json:"uiLanguage,omitempty" jsonschema:"Language used for display names (201=EN, 202=DE)"`
	HasLocalValues        *bool               `json:"hasLocalValues,omitempty" jsonschema:"Only objects with values stored on this branch"`
	HasDisplayName        *bool               `json:"hasDisplayName,omitempty" jsonschema:"Only objects with a display name"`
	Filters               []valueFilterInput  `json:"filters,omitempty" jsonschema:"Attribute conditions, all must match"`
	QuickSearchAttributes []attributeRefInput `json:"quickSearchAttributes,omitempty" jsonschema:"Attributes searched by searchPhrase"`
	QuickSearchFullText   *bool               `json:"quickSearchFullText,omitempty" jsonschema:"Treat searchPhrase as full-text query"`
}

func (f objectFilterInput) Validate() error {
	return validation.ValidateStruct(&f,
		validation.Field(&f.Filters),
	)
}

func (f *objectFilterInput) toFilter() *index.ObjectFilter {
	if f == nil {
		return nil
	}
	out := &index.ObjectFilter{
		UILanguage:          f.UILanguage,
		HasLocalValues:      f.HasLocalValues,
		HasDisplayName:      f.HasDisplayName,
		SearchPhrase:        f.SearchPhrase,
		ObjectTypeIDs:       f.ObjectTypeIDs,
		ObjectIDs:           f.ObjectIDs,
		ModifiedBy:          trimmed(f.ModifiedBy),
		Deleted:             f.Deleted,
		ModifiedSince:       trimmed(f.ModifiedSince),
		QuickSearchFullText: f.QuickSearchFullText,
		FullText:            f.FullText,
	}
	for _, vf := range f.Filters {
		out.Filters = append(out.Filters, index.ValueFilter{
			AttrID:          vf.AttrID,
			LangID:          vf.LangID,
			VariantID:       vf.VariantID,
			Value:           vf.Value,
			CompareOperator: index.CompareOperator(vf.CompareOperator),
		})
	}
	for _, ref := range f.QuickSearchAttributes {
		out.QuickSearchAttributes = append(out.QuickSearchAttributes, index.AttributeRef(ref))
	}
	return out
}

type sortKeyInput struct {
	SortBy    int   `json:"sortBy" jsonschema:"Sort key: 0=Score 1=ObjId 2=TypeRef 3=DisplayName 4=Modified 5=ModifiedBy 6=Attribute"`
	AttrID    *int  `json:"attrId,omitempty" jsonschema:"Attribute ID, required when sortBy is 6"`
	LangID    *int  `json:"langId,omitempty" jsonschema:"Language ID for attribute sorting"`
	VariantID *int  `json:"variantId,omitempty" jsonschema:"Variant ID for attribute sorting"`
	Reverse   *bool `json:"reverse,omitempty" jsonschema:"Sort descending"`
}

func (k sortKeyInput) Validate() error {
	return validation.ValidateStruct(&k,
		validation.Field(&k.SortBy, validation.Min(0), validation.Max(int(index.MaxSortDimension))),
		validation.Field(&k.AttrID, validation.When(k.SortBy == int(index.SortAttribute),
			validation.Required.Error("is required when sortBy is 6"))),
	)
}

func toSortKeys(in []sortKeyInput) []index.SortKey {
	if len(in) == 0 {
		return nil
	}
	out := make([]index.SortKey, 0, len(in))
	for _, k := range in {
		out = append(out, index.SortKey{
			SortBy:    index.SortDimension(k.SortBy),
			AttrID:    k.AttrID,
			LangID:    k.LangID,
			VariantID: k.VariantID,
			Reverse:   k.Reverse,
		})
	}
	return out
}

type commentFilterInput struct {
	SearchPhrase string  `json:"searchPhrase,omitempty" jsonschema:"Text to search in comment bodies"`
	User         string  `json:"user,omitempty" jsonschema:"Comment author"`
	Mentioned    string  `json:"mentioned,omitempty" jsonschema:"User mentioned in the comment"`
	ObjectTypes  []int64 `json:"objectTypes,omitempty" jsonschema:"Restrict to comments on these object types"`
}

func (f *commentFilterInput) toFilter() *index.CommentFilter {
	if f == nil {
		return nil
	}
	return &index.CommentFilter{
		SearchPhrase: f.SearchPhrase,
		User:         trimmed(f.User),
		Mentioned:    trimmed(f.Mentioned),
		ObjectTypes:  f.ObjectTypes,
	}
}

type suggestAttributeInput struct {
	AttrID    int  `json:"attrId" jsonschema:"Attribute ID to suggest values from"`
	LangID    *int `json:"langId,omitempty" jsonschema:"Language ID"`
	VariantID *int `json:"variantId,omitempty" jsonschema:"Variant ID"`
}

func (a suggestAttributeInput) Validate() error {
	return validation.ValidateStruct(&a,
		validation.Field(&a.AttrID, validation.Required, validation.Min(1)),
	)
}

// validateInput runs v's rules and marks failures as caller errors.
func validateInput(v validation.Validatable) error {
	if err := v.Validate(); err != nil {
		return invalidArgument(err)
	}
	return nil
}
