package index

// CompareOperator selects how a ValueFilter compares an attribute value.
type CompareOperator int

const (
	Equal CompareOperator = iota
	NotEqual
	LessThan
	LessOrEqual
	GreaterThan
	GreaterOrEqual
	// Wildcard matches a pattern with '*' placeholders.
	Wildcard
	// Reference matches objects referenced by the attribute.
	Reference
)

// MaxCompareOperator is the highest defined operator code.
const MaxCompareOperator = Reference

// SortDimension names what a SortKey orders by.
type SortDimension int

const (
	SortScore SortDimension = iota
	SortObjectID
	SortTypeRef
	SortDisplayName
	SortModified
	SortModifiedBy
	// SortAttribute orders by one attribute; AttrID (with LangID and
	// VariantID) must accompany it.
	SortAttribute
)

// MaxSortDimension is the highest defined sort dimension.
const MaxSortDimension = SortAttribute

// CommentSortField names what comment search orders by.
type CommentSortField int

const (
	CommentSortID CommentSortField = iota
	CommentSortUser
	CommentSortCreated
	CommentSortModified
	CommentSortObjectID
	CommentSortObjectType
)

// MaxCommentSortField is the highest defined comment sort field.
const MaxCommentSortField = CommentSortObjectType

// ValueFilter restricts matches by one attribute cell.
type ValueFilter struct {
	AttrID          int             `json:"attrId"`
	LangID          int             `json:"langId"`
	VariantID       int             `json:"variantId"`
	Value           *string         `json:"value,omitempty"`
	CompareOperator CompareOperator `json:"compareOperator"`
}

// AttributeRef addresses an attribute cell for quick search.
type AttributeRef struct {
	AttrID    int `json:"attrId"`
	LangID    int `json:"langId"`
	VariantID int `json:"variantId"`
}

// ObjectFilter is the object search condition. The zero value matches all
// objects. Optional booleans are pointers so an explicit false is sent.
type ObjectFilter struct {
	UILanguage            *int           `json:"uiLanguage,omitempty"`
	HasLocalValues        *bool          `json:"hasLocalValues,omitempty"`
	HasDisplayName        *bool          `json:"hasDisplayName,omitempty"`
	SearchPhrase          string         `json:"searchPhrase,omitempty"`
	ObjectTypeIDs         []int64        `json:"objectTypeIds,omitempty"`
	ObjectIDs             []int64        `json:"objectIds,omitempty"`
	ModifiedBy            string         `json:"modifiedBy,omitempty"`
	Filters               []ValueFilter  `json:"filters,omitempty"`
	Deleted               *bool          `json:"deleted,omitempty"`
	ModifiedSince         string         `json:"modifiedSince,omitempty"`
	QuickSearchAttributes []AttributeRef `json:"quickSearchAttributes,omitempty"`
	QuickSearchFullText   *bool          `json:"quickSearchFullText,omitempty"`
	FullText              string         `json:"fullText,omitempty"`
}

// SortKey is one entry of an ordered sort list.
type SortKey struct {
	SortBy    SortDimension `json:"sortBy"`
	AttrID    *int          `json:"attrId,omitempty"`
	LangID    *int          `json:"langId,omitempty"`
	VariantID *int          `json:"variantId,omitempty"`
	Reverse   *bool         `json:"reverse,omitempty"`
}

// CommentFilter is the comment search condition.
type CommentFilter struct {
	SearchPhrase string  `json:"searchPhrase,omitempty"`
	User         string  `json:"user,omitempty"`
	Mentioned    string  `json:"mentioned,omitempty"`
	ObjectTypes  []int64 `json:"objectTypes,omitempty"`
}

// CommentSort orders comment search results.
type CommentSort struct {
	Field   CommentSortField `json:"field"`
	Reverse *bool            `json:"reverse,omitempty"`
}

// SuggestAttribute selects an attribute to draw suggestions from.
type SuggestAttribute struct {
	AttrID    int  `json:"attrId"`
	LangID    *int `json:"langId,omitempty"`
	VariantID *int `json:"variantId,omitempty"`
}

// Page is the offset window of a list call.
type Page struct {
	Skip int `json:"skip"`
	Take int `json:"take"`
}
