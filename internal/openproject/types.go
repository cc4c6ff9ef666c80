package openproject

// WorkPackage is the subset of an OpenProject work package (HAL+JSON) that
// the server reads. Nested fields missing from the response decode to their
// zero values; a missing id stays nil.
type WorkPackage struct {
	ID          *int             `json:"id"`
	Subject     string           `json:"subject"`
	LockVersion int              `json:"lockVersion,omitempty"`
	Description *Formattable     `json:"description,omitempty"`
	Links       WorkPackageLinks `json:"_links"`
}

// Formattable is OpenProject's rich text representation.
type Formattable struct {
	Format string `json:"format,omitempty"`
	Raw    string `json:"raw,omitempty"`
	HTML   string `json:"html,omitempty"`
}

// Link is a HAL link; Title carries the display name of the linked resource.
type Link struct {
	Href  string `json:"href,omitempty"`
	Title string `json:"title,omitempty"`
}

// WorkPackageLinks holds the linked resources used in task summaries.
type WorkPackageLinks struct {
	Type     Link `json:"type"`
	Status   Link `json:"status"`
	Priority Link `json:"priority"`
	Assignee Link `json:"assignee"`
}

// RawDescription returns the raw description text, or "" if there is none.
func (wp WorkPackage) RawDescription() string {
	if wp.Description == nil {
		return ""
	}
	return wp.Description.Raw
}

// TaskSummary is the flattened view of a work package returned by the tools.
// ID is null and URL empty when the work package carried no id.
type TaskSummary struct {
	ID          *int   `json:"id"`
	URL         string `json:"url"`
	Subject     string `json:"subject"`
	Description string `json:"description"`
	Type        string `json:"type"`
	Status      string `json:"status"`
	Priority    string `json:"priority"`
	Assignee    string `json:"assignee"`
}

// Filter is a single OpenProject filter clause, keyed by the filtered field:
//
//	{"status": {"operator": "o", "values": []}}
type Filter map[string]FilterCondition

// FilterCondition is the operator and operands of a filter clause.
type FilterCondition struct {
	Operator string   `json:"operator"`
	Values   []string `json:"values"`
}

// NewFilter returns a filter clause on a single field.
func NewFilter(field, operator string, values ...string) Filter {
	if values == nil {
		values = []string{}
	}
	return Filter{field: {Operator: operator, Values: values}}
}

// WorkPackageQuery selects work packages. All set criteria must match.
type WorkPackageQuery struct {
	// IDs restricts the result to these work package ids.
	IDs []string

	// AIDevOnly restricts the result to work packages whose AI-dev custom
	// field is true.
	AIDevOnly bool

	// Filters are additional filter clauses passed through as-is.
	Filters []Filter
}

// workPackageCollection is the envelope of GET /work_packages.
type workPackageCollection struct {
	Total    int `json:"total"`
	Count    int `json:"count"`
	Embedded struct {
		Elements []WorkPackage `json:"elements"`
	} `json:"_embedded"`
}

// apiErrorBody is the HAL error document OpenProject returns on failures.
type apiErrorBody struct {
	Type            string `json:"_type"`
	ErrorIdentifier string `json:"errorIdentifier"`
	Message         string `json:"message"`
}
