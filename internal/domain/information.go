package domain

// Category is one of the fixed requirement-gathering topics.
type Category string

const (
	CategoryBasicDetails    Category = "basic_details"
	CategoryTimeline        Category = "timeline"
	CategoryBudget          Category = "budget"
	CategoryLocation        Category = "location"
	CategoryStakeholders    Category = "stakeholders"
	CategoryResources       Category = "resources"
	CategorySuccessCriteria Category = "success_criteria"
	CategoryRisks           Category = "risks"
)

// Categories lists every category in reporting order.
var Categories = []Category{
	CategoryBasicDetails,
	CategoryTimeline,
	CategoryBudget,
	CategoryLocation,
	CategoryStakeholders,
	CategoryResources,
	CategorySuccessCriteria,
	CategoryRisks,
}

// InformationCollected tracks which categories have been gathered. It is a
// struct rather than a map so that no category can ever be absent.
type InformationCollected struct {
	BasicDetails    bool `json:"basic_details"`
	Timeline        bool `json:"timeline"`
	Budget          bool `json:"budget"`
	Location        bool `json:"location"`
	Stakeholders    bool `json:"stakeholders"`
	Resources       bool `json:"resources"`
	SuccessCriteria bool `json:"success_criteria"`
	Risks           bool `json:"risks"`
}

func (ic *InformationCollected) field(c Category) *bool {
	switch c {
	case CategoryBasicDetails:
		return &ic.BasicDetails
	case CategoryTimeline:
		return &ic.Timeline
	case CategoryBudget:
		return &ic.Budget
	case CategoryLocation:
		return &ic.Location
	case CategoryStakeholders:
		return &ic.Stakeholders
	case CategoryResources:
		return &ic.Resources
	case CategorySuccessCriteria:
		return &ic.SuccessCriteria
	case CategoryRisks:
		return &ic.Risks
	}
	return nil
}

// Get returns the flag for c; unknown categories report false.
func (ic InformationCollected) Get(c Category) bool {
	if f := ic.field(c); f != nil {
		return *f
	}
	return false
}

// Set updates the flag for c and ignores unknown categories.
func (ic *InformationCollected) Set(c Category, v bool) {
	if f := ic.field(c); f != nil {
		*f = v
	}
}

func (ic InformationCollected) Complete() bool {
	return len(ic.Missing()) == 0
}

func (ic InformationCollected) Any() bool {
	return len(ic.Missing()) < len(Categories)
}

// Missing returns the categories still false, in reporting order.
func (ic InformationCollected) Missing() []Category {
	var out []Category
	for _, c := range Categories {
		if !ic.Get(c) {
			out = append(out, c)
		}
	}
	return out
}

func (ic InformationCollected) AsMap() map[Category]bool {
	out := make(map[Category]bool, len(Categories))
	for _, c := range Categories {
		out[c] = ic.Get(c)
	}
	return out
}
