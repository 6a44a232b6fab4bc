package coordinator

import (
	"context"
	"math"
	"strings"

	"event-coordinator/internal/domain"
	"event-coordinator/internal/llm"
)

// extraction is the document the model returns from the extraction prompt.
type extraction struct {
	EventDetails struct {
		EventType     *string  `json:"event_type"`
		Title         *string  `json:"title"`
		Description   *string  `json:"description"`
		AttendeeCount *float64 `json:"attendee_count"`
		Scale         *string  `json:"scale"`
	} `json:"event_details"`
	Timeline struct {
		Start      *string  `json:"start"`
		End        *string  `json:"end"`
		Milestones []string `json:"milestones"`
	} `json:"timeline"`
	Budget struct {
		Total     *float64           `json:"total"`
		Currency  *string            `json:"currency"`
		Breakdown map[string]float64 `json:"breakdown"`
	} `json:"budget"`
	Location struct {
		City      *string `json:"city"`
		Country   *string `json:"country"`
		Venue     *string `json:"venue"`
		VenueType *string `json:"venue_type"`
		Virtual   *bool   `json:"virtual"`
	} `json:"location"`
	Stakeholders         []string        `json:"stakeholders"`
	Resources            []string        `json:"resources"`
	SuccessCriteria      []string        `json:"success_criteria"`
	Risks                []string        `json:"risks"`
	InformationCollected map[string]bool `json:"information_collected"`
	Response             string          `json:"response"`
}

func (c *Coordinator) gatherRequirements(ctx context.Context, st *domain.ConversationState) (Action, error) {
	reply, err := c.model.InvokeJSON(ctx, extractionPrompt, history(st))
	if err != nil {
		return "", err
	}

	var ex extraction
	if err := llm.DecodeJSON(reply, &ex); err != nil {
		c.logger.Warn("requirement extraction unreadable", "conversation_id", st.ConversationID, "err", err)
		st.AppendEphemeral("requirement extraction failed: "+err.Error(), c.now())
		st.AppendMessage(domain.RoleAssistant, followUp(st.InformationCollected), c.now())
		return "", nil
	}

	mergeExtraction(st, &ex)
	st.NextSteps = nextSteps(st.InformationCollected)

	text := strings.TrimSpace(ex.Response)
	if text == "" {
		text = followUp(st.InformationCollected)
	}
	st.AppendMessage(domain.RoleAssistant, text, c.now())
	return "", nil
}

// mergeExtraction copies every non-null value into the state. Lists are
// unioned; the collected flags are replaced when the model reported them.
func mergeExtraction(st *domain.ConversationState, ex *extraction) {
	d := &st.EventDetails
	setStr(&d.EventType, ex.EventDetails.EventType)
	setStr(&d.Title, ex.EventDetails.Title)
	setStr(&d.Description, ex.EventDetails.Description)
	setStr(&d.Scale, ex.EventDetails.Scale)
	if n := ex.EventDetails.AttendeeCount; n != nil && *n >= 0 {
		v := int(math.Round(*n))
		d.AttendeeCount = &v
	}
	setStr(&d.TimelineStart, ex.Timeline.Start)
	setStr(&d.TimelineEnd, ex.Timeline.End)

	r := &st.Requirements
	r.Milestones = union(r.Milestones, ex.Timeline.Milestones)
	r.Stakeholders = union(r.Stakeholders, ex.Stakeholders)
	r.Resources = union(r.Resources, ex.Resources)
	r.SuccessCriteria = union(r.SuccessCriteria, ex.SuccessCriteria)
	r.Risks = union(r.Risks, ex.Risks)

	if ex.Budget.Total != nil {
		v := *ex.Budget.Total
		r.Budget.Total = &v
	}
	setStr(&r.Budget.Currency, ex.Budget.Currency)
	for k, v := range ex.Budget.Breakdown {
		if r.Budget.Breakdown == nil {
			r.Budget.Breakdown = map[string]float64{}
		}
		r.Budget.Breakdown[k] = v
	}

	loc := &r.Location
	setStr(&loc.City, ex.Location.City)
	setStr(&loc.Country, ex.Location.Country)
	setStr(&loc.Venue, ex.Location.Venue)
	setStr(&loc.VenueType, ex.Location.VenueType)
	if ex.Location.Virtual != nil {
		v := *ex.Location.Virtual
		loc.Virtual = &v
	}

	if ex.InformationCollected != nil {
		var ic domain.InformationCollected
		for _, cat := range domain.Categories {
			ic.Set(cat, ex.InformationCollected[string(cat)])
		}
		st.InformationCollected = ic
	}
}

// nextSteps is generate_proposal once complete, otherwise one collect step
// per missing category.
func nextSteps(ic domain.InformationCollected) []string {
	missing := ic.Missing()
	if len(missing) == 0 {
		return []string{string(ActionGenerateProposal)}
	}
	out := make([]string, 0, len(missing))
	for _, cat := range missing {
		out = append(out, "collect_"+string(cat)+"_information")
	}
	return out
}

func setStr(dst **string, src *string) {
	if src == nil || strings.TrimSpace(*src) == "" {
		return
	}
	v := strings.TrimSpace(*src)
	*dst = &v
}

func union(have, add []string) []string {
	for _, a := range add {
		a = strings.TrimSpace(a)
		if a == "" {
			continue
		}
		dup := false
		for _, h := range have {
			if strings.EqualFold(h, a) {
				dup = true
				break
			}
		}
		if !dup {
			have = append(have, a)
		}
	}
	return have
}
