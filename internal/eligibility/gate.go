// Package eligibility decides whether a submission or registration attempt
// may proceed. Evaluate is pure: it reads only the Attempt it is given and
// never writes anything, so a rejection leaves no trace.
package eligibility

import (
	"fmt"
	"strings"
	"time"

	"confdesk/internal/model"
)

// Check names, in evaluation order.
const (
	CheckConfigured   = "configured"
	CheckPrerequisite = "prerequisite"
	CheckWindow       = "window"
	CheckPerUserLimit = "per_user_limit"
	CheckContentSize  = "content_size"
	CheckRequired     = "required_fields"
	CheckCategories   = "categories"
)

// Rejection names the first check that failed.
type Rejection struct {
	Check   string `json:"check"`
	Message string `json:"message"`
}

func (r *Rejection) Error() string {
	return fmt.Sprintf("eligibility %s: %s", r.Check, r.Message)
}

func reject(check, format string, args ...any) *Rejection {
	return &Rejection{Check: check, Message: fmt.Sprintf(format, args...)}
}

// Window is an inclusive time range; nil bounds are open.
type Window struct {
	Opens  *time.Time
	Closes *time.Time
}

func (w Window) Contains(t time.Time) bool {
	if w.Opens != nil && t.Before(*w.Opens) {
		return false
	}
	if w.Closes != nil && t.After(*w.Closes) {
		return false
	}
	return true
}

// Attempt carries every fact the gate needs. Callers load it up front.
type Attempt struct {
	Now time.Time

	Enabled bool
	Feature string // "submission" or "registration", used in messages

	RequireRegistration bool
	Registration        *model.EventRegistration

	Window Window

	// MaxPerUser <= 0 disables the limit.
	MaxPerUser    int
	ExistingCount int

	// WordLimit <= 0 disables the limit.
	WordLimit int
	WordCount int

	RequireAttachment bool
	AttachmentRef     string
	RequiredFields    []string
	Fields            map[string]string

	ActiveCategories []model.Category
	Selected         []model.CategorySelection
}

type check func(a Attempt) *Rejection

var checks = []check{
	checkConfigured,
	checkPrerequisite,
	checkWindow,
	checkPerUser,
	checkContentSize,
	checkRequired,
	checkCategories,
}

// Evaluate runs the checks in order and returns the first rejection, or nil
// when the attempt is admissible.
func Evaluate(a Attempt) *Rejection {
	for _, c := range checks {
		if r := c(a); r != nil {
			return r
		}
	}
	return nil
}

func (a Attempt) feature() string {
	if a.Feature == "" {
		return "submission"
	}
	return a.Feature
}

func checkConfigured(a Attempt) *Rejection {
	if !a.Enabled {
		return reject(CheckConfigured, "%s is not open for this event", a.feature())
	}
	return nil
}

func checkPrerequisite(a Attempt) *Rejection {
	if !a.RequireRegistration {
		return nil
	}
	switch {
	case a.Registration == nil:
		return reject(CheckPrerequisite, "event registration required")
	case a.Registration.Suspended:
		return reject(CheckPrerequisite, "event registration is suspended")
	}
	return nil
}

func checkWindow(a Attempt) *Rejection {
	if a.Window.Opens != nil && a.Now.Before(*a.Window.Opens) {
		return reject(CheckWindow, "%s window not yet open", a.feature())
	}
	if a.Window.Closes != nil && a.Now.After(*a.Window.Closes) {
		return reject(CheckWindow, "%s window closed", a.feature())
	}
	return nil
}

func checkPerUser(a Attempt) *Rejection {
	if a.MaxPerUser > 0 && a.ExistingCount >= a.MaxPerUser {
		return reject(CheckPerUserLimit, "limit of %d per user reached", a.MaxPerUser)
	}
	return nil
}

func checkContentSize(a Attempt) *Rejection {
	if a.WordLimit > 0 && a.WordCount > a.WordLimit {
		return reject(CheckContentSize, "exceeds word limit")
	}
	return nil
}

func checkRequired(a Attempt) *Rejection {
	if a.RequireAttachment && strings.TrimSpace(a.AttachmentRef) == "" {
		return reject(CheckRequired, "attachment is required")
	}
	for _, f := range a.RequiredFields {
		if strings.TrimSpace(a.Fields[f]) == "" {
			return reject(CheckRequired, "field %q is required", f)
		}
	}
	return nil
}

func checkCategories(a Attempt) *Rejection {
	if len(a.Selected) == 0 {
		return nil
	}
	active := make(map[string]model.Category, len(a.ActiveCategories))
	for _, c := range a.ActiveCategories {
		if c.Active {
			active[c.ID] = c
		}
	}
	if len(a.Selected) > len(active) {
		return reject(CheckCategories, "too many categories selected")
	}
	seen := make(map[string]struct{}, len(a.Selected))
	for _, sel := range a.Selected {
		cat, ok := active[sel.CategoryID]
		if !ok {
			return reject(CheckCategories, "category %s is not active", sel.CategoryID)
		}
		if _, dup := seen[sel.CategoryID]; dup {
			return reject(CheckCategories, "category %s selected twice", sel.CategoryID)
		}
		seen[sel.CategoryID] = struct{}{}
		if sel.Option != "" && !contains(cat.Options, sel.Option) {
			return reject(CheckCategories, "option %q is not allowed for %s", sel.Option, cat.Name)
		}
	}
	return nil
}

func contains(options []string, v string) bool {
	for _, o := range options {
		if o == v {
			return true
		}
	}
	return false
}

// CountWords counts whitespace-separated words.
func CountWords(s string) int {
	return len(strings.Fields(s))
}
