package models

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrInvalidFilter is returned (wrapped in a ValidationError) when a filter
// context or insight request carries a value outside its closed set.
var ErrInvalidFilter = errors.New("invalid filter")

type DateRange string

const (
	DateRangeLast7Days  DateRange = "last7days"
	DateRangeLast30Days DateRange = "last30days"
	DateRangeLast90Days DateRange = "last90days"
	DateRangeCustom     DateRange = "custom"
)

type Geography string

const (
	GeographyAll      Geography = "all"
	GeographyNCR      Geography = "ncr"
	GeographyLuzon    Geography = "luzon"
	GeographyVisayas  Geography = "visayas"
	GeographyMindanao Geography = "mindanao"
)

// VibeContext biases the narrative framing of an insight without changing the data.
type VibeContext string

const (
	VibeIntent  VibeContext = "intent"
	VibeTension VibeContext = "tension"
	VibeEquity  VibeContext = "equity"
)

// Module is one of the dashboard's analytic views.
type Module string

const (
	ModuleTrends      Module = "trends"
	ModuleProducts    Module = "products"
	ModuleBehavior    Module = "behavior"
	ModuleProfiling   Module = "profiling"
	ModuleComparative Module = "comparative"
	ModuleGeographic  Module = "geographic"
)

// AllFilter is the brand/category value meaning "no filter".
const AllFilter = "all"

var identifierPattern = regexp.MustCompile(`^[a-z0-9_-]{1,64}$`)

// FilterContext parameterizes every analytics query and insight request.
// Field order is significant: it fixes the JSON encoding used for cache keys.
type FilterContext struct {
	DateRange   DateRange   `json:"dateRange" form:"dateRange" mapstructure:"date_range"`
	Geography   Geography   `json:"geography" form:"geography" mapstructure:"geography"`
	Brand       string      `json:"brand" form:"brand" mapstructure:"brand"`
	Category    string      `json:"category" form:"category" mapstructure:"category"`
	CompareMode bool        `json:"compareMode" form:"compareMode" mapstructure:"compare_mode"`
	VibeContext VibeContext `json:"vibeContext" form:"vibeContext" mapstructure:"vibe_context"`
}

// DefaultFilters returns the filter context a fresh dashboard starts with.
func DefaultFilters() FilterContext {
	return FilterContext{
		DateRange:   DateRangeLast30Days,
		Geography:   GeographyAll,
		Brand:       AllFilter,
		Category:    AllFilter,
		CompareMode: false,
		VibeContext: VibeIntent,
	}
}

// ValidationError names the field that failed validation.
type ValidationError struct {
	Field string
	Value string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %q", e.Field, e.Value)
}

func (e *ValidationError) Unwrap() error { return ErrInvalidFilter }

// Normalize lower-cases identifiers and fills empty fields with defaults.
func (f FilterContext) Normalize() FilterContext {
	def := DefaultFilters()
	f.DateRange = DateRange(strings.ToLower(strings.TrimSpace(string(f.DateRange))))
	f.Geography = Geography(strings.ToLower(strings.TrimSpace(string(f.Geography))))
	f.Brand = strings.ToLower(strings.TrimSpace(f.Brand))
	f.Category = strings.ToLower(strings.TrimSpace(f.Category))
	f.VibeContext = VibeContext(strings.ToLower(strings.TrimSpace(string(f.VibeContext))))
	if f.DateRange == "" {
		f.DateRange = def.DateRange
	}
	if f.Geography == "" {
		f.Geography = def.Geography
	}
	if f.Brand == "" {
		f.Brand = def.Brand
	}
	if f.Category == "" {
		f.Category = def.Category
	}
	if f.VibeContext == "" {
		f.VibeContext = def.VibeContext
	}
	return f
}

// Validate checks every field against its closed set.
func (f FilterContext) Validate() error {
	if !f.DateRange.Valid() {
		return &ValidationError{Field: "dateRange", Value: string(f.DateRange)}
	}
	if !f.Geography.Valid() {
		return &ValidationError{Field: "geography", Value: string(f.Geography)}
	}
	if !identifierPattern.MatchString(f.Brand) {
		return &ValidationError{Field: "brand", Value: f.Brand}
	}
	if !identifierPattern.MatchString(f.Category) {
		return &ValidationError{Field: "category", Value: f.Category}
	}
	if !f.VibeContext.Valid() {
		return &ValidationError{Field: "vibeContext", Value: string(f.VibeContext)}
	}
	return nil
}

// BrandFilter returns the brand to filter on, or "" for all brands.
func (f FilterContext) BrandFilter() string {
	if f.Brand == AllFilter {
		return ""
	}
	return f.Brand
}

// CategoryFilter returns the category to filter on, or "" for all categories.
func (f FilterContext) CategoryFilter() string {
	if f.Category == AllFilter {
		return ""
	}
	return f.Category
}

// GeographyFilter returns the region group to filter on, or "" for the whole country.
func (f FilterContext) GeographyFilter() string {
	if f.Geography == GeographyAll {
		return ""
	}
	return string(f.Geography)
}

func (d DateRange) Valid() bool {
	switch d {
	case DateRangeLast7Days, DateRangeLast30Days, DateRangeLast90Days, DateRangeCustom:
		return true
	}
	return false
}

func (g Geography) Valid() bool {
	switch g {
	case GeographyAll, GeographyNCR, GeographyLuzon, GeographyVisayas, GeographyMindanao:
		return true
	}
	return false
}

func (v VibeContext) Valid() bool {
	switch v {
	case VibeIntent, VibeTension, VibeEquity:
		return true
	}
	return false
}

func (m Module) Valid() bool {
	switch m {
	case ModuleTrends, ModuleProducts, ModuleBehavior, ModuleProfiling, ModuleComparative, ModuleGeographic:
		return true
	}
	return false
}

// Modules lists every dashboard module in display order.
func Modules() []Module {
	return []Module{ModuleTrends, ModuleProducts, ModuleBehavior, ModuleProfiling, ModuleComparative, ModuleGeographic}
}
