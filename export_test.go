package apikit

import "time"

// Test-only exports for internal functions.
var (
	HasParamTags  = hasParamTags
	TagOptions    = tagOptions
	TagContains   = tagContains
	JSONFieldName = jsonFieldName
	FieldRequired = fieldRequired
	SchemaName    = schemaName

	ApplyConstraintTags = applyConstraintTags
	ValidateConstraints = validateConstraints
	GenerateOperationID = generateOperationID
	ToHTTPError         = toHTTPError
	ToJSONSchema        = toJSONSchema
	ValidRequestID      = validRequestID
	NewLimiterStore     = newLimiterStore
)

// LimiterStore exposes the rate limiter store to external tests.
type LimiterStore = limiterStore

// AllowAt reports whether key may proceed at now.
func (s *limiterStore) AllowAt(key string, now time.Time) bool { return s.allow(key, now) }

// Size returns the number of tracked keys.
func (s *limiterStore) Size() int { return s.size() }
