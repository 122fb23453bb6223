package enums

import "fmt"

// RelatedEntityType correlates a wallet transaction with the business object that
// caused it. Maps to the related_entity_type_enum enum in Postgres.
type RelatedEntityType string

const (
	RelatedEntityTransfer RelatedEntityType = "wallet_transfer"
	RelatedEntityGigOrder RelatedEntityType = "gig_order"
	RelatedEntityCourse   RelatedEntityType = "course_enrollment"
	RelatedEntityPayout   RelatedEntityType = "payout_request"
)

var validRelatedEntityTypes = []RelatedEntityType{
	RelatedEntityTransfer,
	RelatedEntityGigOrder,
	RelatedEntityCourse,
	RelatedEntityPayout,
}

// IsValid reports whether the value matches the canonical related entity enum.
func (t RelatedEntityType) IsValid() bool {
	for _, candidate := range validRelatedEntityTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseRelatedEntityType converts raw input into RelatedEntityType.
func ParseRelatedEntityType(value string) (RelatedEntityType, error) {
	for _, candidate := range validRelatedEntityTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid related entity type %q", value)
}
