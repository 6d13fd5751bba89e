package knock

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// prefix that distinguishes client-originated reference ids from server ids
const referenceIdPrefix = "client_"

// newReferenceId returns a unique per-feed-instance identity used to address
// real-time push events to the correct local instance.
func newReferenceId() string {
	return fmt.Sprintf("%s%s", referenceIdPrefix, ulid.Make().String())
}

// feed channel ids issued by the platform are uuids
func validFeedId(feedId string) bool {
	_, err := uuid.Parse(feedId)
	return err == nil
}

func buildUserFeedId(feedId string, userId string) string {
	return fmt.Sprintf("%s:%s", feedId, userId)
}
