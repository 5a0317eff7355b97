package notifications

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/adeyemiloye/chowhub-backend/pkg/enums"
	"github.com/google/uuid"
)

// DedupeKey derives the stable hash that collapses duplicate sends. The time
// bucket is truncated to the hour so a legitimate re-send becomes possible
// once the bucket rolls over, while webhook bursts inside the hour land on
// the same row.
func DedupeKey(eventType enums.NotificationEventType, recipient, templateKey string, orderID uuid.UUID, at time.Time) string {
	bucket := at.UTC().Truncate(time.Hour).Format(time.RFC3339)
	payload := fmt.Sprintf("%s|%s|%s|%s|%s",
		eventType,
		strings.ToLower(strings.TrimSpace(recipient)),
		templateKey,
		orderID,
		bucket,
	)
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])
}
