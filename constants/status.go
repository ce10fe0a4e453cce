package constants

// SessionStatus is the canonical status for rows in sessions.
type SessionStatus string

// Stable values (store these exact strings in DB).
const (
	SessionStatusProcessing SessionStatus = "processing" // pair picked up by the batch loop
	SessionStatusCompleted  SessionStatus = "completed"  // comparison saved
	SessionStatusError      SessionStatus = "error"      // terminal failure, row kept for observability
)

// FileStatus tracks one uploaded file on the batch status board.
type FileStatus string

const (
	FileStatusPending    FileStatus = "pending"
	FileStatusProcessing FileStatus = "processing"
	FileStatusCompleted  FileStatus = "completed"
	FileStatusError      FileStatus = "error"
)

// FileRole says which side of a document pair a file belongs to.
type FileRole string

const (
	RoleInvoice       FileRole = "invoice"
	RoleDeliveryOrder FileRole = "delivery_order"
)

// ItemStatus classifies a single compared line item or metadata field.
type ItemStatus string

const (
	ItemStatusMatch   ItemStatus = "match"
	ItemStatusWarning ItemStatus = "warning"
	ItemStatusError   ItemStatus = "error"
)

// CoerceItemStatus maps an upstream status label onto the closed enum.
// Anything unknown collapses to error, the strictest classification.
func CoerceItemStatus(s string) ItemStatus {
	switch ItemStatus(s) {
	case ItemStatusMatch, ItemStatusWarning, ItemStatusError:
		return ItemStatus(s)
	default:
		return ItemStatusError
	}
}
