package dynamo

// DynamoDB attribute names used in key, condition and update expressions.
// Several (status, number, name, size, limit, read, type) are reserved words,
// so every expression goes through ExpressionAttributeNames.
const (
	fieldRaffleID       = "raffle_id"
	fieldNumber         = "number"
	fieldStatus         = "status"
	fieldArchived       = "archived"
	fieldWinner         = "winner"
	fieldPausedAt       = "paused_at"
	fieldArchivedAt     = "archived_at"
	fieldFinishedAt     = "finished_at"
	fieldUpdatedAt      = "updated_at"
	fieldCreatedAt      = "created_at"
	fieldLinkID         = "link_id"
	fieldUsed           = "used"
	fieldUsedAt         = "used_at"
	fieldUsedBy         = "used_by"
	fieldClaimToken     = "claim_token"
	fieldClaimedAt      = "claimed_at"
	fieldNotificationID = "notification_id"
	fieldRead           = "read"
	fieldReadAt         = "read_at"
	fieldType           = "type"
	fieldPriority       = "priority"
)

const linksByRaffleIndex = "raffle_id-created_at-index"
