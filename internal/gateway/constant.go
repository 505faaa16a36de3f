package gateway

import "time"

// Close codes sent right after the upgrade when a connection cannot be bound
const (
	CloseUnauthorized = 4401
	CloseForbidden    = 4403
	CloseNotFound     = 4404
)

// Query and path parameter keys
const (
	QueryToken          = "token"
	ParamConversationId = "conversation_id"
)

// onlineTTL is how long a user's redis online marker lives without a refresh
const onlineTTL = 60 * time.Second
