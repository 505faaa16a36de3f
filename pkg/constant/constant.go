package constant

// Reaction kinds
const (
	ReactionLike  = "like"
	ReactionLove  = "love"
	ReactionLaugh = "laugh"
	ReactionSad   = "sad"
	ReactionAngry = "angry"
)

// reactionEmoji maps a reaction kind to its display emoji
var reactionEmoji = map[string]string{
	ReactionLike:  "👍",
	ReactionLove:  "❤️",
	ReactionLaugh: "😂",
	ReactionSad:   "😢",
	ReactionAngry: "😡",
}

// IsValidReaction reports whether kind belongs to the fixed reaction set
func IsValidReaction(kind string) bool {
	_, ok := reactionEmoji[kind]
	return ok
}

// ReactionEmoji returns the emoji for a reaction kind, or "" when unknown
func ReactionEmoji(kind string) string {
	return reactionEmoji[kind]
}

// UndecryptablePlaceholder replaces message text whose ciphertext cannot be opened
const UndecryptablePlaceholder = "[Message could not be decrypted]"

// Paging limits for message history
const (
	DefaultPageSize = 50
	MaxPageSize     = 100
)

// GroupMinMembers is the minimum number of non-creator members a new group needs
const GroupMinMembers = 2

// Broadcast group key prefix
const ChatGroupKeyPrefix = "chat_"

// Redis key patterns (without prefix, use RedisKey() to get full key)
const (
	redisKeyOnline     = "online:%d"       // online:{user_id}
	redisKeySuspension = "suspension:%d"   // suspension:{user_id}
	redisKeyConvMember = "conv:members:%d" // conv:members:{conversation_id}
)

// redisKeyPrefix is the global prefix for all Redis keys
var redisKeyPrefix = "nexo:"

// InitRedisKeyPrefix initializes the Redis key prefix from config
func InitRedisKeyPrefix(prefix string) {
	if prefix != "" {
		redisKeyPrefix = prefix
	}
}

// GetRedisKeyPrefix returns the current Redis key prefix
func GetRedisKeyPrefix() string {
	return redisKeyPrefix
}

// Redis key getters with prefix
func RedisKeyOnline() string     { return redisKeyPrefix + redisKeyOnline }
func RedisKeySuspension() string { return redisKeyPrefix + redisKeySuspension }
func RedisKeyConvMember() string { return redisKeyPrefix + redisKeyConvMember }
