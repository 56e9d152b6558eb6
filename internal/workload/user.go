package workload

import (
	"fmt"
	"math/rand/v2"
	"strings"
	"sync/atomic"
	"time"
)

// DefaultSeedUserID is the id of the user registered during setup. Every
// freshly registered user gets this user as a follower.
const DefaultSeedUserID int64 = 1

// DefaultUserIDSpace bounds the random part of generated user ids.
const DefaultUserIDSpace int64 = 1_000_000

// SyntheticUser is a randomly generated account. It lives for one
// iteration and is never persisted by the generator.
type SyntheticUser struct {
	UserID    int64  `json:"user_id"`
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Password  string `json:"password"`
}

// Post is the payload of a compose call.
type Post struct {
	UserID     int64
	Username   string
	PostType   int
	Text       string
	MediaIDs   []int64
	MediaTypes []string
}

// FollowEdge is a follower -> followee relation.
type FollowEdge struct {
	FollowerID int64
	FolloweeID int64
}

// usernameSeq disambiguates usernames generated within the same millisecond
// for the same random id.
var usernameSeq atomic.Uint64

// GenerateUser builds a synthetic user. The id is non-negative and never
// collides with the seed user; the username embeds the current time and a
// process-wide sequence number so concurrent VUs cannot produce duplicates.
func GenerateUser(rng *rand.Rand) SyntheticUser {
	return generateUser(rng, DefaultSeedUserID, DefaultUserIDSpace, time.Now())
}

func generateUser(rng *rand.Rand, seedID, space int64, now time.Time) SyntheticUser {
	if space <= 0 {
		space = DefaultUserIDSpace
	}
	id := seedID + 1 + rng.Int64N(space)
	seq := usernameSeq.Add(1)

	return SyntheticUser{
		UserID:    id,
		Username:  fmt.Sprintf("user_%d_%d_%d", id, now.UnixMilli(), seq),
		FirstName: fmt.Sprintf("FirstName%d", id),
		LastName:  fmt.Sprintf("LastName%d", id),
		Password:  fmt.Sprintf("password%d", id),
	}
}

// PostStyle selects how post text is produced.
type PostStyle string

const (
	// PostStyleDefault writes a short sentence naming the author and time.
	PostStyleDefault PostStyle = "default"
	// PostStyleRandom writes TextLength random alphanumeric characters.
	PostStyleRandom PostStyle = "random"
	// PostStyleHeavy writes mentions plus filler text to make the
	// text-processing services work harder.
	PostStyleHeavy PostStyle = "heavy"
)

const (
	heavyMentions = 20
	heavyFiller   = "Lorem ipsum dolor sit amet, consectetur adipiscing elit. "
	heavyRepeats  = 50
	textAlphabet  = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789 "
)

// PostOptions controls GeneratePost.
type PostOptions struct {
	Style      PostStyle
	TextLength int
	// PostType fixes the post type; negative picks uniformly from {0,1,2}.
	PostType int
}

// GeneratePost builds a compose payload for the given author. Media lists
// are always empty.
func GeneratePost(rng *rand.Rand, userID int64, username string, opts PostOptions) Post {
	postType := opts.PostType
	if postType < 0 || postType > 2 {
		postType = rng.IntN(3)
	}

	var text string
	switch opts.Style {
	case PostStyleRandom:
		text = RandomText(rng, opts.TextLength)
	case PostStyleHeavy:
		text = heavyText(username, time.Now())
	default:
		text = defaultText(username, time.Now())
	}

	return Post{
		UserID:     userID,
		Username:   username,
		PostType:   postType,
		Text:       text,
		MediaIDs:   []int64{},
		MediaTypes: []string{},
	}
}

func defaultText(username string, now time.Time) string {
	return fmt.Sprintf("This is a test post from user %s at %s", username, now.UTC().Format(time.RFC3339Nano))
}

func heavyText(username string, now time.Time) string {
	var sb strings.Builder
	for i := 0; i < heavyMentions; i++ {
		fmt.Fprintf(&sb, "@user%d ", i)
	}
	sb.WriteString(strings.Repeat(heavyFiller, heavyRepeats))
	sb.WriteString(defaultText(username, now))
	return sb.String()
}

// RandomText returns n characters drawn from [A-Za-z0-9 ].
func RandomText(rng *rand.Rand, n int) string {
	if n <= 0 {
		n = 100
	}
	b := make([]byte, n)
	for i := range b {
		b[i] = textAlphabet[rng.IntN(len(textAlphabet))]
	}
	return string(b)
}
