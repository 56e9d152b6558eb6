package workload

import (
	"fmt"
	"math/rand/v2"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateUser_Unique(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 1))
	seen := make(map[string]bool)

	for i := 0; i < 5000; i++ {
		u := GenerateUser(rng)
		require.GreaterOrEqual(t, u.UserID, int64(0))
		require.NotEqual(t, DefaultSeedUserID, u.UserID)
		require.False(t, seen[u.Username], "duplicate username %s", u.Username)
		seen[u.Username] = true
	}
}

func TestGenerateUser_SameMillisecond(t *testing.T) {
	// Identical rng streams and clock still give distinct usernames.
	now := time.Unix(1700000000, 0)
	a := generateUser(rand.New(rand.NewPCG(7, 7)), 1, 10, now)
	b := generateUser(rand.New(rand.NewPCG(7, 7)), 1, 10, now)

	assert.Equal(t, a.UserID, b.UserID)
	assert.NotEqual(t, a.Username, b.Username)
}

func TestGeneratePost(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 3))

	p := GeneratePost(rng, 42, "user_42", PostOptions{PostType: -1})
	assert.Equal(t, int64(42), p.UserID)
	assert.Contains(t, p.Text, "user_42")
	assert.GreaterOrEqual(t, p.PostType, 0)
	assert.LessOrEqual(t, p.PostType, 2)
	assert.Empty(t, p.MediaIDs)
	assert.NotNil(t, p.MediaIDs)
	assert.Empty(t, p.MediaTypes)

	p = GeneratePost(rng, 42, "user_42", PostOptions{Style: PostStyleRandom, TextLength: 280})
	assert.Len(t, p.Text, 280)
	assert.Equal(t, 0, p.PostType)

	p = GeneratePost(rng, 42, "user_42", PostOptions{Style: PostStyleHeavy, PostType: 1})
	assert.Equal(t, 1, p.PostType)
	assert.Equal(t, heavyMentions, strings.Count(p.Text, "@user"))
	assert.True(t, strings.HasPrefix(p.Text, "@user0 @user1 "), p.Text[:40])
	assert.Contains(t, p.Text, fmt.Sprintf("@user%d ", heavyMentions-1))
	assert.NotContains(t, p.Text, fmt.Sprintf("@user%d ", heavyMentions))
}

func TestRandomText(t *testing.T) {
	rng := rand.New(rand.NewPCG(4, 4))
	assert.Len(t, RandomText(rng, 0), 100)
	for _, c := range RandomText(rng, 500) {
		assert.True(t, strings.ContainsRune(textAlphabet, c))
	}
}
