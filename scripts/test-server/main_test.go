package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wesleyorama2/socialload/internal/workload"
)

func TestServer_Endpoints(t *testing.T) {
	srv := httptest.NewServer(newServer(0, 0).routes())
	defer srv.Close()

	ctx := context.Background()
	client := workload.NewClient(srv.URL, srv.Client())
	user := workload.SyntheticUser{UserID: 7, Username: "user_7", FirstName: "A", LastName: "B", Password: "pw"}

	res := client.Register(ctx, user)
	require.NoError(t, res.Err)
	assert.Equal(t, http.StatusOK, res.StatusCode)

	res = client.Register(ctx, user)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)

	res = client.Follow(ctx, workload.FollowEdge{FollowerID: 1, FolloweeID: 7})
	assert.Equal(t, http.StatusOK, res.StatusCode)

	res = client.ComposePost(ctx, workload.Post{UserID: 7, Username: "user_7", Text: "hello"})
	assert.Equal(t, http.StatusOK, res.StatusCode)

	res = client.ReadTimeline(ctx, workload.HomeTimeline, 7, 0, 10)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "[]", res.Body)
}

func TestServer_InjectedErrors(t *testing.T) {
	srv := httptest.NewServer(newServer(1, 0).routes())
	defer srv.Close()

	res := workload.NewClient(srv.URL, srv.Client()).ReadTimeline(context.Background(), workload.UserTimeline, 1, 0, 10)
	assert.Equal(t, http.StatusInternalServerError, res.StatusCode)
}
