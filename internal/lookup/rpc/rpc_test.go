package rpc

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/gazetteer-lookup/internal/lookup/lookuptest"
	"github.com/Adithya-Monish-Kumar-K/gazetteer-lookup/pkg/grpc"
)

func startService(t *testing.T) (*Client, *lookuptest.Searcher) {
	t.Helper()
	global := lookuptest.NewSearcher().
		Add("g1", 10, lookuptest.Geonames("-1", "Reno", "US", "39.5", "-119.8")).
		Add("g2", 8, lookuptest.Geonames("-2", "Reno", "IT", "45.0", "10.0")).
		Add("g3", 7.9, lookuptest.Geonames("-3", "Reno", "US", "39.4", "-119.7"))
	national := lookuptest.NewSearcher().
		Add("n1", 3, lookuptest.USGS("861", "Reno", "Populated Place", "39.5", "-119.8")).
		Add("n2", 2.5, lookuptest.USGS("862", "Reno", "Civil", "39.6", "-119.8"))
	svc, err := lookuptest.NewService(global, national)
	require.NoError(t, err)
	t.Cleanup(svc.Close)

	server := grpc.NewServer(grpc.WithCallTimeout(5 * time.Second))
	Register(server, svc)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = server.ServeListener(ln) }()
	t.Cleanup(server.Stop)

	client, err := Dial(context.Background(), ln.Addr().String())
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client, global
}

func TestLookupMethods(t *testing.T) {
	client, global := startService(t)
	ctx := context.Background()

	resp, err := client.LookupGlobal(ctx, LookupRequest{Term: "Reno", CountryCode: "us"})
	require.NoError(t, err)
	require.Equal(t, 2, resp.Count)
	assert.Equal(t, "-1", resp.Candidates[0].ItemID)
	assert.NotEmpty(t, resp.Candidates[0].Geohash)

	resp, err = client.LookupNational(ctx, LookupRequest{Term: "Reno"})
	require.NoError(t, err)
	assert.Equal(t, 2, resp.Count)
	assert.Equal(t, "usgs", string(resp.Entries()[0].Source))

	resp, err = client.Find(ctx, LookupRequest{Term: "reno", Rows: 3})
	require.NoError(t, err)
	assert.Equal(t, 3, resp.Count)

	require.NoError(t, client.InvalidateCache(ctx))
	_, err = client.LookupGlobal(ctx, LookupRequest{Term: "Reno", CountryCode: "us"})
	require.NoError(t, err)
	assert.Equal(t, 3, global.Searches())
}

func TestLookupRejectsBlankTerm(t *testing.T) {
	client, _ := startService(t)
	_, err := client.Find(context.Background(), LookupRequest{Term: " "})
	require.ErrorIs(t, err, grpc.ErrRemote)
	assert.Contains(t, err.Error(), "q is required")
}
