package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/lightninglabs/tbtcswap"
	"github.com/stretchr/testify/require"
)

func TestQueryClient(t *testing.T) {
	var gotPath, gotAgent string
	server := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			gotPath = r.URL.EscapedPath()
			gotAgent = r.Header.Get("User-Agent")

			w.Header().Set("Content-Type", "application/json")
			if r.URL.Path == "/ln2tbtc/lockTime/bad" {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(
					`{"error":"Could not process invoice"}`,
				))

				return
			}

			_, _ = w.Write([]byte(`{"fee":3,"delay":50}`))
		},
	))
	defer server.Close()

	client := newQueryClient(server.URL+"/", time.Second)
	ctx := context.Background()

	resp, err := client.get(ctx, "ln2tbtc", "lockTime", "lnbcrt1good")
	require.NoError(t, err)
	require.JSONEq(t, `{"fee":3,"delay":50}`, resp)
	require.Equal(t, "/ln2tbtc/lockTime/lnbcrt1good", gotPath)
	require.Equal(t, tbtcswap.UserAgent("tbtccli"), gotAgent)

	_, err = client.get(ctx, "ln2tbtc", "lockTime", "bad")
	require.ErrorContains(t, err, "Could not process invoice")

	// Path elements are escaped.
	_, err = client.get(ctx, "alerts", "a/b")
	require.NoError(t, err)
	require.Equal(t, "/alerts/a%2Fb", gotPath)
}
