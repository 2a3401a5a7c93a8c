package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cryptogift-wallets/giftclaim/pkg/logger"
	"github.com/cryptogift-wallets/giftclaim/pkg/models"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(srv.URL+"/", "secret-key", &logger.EmptyLogger{})
}

func TestValidateClaim(t *testing.T) {
	claimant := common.HexToAddress("0x00000000000000000000000000000000000000c1")

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/validate-claim", r.URL.Path)
		assert.Equal(t, "Bearer secret-key", r.Header.Get("Authorization"))

		var body ValidateClaimRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "12", body.AssetID)
		assert.Equal(t, claimant, body.ClaimantAddress)

		_, _ = w.Write([]byte(`{"valid":true,"internalClaimId":"claim-1","assetInfo":{"tokenId":"12","contractAddress":"0x00000000000000000000000000000000000000af"}}`))
	})

	res, err := c.ValidateClaim(context.Background(), models.ClaimRequest{
		AssetID:         "12",
		UnlockSecret:    "pw",
		SecretSalt:      "0x01",
		ClaimantAddress: claimant,
	})
	require.NoError(t, err)
	assert.True(t, res.Valid)
	assert.Equal(t, "claim-1", res.InternalClaimID)
	assert.Equal(t, common.HexToAddress("0x00000000000000000000000000000000000000af"), res.AssetInfo.ContractAddress)
}

func TestValidateClaimStatusError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream down"))
	})

	_, err := c.ValidateClaim(context.Background(), models.ClaimRequest{AssetID: "1"})
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusBadGateway, se.StatusCode)
	assert.Equal(t, "upstream down", se.Body)
}

func TestLookupRecentTransaction(t *testing.T) {
	hash := common.HexToHash("0xdef0000000000000000000000000000000000000000000000000000000000001")

	tests := []struct {
		name     string
		response string
		want     *common.Hash
	}{
		{"found", `{"found":true,"transactionHash":"` + hash.Hex() + `"}`, &hash},
		{"not found", `{"found":false}`, nil},
		{"found without hash", `{"found":true}`, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/api/claims/recent-transaction", r.URL.Path)
				var q RecentTransactionQuery
				assert.NoError(t, json.NewDecoder(r.Body).Decode(&q))
				assert.Equal(t, "claim-1", q.InternalClaimID)
				_, _ = w.Write([]byte(tt.response))
			})

			got, err := c.LookupRecentTransaction(context.Background(), RecentTransactionQuery{AssetID: "12", InternalClaimID: "claim-1"})
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveMetadata(t *testing.T) {
	contract := common.HexToAddress("0x00000000000000000000000000000000000000af")

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/nft-metadata/"+contract.Hex()+"/12", r.URL.Path)
		_, _ = w.Write([]byte(`{"name":"Gift #12","image":"ipfs://bafy/12.png","attributes":[{"trait_type":"Level","value":3}],"isPlaceholder":false}`))
	})

	md, err := c.ResolveMetadata(context.Background(), contract, "12")
	require.NoError(t, err)
	assert.Equal(t, "ipfs://bafy/12.png", md.Image)
	assert.False(t, md.IsPlaceholder)
	require.Len(t, md.Attributes, 1)
	assert.Equal(t, "Level", md.Attributes[0].TraitType)
}

func TestResolveMetadataRejectsBadShape(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"name":"no image","isPlaceholder":"yes"}`))
	})

	_, err := c.ResolveMetadata(context.Background(), common.Address{}, "1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "metadata is invalid")
}

func TestValidateMetadata(t *testing.T) {
	assert.NoError(t, ValidateMetadata([]byte(`{"image":""}`)))
	assert.Error(t, ValidateMetadata([]byte(`{"image":"x","attributes":[{"value":1}]}`)))
	assert.Error(t, ValidateMetadata([]byte(`not json`)))
}

func TestSyncMetadata(t *testing.T) {
	calls := 0
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		assert.Equal(t, "/api/nft/update-metadata-after-claim", r.URL.Path)
		var req SyncRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if req.DisplayData == nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	err := c.SyncMetadata(context.Background(), SyncRequest{AssetID: "12"})
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusInternalServerError, se.StatusCode)

	err = c.SyncMetadata(context.Background(), SyncRequest{AssetID: "12", DisplayData: &models.DisplayMetadata{Image: "x"}})
	assert.NoError(t, err)
	assert.Equal(t, 2, calls)
}
