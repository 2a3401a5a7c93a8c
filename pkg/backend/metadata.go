package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/xeipuuv/gojsonschema"

	"github.com/cryptogift-wallets/giftclaim/pkg/models"
)

// metadataSchema is the shape a resolver response must have before it is trusted
const metadataSchema = `{
	"type": "object",
	"required": ["image"],
	"properties": {
		"name": {"type": "string"},
		"image": {"type": "string"},
		"isPlaceholder": {"type": "boolean"},
		"attributes": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["trait_type", "value"],
				"properties": {
					"trait_type": {"type": "string"}
				}
			}
		}
	}
}`

var (
	schemaOnce sync.Once
	schema     *gojsonschema.Schema
	schemaErr  error
)

func loadMetadataSchema() (*gojsonschema.Schema, error) {
	schemaOnce.Do(func() {
		schema, schemaErr = gojsonschema.NewSchema(gojsonschema.NewStringLoader(metadataSchema))
	})
	return schema, schemaErr
}

// ValidateMetadata checks a raw resolver payload against the metadata schema
func ValidateMetadata(raw []byte) error {
	s, err := loadMetadataSchema()
	if err != nil {
		return fmt.Errorf("metadata schema: %w", err)
	}
	result, err := s.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return fmt.Errorf("schema validation: %w", err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return fmt.Errorf("metadata is invalid: %s", strings.Join(msgs, "; "))
	}
	return nil
}

// ResolveMetadata fetches the display metadata of a token. The payload is schema-checked.
func (c *Client) ResolveMetadata(ctx context.Context, contract common.Address, tokenID string) (*models.DisplayMetadata, error) {
	path := fmt.Sprintf("/api/nft-metadata/%s/%s", contract.Hex(), tokenID)
	body, err := c.do(ctx, "resolve_metadata", http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	if err := ValidateMetadata(body); err != nil {
		return nil, fmt.Errorf("resolve_metadata: %w", err)
	}

	var md models.DisplayMetadata
	if err := json.Unmarshal(body, &md); err != nil {
		return nil, fmt.Errorf("resolve_metadata: failed to decode response: %v", err)
	}
	return &md, nil
}

// SyncRequest is the post-claim metadata update
type SyncRequest struct {
	AssetID         string                  `json:"assetId"`
	ContractAddress common.Address          `json:"contractAddress"`
	ClaimantAddress common.Address          `json:"claimantAddress"`
	TransactionHash common.Hash             `json:"transactionHash"`
	DisplayData     *models.DisplayMetadata `json:"displayData,omitempty"`
}

// SyncMetadata pushes the post-claim metadata update. Any non-2xx answer is a *StatusError.
func (c *Client) SyncMetadata(ctx context.Context, req SyncRequest) error {
	_, err := c.do(ctx, "sync_metadata", http.MethodPost, "/api/nft/update-metadata-after-claim", req)
	return err
}
