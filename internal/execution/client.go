// Package execution talks to the transaction-execution service that turns a
// chain tip into an executable candidate payload for one miner.
package execution

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/braidnet/braidd/internal/chain"
	"github.com/braidnet/braidd/pkg/circuit"
	"github.com/braidnet/braidd/pkg/errors"
	"github.com/braidnet/braidd/pkg/retry"
)

// Client requests candidate payloads from the execution service over HTTP.
type Client struct {
	baseURL        string
	httpClient     *http.Client
	circuitBreaker *circuit.Breaker
	retryConfig    *retry.Config
}

// NewClient creates an execution service client for the given base URL.
func NewClient(baseURL string) *Client {
	cbConfig := &circuit.Config{
		MaxFailures:     3,
		SuccessRequired: 2,
		Timeout:         10 * time.Second,
		ResetTimeout:    30 * time.Second,
	}

	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		circuitBreaker: circuit.New(cbConfig),
		retryConfig:    retry.NetworkConfig(),
	}
}

// buildRequest is the wire form of a payload build request.
type buildRequest struct {
	MinerAccount  string    `json:"miner_account"`
	PayoutAddress string    `json:"payout_address"`
	ChainID       uint32    `json:"chain_id"`
	ParentHeight  uint64    `json:"parent_height"`
	ParentHash    string    `json:"parent_hash"`
	CreationTime  time.Time `json:"creation_time"`
}

// buildResponse is the wire form of a payload build response.
type buildResponse struct {
	PayloadHash  string `json:"payload_hash"`
	Transactions []struct {
		Hash       string `json:"hash"`
		ResultHash string `json:"result_hash"`
	} `json:"transactions"`
}

// BuildPayload asks the execution service for a candidate payload extending
// the given parent on behalf of the miner.
func (c *Client) BuildPayload(ctx context.Context, miner chain.Miner, parent chain.BlockHeader, creationTime time.Time) (*chain.CandidatePayload, error) {
	reqBody := buildRequest{
		MinerAccount:  miner.Account,
		PayoutAddress: miner.PayoutAddress,
		ChainID:       uint32(parent.Chain),
		ParentHeight:  parent.Height,
		ParentHash:    parent.BlockHash().String(),
		CreationTime:  creationTime,
	}
	data, err := json.Marshal(&reqBody)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeValidation, "build_payload",
			"failed to marshal payload request")
	}

	return circuit.ExecuteWithResult(ctx, c.circuitBreaker, func() (*chain.CandidatePayload, error) {
		return retry.DoWithResult(ctx, c.retryConfig, func() (*chain.CandidatePayload, error) {
			req, err := http.NewRequestWithContext(ctx, http.MethodPost,
				c.baseURL+"/payloads/build", bytes.NewReader(data))
			if err != nil {
				return nil, errors.Wrap(err, errors.ErrorTypeExecution, "build_payload",
					"failed to build payload request")
			}
			req.Header.Set("Content-Type", "application/json")

			resp, err := c.httpClient.Do(req)
			if err != nil {
				return nil, errors.Wrap(err, errors.ErrorTypeExecution, "build_payload",
					"failed to reach execution service")
			}
			defer func() {
				_ = resp.Body.Close()
			}()

			body, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
			if err != nil {
				return nil, errors.Wrap(err, errors.ErrorTypeExecution, "build_payload",
					"failed to read payload response")
			}
			if resp.StatusCode != http.StatusOK {
				return nil, errors.New(errors.ErrorTypeExecution, "build_payload",
					"execution service returned non-OK status").
					WithContext("status", resp.StatusCode).
					WithContext("chain_id", uint32(parent.Chain))
			}

			var decoded buildResponse
			if err := json.Unmarshal(body, &decoded); err != nil {
				return nil, errors.Wrap(err, errors.ErrorTypeValidation, "build_payload",
					"failed to decode payload response")
			}
			return toPayload(&decoded, miner, parent, creationTime)
		})
	})
}

// toPayload converts a wire response into a candidate payload.
func toPayload(resp *buildResponse, miner chain.Miner, parent chain.BlockHeader, creationTime time.Time) (*chain.CandidatePayload, error) {
	payloadHash, err := chainhash.NewHashFromStr(resp.PayloadHash)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeValidation, "build_payload",
			"failed to parse payload hash")
	}

	txs := make([]chain.Transaction, len(resp.Transactions))
	for i, tx := range resp.Transactions {
		hash, err := chainhash.NewHashFromStr(tx.Hash)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeValidation, "build_payload",
				"failed to parse transaction hash")
		}
		resultHash, err := chainhash.NewHashFromStr(tx.ResultHash)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeValidation, "build_payload",
				"failed to parse transaction result hash")
		}
		txs[i] = chain.Transaction{Hash: *hash, ResultHash: *resultHash}
	}

	return &chain.CandidatePayload{
		Chain:        parent.Chain,
		Miner:        miner,
		PayloadHash:  *payloadHash,
		Transactions: txs,
		ComputedAt:   creationTime,
	}, nil
}
