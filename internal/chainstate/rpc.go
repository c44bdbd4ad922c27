package chainstate

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/braidnet/braidd/internal/chain"
	"github.com/braidnet/braidd/internal/coordinator"
	"github.com/braidnet/braidd/pkg/circuit"
	"github.com/braidnet/braidd/pkg/errors"
	"github.com/braidnet/braidd/pkg/retry"
)

// EngineClient talks to the chain-state engine's HTTP API. It fetches the
// authoritative cut and submits solved blocks for chain extension.
type EngineClient struct {
	baseURL        string
	httpClient     *http.Client
	circuitBreaker *circuit.Breaker
	retryConfig    *retry.Config
}

// NewEngineClient creates a chain-state engine client for the given base URL.
func NewEngineClient(baseURL string) *EngineClient {
	cbConfig := &circuit.Config{
		MaxFailures:     3,
		SuccessRequired: 2,
		Timeout:         10 * time.Second,
		ResetTimeout:    30 * time.Second,
	}

	return &EngineClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		circuitBreaker: circuit.New(cbConfig),
		retryConfig:    retry.NetworkConfig(),
	}
}

// GetCut fetches the engine's current cut frontier.
func (c *EngineClient) GetCut(ctx context.Context) (chain.Cut, error) {
	return circuit.ExecuteWithResult(ctx, c.circuitBreaker, func() (chain.Cut, error) {
		return retry.DoWithResult(ctx, c.retryConfig, func() (chain.Cut, error) {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/cut", nil)
			if err != nil {
				return nil, errors.Wrap(err, errors.ErrorTypeChainState, "get_cut",
					"failed to build cut request")
			}

			resp, err := c.httpClient.Do(req)
			if err != nil {
				return nil, errors.Wrap(err, errors.ErrorTypeChainState, "get_cut",
					"failed to fetch cut from engine")
			}
			defer func() {
				_ = resp.Body.Close()
			}()

			body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
			if err != nil {
				return nil, errors.Wrap(err, errors.ErrorTypeChainState, "get_cut",
					"failed to read cut response")
			}
			if resp.StatusCode != http.StatusOK {
				return nil, errors.New(errors.ErrorTypeChainState, "get_cut",
					"engine returned non-OK status for cut").
					WithContext("status", resp.StatusCode)
			}

			cut, err := decodeCut(body)
			if err != nil {
				return nil, errors.Wrap(err, errors.ErrorTypeValidation, "get_cut",
					"failed to decode cut response")
			}
			return cut, nil
		})
	})
}

// extendRequest is the wire form of a chain-extension submission.
type extendRequest struct {
	Header       string   `json:"header"` // hex-encoded solved header
	Transactions []string `json:"transactions"`
}

// ExtendChain submits a solved header and its payload transactions to the
// engine. A conflict response means the chain already advanced past the
// header's parent and is surfaced as ErrExtensionConflict.
func (c *EngineClient) ExtendChain(ctx context.Context, header chain.BlockHeader, payload *chain.CandidatePayload) error {
	body := extendRequest{
		Header:       hex.EncodeToString(header.Encode()),
		Transactions: make([]string, len(payload.Transactions)),
	}
	for i, tx := range payload.Transactions {
		body.Transactions[i] = tx.Hash.String()
	}

	data, err := json.Marshal(&body)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeValidation, "extend_chain",
			"failed to marshal extension request")
	}

	// Conflicts are expected contention and must not trip the breaker or be
	// retried; execute the HTTP exchange inside the breaker and map the
	// status afterwards.
	var conflict bool
	err = c.circuitBreaker.Execute(ctx, func() error {
		return retry.Do(ctx, c.retryConfig, func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodPost,
				c.baseURL+"/chains/extend", bytes.NewReader(data))
			if err != nil {
				return errors.Wrap(err, errors.ErrorTypeChainState, "extend_chain",
					"failed to build extension request")
			}
			req.Header.Set("Content-Type", "application/json")

			resp, err := c.httpClient.Do(req)
			if err != nil {
				return errors.Wrap(err, errors.ErrorTypeChainState, "extend_chain",
					"failed to submit chain extension")
			}
			defer func() {
				_ = resp.Body.Close()
			}()
			_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))

			switch resp.StatusCode {
			case http.StatusOK, http.StatusCreated:
				conflict = false
				return nil
			case http.StatusConflict:
				conflict = true
				return nil
			default:
				return errors.New(errors.ErrorTypeChainState, "extend_chain",
					"engine rejected chain extension").
					WithContext("status", resp.StatusCode).
					WithContext("chain_id", uint32(header.Chain)).
					WithContext("height", header.Height)
			}
		})
	})
	if err != nil {
		return err
	}
	if conflict {
		return coordinator.Error{
			Err: coordinator.ErrExtensionConflict,
			Description: fmt.Sprintf("chain %d already advanced past height %d",
				header.Chain, header.Height),
		}
	}
	return nil
}
